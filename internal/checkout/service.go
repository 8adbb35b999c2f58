// Package checkout turns a customer's cart into an order. It owns duplicate
// submission handling and resolves shipping and discount before the order
// transaction persists the totals.
package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/idempotency"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/promotions"
	"github.com/ariefcatur/go-shop-checkout/internal/shipping"
	"github.com/ariefcatur/go-shop-checkout/internal/users"
)

type OrderStore interface {
	PlaceOrder(ctx context.Context, p orders.Placement, price orders.PriceFunc) (orders.Placed, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (orders.Order, error)
}

type CartReader interface {
	List(ctx context.Context, userID string) ([]cart.Item, error)
}

type ProfileReader interface {
	Profile(ctx context.Context, userID string) (users.Profile, error)
}

type PromotionReader interface {
	Get(ctx context.Context, id string) (promotions.Promotion, error)
}

type EventPublisher interface {
	OrderPlaced(ctx context.Context, p orders.OrderPlacedPayload, traceID string) error
}

// Customer is the authenticated caller.
type Customer struct {
	UserID    string
	Email     string
	RequestID string
}

type Result struct {
	OrderID   string        `json:"orderId"`
	Total     int64         `json:"total"`
	Status    orders.Status `json:"status"`
	Duplicate bool          `json:"-"`
}

type ShippingInfo struct {
	Region                string `json:"region"`
	FreeShippingThreshold int64  `json:"freeShippingThreshold"`
	IsFreeShipping        bool   `json:"isFreeShipping"`
}

// Summary backs the checkout form.
type Summary struct {
	Items        []cart.Item    `json:"items"`
	Subtotal     int64          `json:"subtotal"`
	ShippingFee  int64          `json:"shippingFee"`
	ShippingInfo ShippingInfo   `json:"shippingInfo"`
	Total        int64          `json:"total"`
	User         *users.Profile `json:"user"`
}

type Service struct {
	Orders     OrderStore
	Carts      CartReader
	Profiles   ProfileReader
	Promotions PromotionReader
	// Idempotency may be nil; the unique (user, key) index on orders still
	// prevents a second order, it just costs a transaction to find out.
	Idempotency idempotency.Store
	Events      EventPublisher
	Log         *logging.Logger
	Metrics     *metrics.ServerMetrics

	RecordTTL time.Duration
	LockTTL   time.Duration
	Now       func() time.Time
}

const (
	pollMin = 10 * time.Millisecond
	pollMax = 250 * time.Millisecond
)

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) recordTTL() time.Duration {
	if s.RecordTTL > 0 {
		return s.RecordTTL
	}
	return 24 * time.Hour
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 30 * time.Second
}

// Summary prices the current cart for the address on the user's profile.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	items, err := s.Carts.List(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	if len(items) == 0 {
		return Summary{}, orders.ErrCartEmpty
	}

	var profile *users.Profile
	p, err := s.Profiles.Profile(ctx, userID)
	switch {
	case err == nil:
		profile = &p
	case !errors.Is(err, users.ErrNotFound):
		return Summary{}, err
	}

	address := ""
	if profile != nil && profile.Address != nil {
		address = *profile.Address
	}
	subtotal := cart.Subtotal(items)
	q := shipping.Calculate(address, subtotal)
	return Summary{
		Items:       items,
		Subtotal:    subtotal,
		ShippingFee: q.Fee,
		ShippingInfo: ShippingInfo{
			Region:                q.Region,
			FreeShippingThreshold: q.FreeShippingThreshold,
			IsFreeShipping:        q.IsFreeShipping,
		},
		Total: subtotal + q.Fee,
		User:  profile,
	}, nil
}

// Checkout places an order from the customer's cart.
//
// With an idempotency key, a repeated submission returns the first result
// with Duplicate set, no matter how many times it is retried. Without a key
// every call creates a new order.
func (s *Service) Checkout(ctx context.Context, c Customer, req Request) (Result, error) {
	start := s.now()
	req.normalize()
	if err := req.Validate(); err != nil {
		s.Metrics.Checkout("rejected")
		return Result{}, err
	}

	key := req.IdempotencyKey
	fp := req.fingerprint()
	entry := logging.Fields{RequestID: c.RequestID, UserID: c.UserID, IdempotencyKey: key, Step: "checkout"}

	if key != "" && s.Idempotency != nil {
		res, done, release, err := s.guard(ctx, c.UserID, key, fp)
		if done || err != nil {
			if err == nil {
				s.Metrics.Checkout("duplicate")
			}
			return res, err
		}
		defer release()
	}

	promo, err := s.resolvePromotion(ctx, req.PromotionID, start)
	if err != nil {
		s.Metrics.Checkout("rejected")
		return Result{}, err
	}

	placed, err := s.Orders.PlaceOrder(ctx, orders.Placement{
		UserID:          c.UserID,
		RecipientName:   req.RecipientName,
		Phone:           req.Phone,
		ShippingAddress: req.Address,
		Note:            req.Note,
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  key,
	}, s.pricer(req.Address, promo, start))
	if err != nil {
		if key != "" && (errors.Is(err, orders.ErrDuplicateOrder) || errors.Is(err, orders.ErrCartEmpty)) {
			// a concurrent submission with this key may have won the race
			if o, ferr := s.Orders.FindByIdempotencyKey(ctx, c.UserID, key); ferr == nil {
				s.remember(ctx, c.UserID, key, idempotency.Record{OrderID: o.ID, Total: o.Total, Status: string(o.Status), CreatedAt: o.CreatedAt})
				s.Metrics.Checkout("duplicate")
				return Result{OrderID: o.ID, Total: o.Total, Status: o.Status, Duplicate: true}, nil
			} else if !errors.Is(ferr, orders.ErrNotFound) {
				return Result{}, ferr
			}
		}
		if errors.Is(err, orders.ErrPromotionExhausted) {
			err = &PromotionError{Err: err}
		}
		var stockErr *orders.InsufficientStockError
		var promoErr *PromotionError
		switch {
		case errors.As(err, &stockErr):
			s.Metrics.Checkout("insufficient_stock")
		case errors.As(err, &promoErr), errors.Is(err, orders.ErrCartEmpty):
			s.Metrics.Checkout("rejected")
		default:
			s.Metrics.Checkout("failed")
		}
		entry.Status, entry.Error = "failed", err.Error()
		entry.DurationMS = s.now().Sub(start).Milliseconds()
		s.Log.Log(entry)
		return Result{}, err
	}

	o := placed.Order
	if key != "" {
		s.remember(ctx, c.UserID, key, idempotency.Record{OrderID: o.ID, Total: o.Total, Status: string(o.Status), Fingerprint: fp, CreatedAt: o.CreatedAt})
	}

	// After commit: a lost event never undoes the order.
	if s.Events != nil {
		if err := s.Events.OrderPlaced(ctx, orders.NewOrderPlacedPayload(placed, c.Email), c.RequestID); err != nil {
			s.Log.Log(logging.Fields{RequestID: c.RequestID, OrderID: o.ID, Step: "publish_order_placed", Status: "error", Error: err.Error()})
		}
	}

	s.Metrics.Checkout("placed")
	entry.OrderID, entry.Status = o.ID, "placed"
	entry.DurationMS = s.now().Sub(start).Milliseconds()
	s.Log.Log(entry)
	return Result{OrderID: o.ID, Total: o.Total, Status: o.Status}, nil
}

// guard either answers the request from a stored record (done), or claims
// the key and returns a release func the caller must defer. While another
// request holds the key it waits for that request's record, up to the lock
// TTL or ctx, and replays it.
func (s *Service) guard(ctx context.Context, userID, key, fp string) (res Result, done bool, release func(), err error) {
	release = func() {}
	delay := pollMin
	var deadline <-chan time.Time

	for {
		rec, ok, err := s.Idempotency.Get(ctx, userID, key)
		if err != nil {
			// store down: proceed, the orders unique index still catches the duplicate
			s.Log.Log(logging.Fields{UserID: userID, IdempotencyKey: key, Step: "idempotency_get", Status: "error", Error: err.Error()})
			return Result{}, false, release, nil
		}
		if ok {
			res, err := replay(rec, fp)
			return res, true, release, err
		}

		claimed, err := s.Idempotency.Claim(ctx, userID, key, s.lockTTL())
		if err != nil {
			s.Log.Log(logging.Fields{UserID: userID, IdempotencyKey: key, Step: "idempotency_claim", Status: "error", Error: err.Error()})
			return Result{}, false, release, nil
		}
		if claimed {
			return Result{}, false, func() {
				if err := s.Idempotency.Release(context.WithoutCancel(ctx), userID, key); err != nil {
					s.Log.Log(logging.Fields{UserID: userID, IdempotencyKey: key, Step: "idempotency_release", Status: "error", Error: err.Error()})
				}
			}, nil
		}

		// held elsewhere: the holder either saves a record or releases the lock
		if deadline == nil {
			t := time.NewTimer(s.lockTTL())
			defer t.Stop()
			deadline = t.C
		}
		select {
		case <-ctx.Done():
			return Result{}, true, release, ErrInProgress
		case <-deadline:
			return Result{}, true, release, ErrInProgress
		case <-time.After(delay):
		}
		delay = min(delay*2, pollMax)
	}
}

func replay(rec idempotency.Record, fp string) (Result, error) {
	if rec.Fingerprint != "" && rec.Fingerprint != fp {
		return Result{}, ErrKeyReused
	}
	return Result{OrderID: rec.OrderID, Total: rec.Total, Status: orders.Status(rec.Status), Duplicate: true}, nil
}

func (s *Service) remember(ctx context.Context, userID, key string, rec idempotency.Record) {
	if s.Idempotency == nil {
		return
	}
	if err := s.Idempotency.Save(context.WithoutCancel(ctx), userID, key, rec, s.recordTTL()); err != nil {
		s.Log.Log(logging.Fields{UserID: userID, OrderID: rec.OrderID, IdempotencyKey: key, Step: "idempotency_save", Status: "error", Error: err.Error()})
	}
}

func (s *Service) resolvePromotion(ctx context.Context, id string, now time.Time) (*promotions.Promotion, error) {
	if id == "" || s.Promotions == nil {
		return nil, nil
	}
	p, err := s.Promotions.Get(ctx, id)
	if errors.Is(err, promotions.ErrNotFound) {
		return nil, &PromotionError{Err: err}
	}
	if err != nil {
		return nil, err
	}
	if err := p.Available(now); err != nil {
		return nil, &PromotionError{Err: err}
	}
	return &p, nil
}

// pricer runs inside the order transaction once the locked subtotal is known.
func (s *Service) pricer(address string, promo *promotions.Promotion, now time.Time) orders.PriceFunc {
	return func(subtotal int64) (orders.Pricing, error) {
		q := shipping.Calculate(address, subtotal)
		p := orders.Pricing{ShippingFee: q.Fee}
		if promo == nil {
			return p, nil
		}
		if err := promo.Check(now, subtotal); err != nil {
			return orders.Pricing{}, &PromotionError{Err: err}
		}
		p.Discount = promo.Discount(subtotal)
		p.PromotionID = promo.ID
		return p, nil
	}
}
