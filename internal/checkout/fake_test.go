package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/promotions"
	"github.com/ariefcatur/go-shop-checkout/internal/users"
)

type fakeProduct struct {
	name  string
	price int64
	stock int
}

type fakeLine struct {
	productID string
	qty       int
}

// fakeShop behaves like the Postgres repositories: one lock stands in for
// the transaction, so a placement is all or nothing.
type fakeShop struct {
	mu         sync.Mutex
	products   map[string]*fakeProduct
	carts      map[string][]fakeLine
	orders     []orders.Order
	keys       map[string]string
	profiles   map[string]users.Profile
	promotions map[string]promotions.Promotion
	placeCalls int
	seq        int
	placeErr   error

	// gate, when set, holds PlaceOrder until closed; entered fires first.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		products:   map[string]*fakeProduct{},
		carts:      map[string][]fakeLine{},
		keys:       map[string]string{},
		profiles:   map[string]users.Profile{},
		promotions: map[string]promotions.Promotion{},
	}
}

func (f *fakeShop) addProduct(id, name string, price int64, stock int) {
	f.products[id] = &fakeProduct{name: name, price: price, stock: stock}
}

func (f *fakeShop) addToCart(userID, productID string, qty int) {
	f.carts[userID] = append(f.carts[userID], fakeLine{productID: productID, qty: qty})
}

func (f *fakeShop) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].stock
}

func (f *fakeShop) cartLen(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.carts[userID])
}

func (f *fakeShop) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeShop) PlaceOrder(_ context.Context, p orders.Placement, price orders.PriceFunc) (orders.Placed, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	if f.placeErr != nil {
		return orders.Placed{}, f.placeErr
	}

	lines := f.carts[p.UserID]
	if len(lines) == 0 {
		return orders.Placed{}, orders.ErrCartEmpty
	}
	sorted := append([]fakeLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].productID < sorted[j].productID })

	var (
		out       []orders.Line
		shortages []orders.Shortage
	)
	for _, l := range sorted {
		pr := f.products[l.productID]
		if pr.stock < l.qty {
			shortages = append(shortages, orders.Shortage{ProductID: l.productID, Name: pr.name, Requested: l.qty, Available: pr.stock})
		}
		out = append(out, orders.Line{ProductID: l.productID, Name: pr.name, Quantity: l.qty, Price: pr.price})
	}
	if len(shortages) > 0 {
		return orders.Placed{}, &orders.InsufficientStockError{Items: shortages}
	}

	subtotal := orders.Subtotal(out)
	pricing, err := price(subtotal)
	if err != nil {
		return orders.Placed{}, err
	}
	if p.IdempotencyKey != "" {
		if _, ok := f.keys[p.UserID+":"+p.IdempotencyKey]; ok {
			return orders.Placed{}, orders.ErrDuplicateOrder
		}
	}

	f.seq++
	o := orders.Order{
		ID:              fmt.Sprintf("order-%d", f.seq),
		UserID:          p.UserID,
		Status:          orders.StatusPending,
		Subtotal:        subtotal,
		ShippingFee:     pricing.ShippingFee,
		DiscountAmount:  pricing.Discount,
		Total:           subtotal + pricing.ShippingFee - pricing.Discount,
		RecipientName:   p.RecipientName,
		Phone:           p.Phone,
		ShippingAddress: p.ShippingAddress,
		PaymentMethod:   p.PaymentMethod,
		CreatedAt:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, l := range out {
		f.products[l.ProductID].stock -= l.Quantity
	}
	delete(f.carts, p.UserID)
	if p.IdempotencyKey != "" {
		f.keys[p.UserID+":"+p.IdempotencyKey] = o.ID
	}
	if pricing.PromotionID != "" {
		promo := f.promotions[pricing.PromotionID]
		promo.UsedCount++
		f.promotions[pricing.PromotionID] = promo
	}
	f.orders = append(f.orders, o)
	return orders.Placed{Order: o, Lines: out}, nil
}

func (f *fakeShop) FindByIdempotencyKey(_ context.Context, userID, key string) (orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.keys[userID+":"+key]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	for _, o := range f.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (f *fakeShop) List(_ context.Context, userID string) ([]cart.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cart.Item
	for i, l := range f.carts[userID] {
		pr := f.products[l.productID]
		out = append(out, cart.Item{
			ID:       fmt.Sprintf("ci-%d", i),
			Quantity: l.qty,
			Product:  cart.Product{ID: l.productID, Name: pr.name, Price: pr.price, Stock: pr.stock},
		})
	}
	return out, nil
}

func (f *fakeShop) Profile(_ context.Context, userID string) (users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return users.Profile{}, users.ErrNotFound
	}
	return p, nil
}

func (f *fakeShop) Get(_ context.Context, id string) (promotions.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promotions[id]
	if !ok {
		return promotions.Promotion{}, promotions.ErrNotFound
	}
	return p, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	placed []orders.OrderPlacedPayload
	err    error
}

func (e *fakeEvents) OrderPlaced(_ context.Context, p orders.OrderPlacedPayload, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placed = append(e.placed, p)
	return e.err
}
