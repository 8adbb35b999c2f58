package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/idempotency"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/promotions"
	"github.com/ariefcatur/go-shop-checkout/internal/shipping"
	"github.com/ariefcatur/go-shop-checkout/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hanoi = "45 Tràng Tiền, Hoàn Kiếm, Hà Nội"

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newService(shop *fakeShop) (*Service, *fakeEvents) {
	ev := &fakeEvents{}
	return &Service{
		Orders:      shop,
		Carts:       shop,
		Profiles:    shop,
		Promotions:  shop,
		Idempotency: idempotency.NewMemoryStore(),
		Events:      ev,
		Log:         logging.New("test", io.Discard),
		Now:         func() time.Time { return now },
	}, ev
}

func validRequest() Request {
	return Request{
		RecipientName: "Nguyen Van A",
		Phone:         "0901234567",
		Address:       hanoi,
		PaymentMethod: orders.PaymentCOD,
	}
}

func withKey(r Request, key string) Request {
	r.IdempotencyKey = key
	return r
}

func TestCheckoutPlacesOrder(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addProduct("q", "Croissant", 30000, 4)
	shop.addToCart("u1", "p", 3)
	svc, ev := newService(shop)

	res, err := svc.Checkout(context.Background(), Customer{UserID: "u1", Email: "a@example.com"}, validRequest())
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.Equal(t, orders.StatusPending, res.Status)
	assert.Equal(t, int64(3*45000+20000), res.Total)
	assert.Equal(t, 7, shop.stock("p"))
	assert.Equal(t, 4, shop.stock("q"), "products outside the cart keep their stock")
	assert.Zero(t, shop.cartLen("u1"))

	require.Len(t, ev.placed, 1)
	assert.Equal(t, res.OrderID, ev.placed[0].OrderID)
	assert.Equal(t, "a@example.com", ev.placed[0].Email)
}

func TestCheckoutInsufficientStockRejectsWholeOrder(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 2)
	shop.addProduct("q", "Croissant", 30000, 10)
	shop.addToCart("u1", "p", 5)
	shop.addToCart("u1", "q", 1)
	svc, ev := newService(shop)

	_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, validRequest())

	var stockErr *orders.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Items, 1)
	assert.Equal(t, orders.Shortage{ProductID: "p", Name: "Cold Brew", Requested: 5, Available: 2}, stockErr.Items[0])
	assert.Equal(t, 2, shop.stock("p"))
	assert.Equal(t, 10, shop.stock("q"))
	assert.Equal(t, 2, shop.cartLen("u1"))
	assert.Zero(t, shop.orderCount())
	assert.Empty(t, ev.placed)
}

func TestCheckoutSameKeyReplays(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	svc, _ := newService(shop)
	ctx := context.Background()
	req := withKey(validRequest(), "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10")

	first, err := svc.Checkout(ctx, Customer{UserID: "u1"}, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, 9, shop.stock("p"))

	// the customer refills the cart and retries the same submission
	shop.mu.Lock()
	shop.addToCart("u1", "p", 1)
	shop.mu.Unlock()

	second, err := svc.Checkout(ctx, Customer{UserID: "u1"}, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 9, shop.stock("p"), "no second decrement")
	assert.Equal(t, 1, shop.orderCount())
	assert.Equal(t, 1, shop.placeCalls, "replay never reaches the order store")
}

func TestCheckoutDistinctKeysCreateDistinctOrders(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	svc, _ := newService(shop)
	ctx := context.Background()

	seen := map[string]bool{}
	for _, key := range []string{"", "", "0b9c3c1e-6f0b-4a8e-9d6e-2f1c7a5b4e01", "5d2a7f80-3c4b-4e1a-8f9d-6b0c1e2a3d45"} {
		shop.mu.Lock()
		shop.addToCart("u1", "p", 1)
		shop.mu.Unlock()

		res, err := svc.Checkout(ctx, Customer{UserID: "u1"}, withKey(validRequest(), key))
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.False(t, seen[res.OrderID])
		seen[res.OrderID] = true
	}
	assert.Equal(t, 6, shop.stock("p"))
}

func TestCheckoutKeyReusedWithDifferentPayload(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	svc, _ := newService(shop)
	ctx := context.Background()
	key := "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10"

	_, err := svc.Checkout(ctx, Customer{UserID: "u1"}, withKey(validRequest(), key))
	require.NoError(t, err)

	other := withKey(validRequest(), key)
	other.Address = "99 Trần Phú, Đà Nẵng"
	_, err = svc.Checkout(ctx, Customer{UserID: "u1"}, other)
	assert.ErrorIs(t, err, ErrKeyReused)
	assert.Equal(t, 1, shop.orderCount())
}

func TestCheckoutKeyIsPerUser(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	shop.addToCart("u2", "p", 2)
	svc, _ := newService(shop)
	ctx := context.Background()
	key := "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10"

	a, err := svc.Checkout(ctx, Customer{UserID: "u1"}, withKey(validRequest(), key))
	require.NoError(t, err)
	b, err := svc.Checkout(ctx, Customer{UserID: "u2"}, withKey(validRequest(), key))
	require.NoError(t, err)

	assert.False(t, b.Duplicate)
	assert.NotEqual(t, a.OrderID, b.OrderID)
	assert.Equal(t, 7, shop.stock("p"))
}

func TestCheckoutWithoutGuardFallsBackToOrderStore(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	svc, _ := newService(shop)
	svc.Idempotency = nil
	ctx := context.Background()
	req := withKey(validRequest(), "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10")

	first, err := svc.Checkout(ctx, Customer{UserID: "u1"}, req)
	require.NoError(t, err)

	// cart is now empty; the store reports it and the key resolves the earlier order
	second, err := svc.Checkout(ctx, Customer{UserID: "u1"}, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)

	shop.mu.Lock()
	shop.addToCart("u1", "p", 1)
	shop.mu.Unlock()
	third, err := svc.Checkout(ctx, Customer{UserID: "u1"}, req)
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
	assert.Equal(t, first.OrderID, third.OrderID)
	assert.Equal(t, 9, shop.stock("p"))
}

func TestCheckoutConcurrentSameKey(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 100)
	shop.addToCart("u1", "p", 1)
	svc, _ := newService(shop)
	req := withKey(validRequest(), "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10")

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[res.OrderID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, shop.orderCount())
	assert.Len(t, ids, 1, "every response carries the same order")
	assert.Equal(t, 99, shop.stock("p"))
}

func TestCheckoutWaitsForInFlightSameKey(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	shop.gate = make(chan struct{})
	shop.entered = make(chan struct{}, 2)
	svc, _ := newService(shop)
	req := withKey(validRequest(), "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10")

	type outcome struct {
		res Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
		first <- outcome{res, err}
	}()
	<-shop.entered

	second := make(chan outcome, 1)
	go func() {
		res, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
		second <- outcome{res, err}
	}()
	time.Sleep(30 * time.Millisecond)
	close(shop.gate)

	a, b := <-first, <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.False(t, a.res.Duplicate)
	assert.True(t, b.res.Duplicate)
	assert.Equal(t, a.res.OrderID, b.res.OrderID)
	assert.Equal(t, a.res.Total, b.res.Total)
	assert.Equal(t, 1, shop.placeCalls)
}

func TestCheckoutInProgressWhenWaitRunsOut(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	shop.gate = make(chan struct{})
	shop.entered = make(chan struct{}, 2)
	svc, _ := newService(shop)
	req := withKey(validRequest(), "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
		done <- err
	}()
	<-shop.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Checkout(ctx, Customer{UserID: "u1"}, req)
	assert.ErrorIs(t, err, ErrInProgress)

	close(shop.gate)
	require.NoError(t, <-done)
}

func TestCheckoutWaiterProceedsWhenHolderFails(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 1)
	shop.addToCart("u1", "p", 2)
	shop.gate = make(chan struct{})
	shop.entered = make(chan struct{}, 2)
	svc, _ := newService(shop)
	req := withKey(validRequest(), "8f14e45f-ea5e-4b6c-9a62-1c3a3b9d2f10")

	first := make(chan error, 1)
	go func() {
		_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
		first <- err
	}()
	<-shop.entered

	second := make(chan error, 1)
	go func() {
		_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
		second <- err
	}()
	time.Sleep(30 * time.Millisecond)
	close(shop.gate)

	// no record is saved for a rejected checkout, so the waiter runs its own attempt
	var stockErr *orders.InsufficientStockError
	assert.ErrorAs(t, <-first, &stockErr)
	assert.ErrorAs(t, <-second, &stockErr)
	assert.Equal(t, 2, shop.placeCalls)
}

func TestCheckoutConcurrentUsersCompeteForStock(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 5)
	const n = 12
	for i := 0; i < n; i++ {
		shop.addToCart(fmt.Sprintf("u%d", i), "p", 1)
	}
	svc, _ := newService(shop)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		placed = map[string]string{} // order -> user
		short  int
	)
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("u%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Checkout(context.Background(), Customer{UserID: user}, validRequest())
			mu.Lock()
			defer mu.Unlock()
			var stockErr *orders.InsufficientStockError
			switch {
			case err == nil:
				placed[res.OrderID] = user
			case errors.As(err, &stockErr):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, placed, 5)
	assert.Equal(t, n-5, short)
	assert.Equal(t, 0, shop.stock("p"))

	shop.mu.Lock()
	defer shop.mu.Unlock()
	for _, o := range shop.orders {
		assert.Equal(t, placed[o.ID], o.UserID, "order owned by the requester")
	}
}

func TestCheckoutValidationHappensBeforeWrites(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	svc, _ := newService(shop)

	req := validRequest()
	req.Phone = "12345"
	req.PaymentMethod = "paypal"
	_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "phone")
	assert.Contains(t, vErr.Fields, "paymentMethod")
	assert.Zero(t, shop.placeCalls)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _ := newService(newFakeShop())
	_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, validRequest())
	assert.ErrorIs(t, err, orders.ErrCartEmpty)
}

func TestCheckoutAppliesPromotion(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 50000, 10)
	shop.addToCart("u1", "p", 4)
	limit := 10
	shop.promotions["a1b2c3d4-0000-4000-8000-000000000001"] = promotions.Promotion{
		ID: "a1b2c3d4-0000-4000-8000-000000000001", Code: "TENOFF", Type: promotions.TypePercentage,
		Value: 10, MinOrderValue: 100000, UsageLimit: &limit, IsActive: true,
	}
	svc, _ := newService(shop)

	req := validRequest()
	req.PromotionID = "a1b2c3d4-0000-4000-8000-000000000001"
	claimed := int64(999999)
	req.DiscountAmount = &claimed

	res, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
	require.NoError(t, err)
	// 200000 subtotal, 10% off, Hanoi fee 20000 below the 500000 threshold
	assert.Equal(t, int64(200000-20000+20000), res.Total)
	assert.Equal(t, 1, shop.promotions[req.PromotionID].UsedCount)
}

func TestCheckoutRejectsPromotionBelowMinimum(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 50000, 10)
	shop.addToCart("u1", "p", 1)
	shop.promotions["a1b2c3d4-0000-4000-8000-000000000001"] = promotions.Promotion{
		ID: "a1b2c3d4-0000-4000-8000-000000000001", Type: promotions.TypeFixed, Value: 20000, MinOrderValue: 100000, IsActive: true,
	}
	svc, _ := newService(shop)

	req := validRequest()
	req.PromotionID = "a1b2c3d4-0000-4000-8000-000000000001"
	_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)

	var pErr *PromotionError
	require.ErrorAs(t, err, &pErr)
	assert.ErrorIs(t, err, promotions.ErrBelowMinimum)
	assert.Equal(t, 10, shop.stock("p"))
	assert.Equal(t, 1, shop.cartLen("u1"))
}

func TestCheckoutRejectsUnknownOrExpiredPromotion(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 50000, 10)
	shop.addToCart("u1", "p", 1)
	ended := now.Add(-time.Hour)
	shop.promotions["a1b2c3d4-0000-4000-8000-000000000002"] = promotions.Promotion{
		ID: "a1b2c3d4-0000-4000-8000-000000000002", Type: promotions.TypeFixed, Value: 1000, EndDate: &ended, IsActive: true,
	}
	svc, _ := newService(shop)

	req := validRequest()
	req.PromotionID = "a1b2c3d4-0000-4000-8000-000000000009"
	_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
	assert.ErrorIs(t, err, promotions.ErrNotFound)

	req.PromotionID = "a1b2c3d4-0000-4000-8000-000000000002"
	_, err = svc.Checkout(context.Background(), Customer{UserID: "u1"}, req)
	assert.ErrorIs(t, err, promotions.ErrExpired)
	assert.Zero(t, shop.placeCalls)
}

func TestCheckoutPromotionExhaustedAtCommit(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 50000, 10)
	shop.addToCart("u1", "p", 1)
	shop.placeErr = orders.ErrPromotionExhausted
	svc, _ := newService(shop)

	_, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, validRequest())

	var pErr *PromotionError
	require.ErrorAs(t, err, &pErr)
	assert.ErrorIs(t, err, orders.ErrPromotionExhausted)
}

func TestCheckoutPublishFailureKeepsOrder(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	svc, ev := newService(shop)
	ev.err = errors.New("broker down")

	res, err := svc.Checkout(context.Background(), Customer{UserID: "u1"}, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, 1, shop.orderCount())
}

func TestSummary(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 2)
	addr := hanoi
	phone := "0901234567"
	shop.profiles["u1"] = users.Profile{Name: "Nguyen Van A", Phone: &phone, Address: &addr}
	svc, _ := newService(shop)

	sum, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, sum.Items, 1)
	assert.Equal(t, int64(90000), sum.Subtotal)
	assert.Equal(t, int64(20000), sum.ShippingFee)
	assert.Equal(t, int64(110000), sum.Total)
	assert.Equal(t, "hanoi", sum.ShippingInfo.Region)
	require.NotNil(t, sum.User)
	assert.Equal(t, "Nguyen Van A", sum.User.Name)
}

func TestSummaryWithoutProfileUsesDefaultRegion(t *testing.T) {
	shop := newFakeShop()
	shop.addProduct("p", "Cold Brew", 45000, 10)
	shop.addToCart("u1", "p", 1)
	svc, _ := newService(shop)

	sum, err := svc.Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, sum.User)
	assert.Equal(t, shipping.RegionDefault, sum.ShippingInfo.Region)
	assert.Equal(t, int64(40000), sum.ShippingFee)
}

func TestSummaryEmptyCart(t *testing.T) {
	svc, _ := newService(newFakeShop())
	_, err := svc.Summary(context.Background(), "u1")
	assert.ErrorIs(t, err, orders.ErrCartEmpty)
}
