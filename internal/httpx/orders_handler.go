package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type OrderRepo interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]orders.Order, error)
	Get(ctx context.Context, userID, orderID string) (orders.Order, error)
	Cancel(ctx context.Context, userID, orderID string) (orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, orders.Status, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type StatusPublisher interface {
	OrderStatusChanged(ctx context.Context, p orders.OrderStatusChangedPayload, traceID string) error
}

type OrdersHandler struct {
	Repo   OrderRepo
	Redis  redis.Cmdable // status cache; optional
	Events StatusPublisher
	Log    *logging.Logger
}

// Register mounts the customer routes.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.status)
	r.Put("/orders/{id}/cancel", h.cancel)
}

// RegisterStaff mounts the staff routes; the caller gates them by role.
func (h *OrdersHandler) RegisterStaff(r chi.Router) {
	r.Get("/orders/{id}", h.staffGet)
	r.Put("/orders/{id}/status", h.updateStatus)
}

// RegisterPublic mounts routes that need no token.
func (h *OrdersHandler) RegisterPublic(r chi.Router) {
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, ps)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Repo.ListByUser(ctx, customer(r).UserID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	ok(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.Get(ctx, customer(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, o)
}

func (h *OrdersHandler) staffGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.Get(ctx, "", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, o)
}

type statusBody struct {
	Status orders.Status `json:"status"`
}

// cached status; the owner travels with it so the cache never leaks another user's order
type cachedStatus struct {
	Status orders.Status `json:"status"`
	UserID string        `json:"user_id"`
}

// status answers from the Redis cache and falls back to the database.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	userID := customer(r).UserID
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		if raw, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes(); err == nil {
			var c cachedStatus
			if json.Unmarshal(raw, &c) == nil && c.Status.Valid() && c.UserID == userID {
				ok(w, http.StatusOK, statusBody{Status: c.Status})
				return
			}
		}
	}

	o, err := h.Repo.Get(ctx, userID, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheStatus(ctx, o)
	ok(w, http.StatusOK, statusBody{Status: o.Status})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(cachedStatus{Status: o.Status, UserID: o.UserID})
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID), b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	c := customer(r)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.Cancel(ctx, c.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.afterTransition(ctx, r, o, orders.StatusPending)
	ok(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if err := decode(w, r, &body); err != nil || !body.Status.Valid() {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of pending, confirmed, shipping, delivered, cancelled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, from, err := h.Repo.UpdateStatus(ctx, chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.afterTransition(ctx, r, o, from)
	ok(w, http.StatusOK, o)
}

// afterTransition runs once the status change is committed; failures are only logged.
func (h *OrdersHandler) afterTransition(ctx context.Context, r *http.Request, o orders.Order, from orders.Status) {
	h.cacheStatus(ctx, o)
	if h.Events == nil {
		return
	}
	err := h.Events.OrderStatusChanged(ctx, orders.OrderStatusChangedPayload{
		OrderID: o.ID, UserID: o.UserID, From: from, To: o.Status, Total: o.Total,
	}, middleware.GetReqID(r.Context()))
	if err != nil {
		h.Log.Log(logging.Fields{OrderID: o.ID, Step: "publish_status_changed", Status: "error", Error: err.Error()})
	}
}
