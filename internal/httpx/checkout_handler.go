package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/auth"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Checkouter interface {
	Checkout(ctx context.Context, c checkout.Customer, req checkout.Request) (checkout.Result, error)
	Summary(ctx context.Context, userID string) (checkout.Summary, error)
}

type CheckoutHandler struct {
	Service Checkouter
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Get("/checkout", h.summary)
	r.Post("/checkout", h.place)
}

func customer(r *http.Request) checkout.Customer {
	c, _ := auth.FromContext(r.Context())
	return checkout.Customer{UserID: c.UserID, Email: c.Email, RequestID: middleware.GetReqID(r.Context())}
}

func (h *CheckoutHandler) summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Service.Summary(ctx, customer(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, s)
}

func (h *CheckoutHandler) place(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decode(w, r, &req); err != nil {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	// header form of the key, for clients that retry at the transport level
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Service.Checkout(ctx, customer(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: res, Duplicate: true})
		return
	}
	ok(w, http.StatusCreated, res)
}
