package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/promotions"
	"github.com/ariefcatur/go-shop-checkout/internal/shipping"
	"github.com/go-chi/chi/v5"
)

type PromotionFinder interface {
	GetByCode(ctx context.Context, code string) (promotions.Promotion, error)
}

// CatalogHandler serves the pricing helpers the storefront calls before checkout.
type CatalogHandler struct {
	Promotions PromotionFinder
	Now        func() time.Time
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/shipping/rates", h.rates)
	r.Post("/shipping/calculate", h.calculate)
	r.Get("/promotions/validate/{code}", h.validatePromotion)
}

func (h *CatalogHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *CatalogHandler) rates(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, shipping.Rates())
}

func (h *CatalogHandler) calculate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address  string `json:"address"`
		Subtotal int64  `json:"subtotal"`
	}
	if err := decode(w, r, &req); err != nil || req.Subtotal < 0 {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "address and a non-negative subtotal are required")
		return
	}
	ok(w, http.StatusOK, shipping.Calculate(req.Address, req.Subtotal))
}

type promotionCheck struct {
	Promotion promotions.Promotion `json:"promotion"`
	Discount  int64                `json:"discount"`
}

func (h *CatalogHandler) validatePromotion(w http.ResponseWriter, r *http.Request) {
	total, err := strconv.ParseInt(r.URL.Query().Get("orderTotal"), 10, 64)
	if err != nil || total < 0 {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "orderTotal must be a non-negative integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Promotions.GetByCode(ctx, chi.URLParam(r, "code"))
	if errors.Is(err, promotions.ErrNotFound) {
		fail(w, http.StatusNotFound, "PROMOTION_INVALID", err.Error())
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := p.Check(h.now(), total); err != nil {
		fail(w, http.StatusUnprocessableEntity, "PROMOTION_INVALID", err.Error())
		return
	}
	ok(w, http.StatusOK, promotionCheck{Promotion: p, Discount: p.Discount(total)})
}
