package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/go-chi/chi/v5"
)

type CartRepo interface {
	List(ctx context.Context, userID string) ([]cart.Item, error)
	Add(ctx context.Context, userID, productID string, qty int) (cart.Item, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, qty int) (cart.Item, error)
	Remove(ctx context.Context, userID, itemID string) error
	Clear(ctx context.Context, userID string) error
}

type CartHandler struct {
	Repo CartRepo
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.list)
	r.Post("/cart", h.add)
	r.Delete("/cart", h.clear)
	r.Put("/cart/{id}", h.update)
	r.Delete("/cart/{id}", h.remove)
}

type cartView struct {
	Items    []cart.Item `json:"items"`
	Subtotal int64       `json:"subtotal"`
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Repo.List(ctx, customer(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []cart.Item{}
	}
	ok(w, http.StatusOK, cartView{Items: items, Subtotal: cart.Subtotal(items)})
}

type addReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addReq
	if err := decode(w, r, &req); err != nil {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.ProductID == "" {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "productId is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Repo.Add(ctx, customer(r).UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, it)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(w, r, &req); err != nil {
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Repo.UpdateQuantity(ctx, customer(r).UserID, chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, it)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Repo.Remove(ctx, customer(r).UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Repo.Clear(ctx, customer(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}
