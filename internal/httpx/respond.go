package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/promotions"
)

type envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, envelope{Success: false, Code: errCode, Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

// writeError is the single place domain errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr   *checkout.ValidationError
		stockErr *orders.InsufficientStockError
		promoErr *checkout.PromotionError
		transErr *orders.TransitionError
		cartErr  *cart.NotEnoughStockError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, envelope{Code: "VALIDATION_ERROR", Error: "invalid request", Fields: valErr.Fields})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, envelope{Code: "INSUFFICIENT_STOCK", Error: stockErr.Error(),
			Data: map[string]any{"items": stockErr.Items}})
	case errors.As(err, &cartErr):
		writeJSON(w, http.StatusConflict, envelope{Code: "INSUFFICIENT_STOCK", Error: cartErr.Error(), Data: cartErr})
	case errors.Is(err, orders.ErrCartEmpty):
		fail(w, http.StatusBadRequest, "CART_EMPTY", err.Error())
	case errors.Is(err, checkout.ErrInProgress):
		fail(w, http.StatusConflict, "CHECKOUT_IN_PROGRESS", err.Error())
	case errors.Is(err, checkout.ErrKeyReused):
		fail(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", err.Error())
	case errors.As(err, &promoErr):
		fail(w, http.StatusUnprocessableEntity, "PROMOTION_INVALID", promoErr.Error())
	case errors.As(err, &transErr):
		fail(w, http.StatusBadRequest, "INVALID_TRANSITION", transErr.Error())
	case errors.Is(err, orders.ErrNotCancellable):
		fail(w, http.StatusBadRequest, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		fail(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrProductNotFound), errors.Is(err, promotions.ErrNotFound):
		fail(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		fail(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
