package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrCartEmpty      = errors.New("cart is empty")
	ErrDuplicateOrder = errors.New("order already exists for idempotency key")
	ErrNotCancellable = errors.New("order can no longer be cancelled")

	// ErrPromotionExhausted means the promotion's usage limit was reached
	// by the time the order committed.
	ErrPromotionExhausted = errors.New("promotion usage limit reached")
)

type Shortage struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every short line of a rejected checkout.
type InsufficientStockError struct {
	Items []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		if it.Available == 0 {
			parts = append(parts, fmt.Sprintf("%q is out of stock", it.Name))
			continue
		}
		parts = append(parts, fmt.Sprintf("%q has %d left (requested %d)", it.Name, it.Available, it.Requested))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %q to %q", e.From, e.To)
}
