package checkout

import "errors"

var (
	// ErrInProgress means another request with the same key did not finish
	// while this one waited for it.
	ErrInProgress = errors.New("checkout with this idempotency key is in progress")
	// ErrKeyReused means the key was already used for a different submission.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

// PromotionError wraps the reason a promotion cannot be applied.
type PromotionError struct {
	Err error
}

func (e *PromotionError) Error() string { return "promotion: " + e.Err.Error() }
func (e *PromotionError) Unwrap() error { return e.Err }
