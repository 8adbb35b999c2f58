package checkout

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ariefcatur/go-shop-checkout/internal/idempotency"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/google/uuid"
)

// Request is the body of POST /api/checkout.
type Request struct {
	RecipientName  string               `json:"recipientName"`
	Phone          string               `json:"phone"`
	Address        string               `json:"address"`
	Note           string               `json:"note,omitempty"`
	PaymentMethod  orders.PaymentMethod `json:"paymentMethod"`
	IdempotencyKey string               `json:"idempotencyKey,omitempty"`
	PromotionID    string               `json:"promotionId,omitempty"`
	// DiscountAmount is what the client displayed. The server recomputes the
	// discount from the promotion and never trusts this figure.
	DiscountAmount *int64 `json:"discountAmount,omitempty"`
}

// 10 or 11 digits starting with 0.
var phonePattern = regexp.MustCompile(`^0[0-9]{9,10}$`)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func (r *Request) normalize() {
	r.RecipientName = strings.TrimSpace(r.RecipientName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.Note = strings.TrimSpace(r.Note)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	r.PromotionID = strings.TrimSpace(r.PromotionID)
}

// Validate checks every field and reports all failures at once.
func (r Request) Validate() error {
	fields := map[string]string{}

	if n := utf8.RuneCountInString(strings.TrimSpace(r.RecipientName)); n < 2 || n > 100 {
		fields["recipientName"] = "must be between 2 and 100 characters"
	}
	switch phone := strings.TrimSpace(r.Phone); {
	case phone == "":
		fields["phone"] = "is required"
	case !phonePattern.MatchString(phone):
		fields["phone"] = "must be 10-11 digits starting with 0"
	}
	if strings.TrimSpace(r.Address) == "" {
		fields["address"] = "is required"
	}
	if !r.PaymentMethod.Valid() {
		fields["paymentMethod"] = "must be cod or bank_transfer"
	}
	if k := strings.TrimSpace(r.IdempotencyKey); k != "" && !isUUID(k) {
		fields["idempotencyKey"] = "must be a UUID"
	}
	if p := strings.TrimSpace(r.PromotionID); p != "" && !isUUID(p) {
		fields["promotionId"] = "must be a UUID"
	}
	if r.DiscountAmount != nil && *r.DiscountAmount < 0 {
		fields["discountAmount"] = "must not be negative"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// fingerprint identifies the logical submission behind an idempotency key.
func (r Request) fingerprint() string {
	return idempotency.Fingerprint(r.RecipientName, r.Phone, r.Address, r.Note, string(r.PaymentMethod), r.PromotionID)
}
