package promotions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

var (
	ErrNotFound       = errors.New("promotion not found")
	ErrInactive       = errors.New("promotion is not active")
	ErrNotStarted     = errors.New("promotion has not started")
	ErrExpired        = errors.New("promotion has expired")
	ErrUsageExhausted = errors.New("promotion usage limit reached")
	ErrBelowMinimum   = errors.New("order is below the promotion minimum")
)

type Promotion struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Type          Type       `json:"type"`
	Value         int64      `json:"value"` // percent for percentage, amount for fixed
	MinOrderValue int64      `json:"minOrderValue"`
	MaxDiscount   *int64     `json:"maxDiscount"`
	UsageLimit    *int       `json:"usageLimit"`
	UsedCount     int        `json:"usedCount"`
	StartDate     *time.Time `json:"startDate"`
	EndDate       *time.Time `json:"endDate"`
	IsActive      bool       `json:"isActive"`
}

// Available reports whether the promotion can be redeemed at now, ignoring the order amount.
func (p Promotion) Available(now time.Time) error {
	switch {
	case !p.IsActive:
		return ErrInactive
	case p.StartDate != nil && now.Before(*p.StartDate):
		return ErrNotStarted
	case p.EndDate != nil && now.After(*p.EndDate):
		return ErrExpired
	case p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit:
		return ErrUsageExhausted
	}
	return nil
}

// Check validates every constraint of the promotion for an order of subtotal.
func (p Promotion) Check(now time.Time, subtotal int64) error {
	if err := p.Available(now); err != nil {
		return err
	}
	if subtotal < p.MinOrderValue {
		return ErrBelowMinimum
	}
	return nil
}

// Discount is the amount taken off subtotal. It never exceeds subtotal.
func (p Promotion) Discount(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var d int64
	switch p.Type {
	case TypePercentage:
		d = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(p.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		if p.MaxDiscount != nil && d > *p.MaxDiscount {
			d = *p.MaxDiscount
		}
	case TypeFixed:
		d = p.Value
	}
	if d < 0 {
		return 0
	}
	if d > subtotal {
		return subtotal
	}
	return d
}
