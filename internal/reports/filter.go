// Package reports aggregates placed orders for the staff console.
package reports

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/jackc/pgx/v5"
)

const defaultWindow = 30 * 24 * time.Hour

// Filter narrows a report. Empty slices mean "any".
type Filter struct {
	Categories     []string
	Statuses       []orders.Status
	PaymentMethods []orders.PaymentMethod
	From, To       time.Time
	// Cancelled orders are left out unless statuses are given or this is set.
	IncludeCancelled bool
}

// ParseFilter reads categories, statuses, paymentMethods (comma separated),
// from and to (RFC 3339 or YYYY-MM-DD) from a query string. The window
// defaults to the 30 days ending at now.
func ParseFilter(q url.Values, now time.Time) (Filter, error) {
	f := Filter{Categories: splitList(q.Get("categories"))}
	for _, s := range splitList(q.Get("statuses")) {
		st := orders.Status(s)
		if !st.Valid() {
			return Filter{}, fmt.Errorf("unknown status %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range splitList(q.Get("paymentMethods")) {
		pm := orders.PaymentMethod(s)
		if !pm.Valid() {
			return Filter{}, fmt.Errorf("unknown payment method %q", s)
		}
		f.PaymentMethods = append(f.PaymentMethods, pm)
	}

	var err error
	if f.To, err = parseDate(q.Get("to"), now, true); err != nil {
		return Filter{}, fmt.Errorf("to: %w", err)
	}
	if f.From, err = parseDate(q.Get("from"), f.To.Add(-defaultWindow), false); err != nil {
		return Filter{}, fmt.Errorf("from: %w", err)
	}
	if f.From.After(f.To) {
		return Filter{}, errors.New("from is after to")
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDate(s string, def time.Time, endOfDay bool) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	// a bare date as the upper bound covers the whole day
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// Where compiles f into a predicate over the orders table aliased as alias.
// Values only ever travel in the returned args.
func (f Filter) Where(alias string) (string, pgx.NamedArgs) {
	col := func(c string) string {
		if alias == "" {
			return c
		}
		return alias + "." + c
	}
	args := pgx.NamedArgs{}
	conds := []string{}

	if !f.From.IsZero() {
		conds = append(conds, col("created_at")+" >= @from")
		args["from"] = f.From
	}
	if !f.To.IsZero() {
		conds = append(conds, col("created_at")+" <= @to")
		args["to"] = f.To
	}
	switch {
	case len(f.Statuses) > 0:
		conds = append(conds, col("status")+" = ANY(@statuses)")
		args["statuses"] = toStrings(f.Statuses)
	case !f.IncludeCancelled:
		conds = append(conds, col("status")+" <> @cancelled")
		args["cancelled"] = string(orders.StatusCancelled)
	}
	if len(f.PaymentMethods) > 0 {
		conds = append(conds, col("payment_method")+" = ANY(@payment_methods)")
		args["payment_methods"] = toStrings(f.PaymentMethods)
	}
	if len(f.Categories) > 0 {
		conds = append(conds, col("id")+` IN (
			SELECT oi.order_id FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE p.category_id::text = ANY(@categories))`)
		args["categories"] = f.Categories
	}

	if len(conds) == 0 {
		return "TRUE", args
	}
	return strings.Join(conds, " AND "), args
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
