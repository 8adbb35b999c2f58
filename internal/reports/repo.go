package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Summary struct {
	Revenue       int64 `json:"revenue"`
	Orders        int   `json:"orders"`
	Items         int   `json:"items"`
	AvgOrderValue int64 `json:"avgOrderValue"`
}

type Point struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

type ProductSales struct {
	ProductID *string `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Revenue   int64   `json:"revenue"`
}

// bucket formats for the revenue series
var groupFormats = map[string]string{
	"day":   "YYYY-MM-DD",
	"week":  "IYYY-IW",
	"month": "YYYY-MM",
}

func GroupValid(g string) bool {
	_, ok := groupFormats[g]
	return ok
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Summary(ctx context.Context, f Filter) (Summary, error) {
	where, args := f.Where("o")
	var s Summary
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(o.total), 0)::bigint, COUNT(*), COALESCE(SUM(i.qty), 0)::bigint
		FROM orders o
		LEFT JOIN (SELECT order_id, SUM(quantity) AS qty FROM order_items GROUP BY order_id) i
		       ON i.order_id = o.id
		WHERE `+where, args).Scan(&s.Revenue, &s.Orders, &s.Items)
	if err != nil {
		return Summary{}, err
	}
	if s.Orders > 0 {
		s.AvgOrderValue = s.Revenue / int64(s.Orders)
	}
	return s, nil
}

// Revenue buckets order totals by day, week or month.
func (r *Repo) Revenue(ctx context.Context, f Filter, groupBy string) ([]Point, error) {
	layout, ok := groupFormats[groupBy]
	if !ok {
		return nil, fmt.Errorf("unknown grouping %q", groupBy)
	}
	where, args := f.Where("o")
	args["layout"] = layout
	rows, err := r.DB.Query(ctx, `
		SELECT TO_CHAR(o.created_at, @layout) AS bucket, COALESCE(SUM(o.total), 0)::bigint, COUNT(*)
		FROM orders o
		WHERE `+where+`
		GROUP BY bucket
		ORDER BY bucket`, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Date, &p.Revenue, &p.Orders); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) TopProducts(ctx context.Context, f Filter, limit int) ([]ProductSales, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	where, args := f.Where("o")
	args["limit"] = limit
	rows, err := r.DB.Query(ctx, `
		SELECT oi.product_id, oi.name, SUM(oi.quantity)::bigint, SUM(oi.quantity * oi.price)::bigint
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE `+where+`
		GROUP BY oi.product_id, oi.name
		ORDER BY SUM(oi.quantity) DESC, oi.name
		LIMIT @limit`, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductSales
	for rows.Next() {
		var p ProductSales
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Quantity, &p.Revenue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var exportHeader = []string{"order_id", "created_at", "status", "payment_method", "recipient_name",
	"phone", "shipping_address", "subtotal", "shipping_fee", "discount", "total"}

// ExportOrders streams matching orders as CSV, newest first.
func (r *Repo) ExportOrders(ctx context.Context, f Filter, w io.Writer) error {
	where, args := f.Where("o")
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.created_at, o.status, o.payment_method, o.recipient_name, o.phone,
		       o.shipping_address, o.subtotal, o.shipping_fee, o.discount_amount, o.total
		FROM orders o
		WHERE `+where+`
		ORDER BY o.created_at DESC`, args)
	if err != nil {
		return err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for rows.Next() {
		var row ExportRow
		if err := rows.Scan(&row.OrderID, &row.CreatedAt, &row.Status, &row.PaymentMethod, &row.RecipientName,
			&row.Phone, &row.ShippingAddress, &row.Subtotal, &row.ShippingFee, &row.Discount, &row.Total); err != nil {
			return err
		}
		if err := cw.Write(row.record()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

type ExportRow struct {
	OrderID         string
	CreatedAt       time.Time
	Status          string
	PaymentMethod   string
	RecipientName   string
	Phone           string
	ShippingAddress string
	Subtotal        int64
	ShippingFee     int64
	Discount        int64
	Total           int64
}

func (r ExportRow) record() []string {
	return []string{
		r.OrderID,
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.Status,
		r.PaymentMethod,
		r.RecipientName,
		r.Phone,
		r.ShippingAddress,
		strconv.FormatInt(r.Subtotal, 10),
		strconv.FormatInt(r.ShippingFee, 10),
		strconv.FormatInt(r.Discount, 10),
		strconv.FormatInt(r.Total, 10),
	}
}
