package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const idempotencyConstraint = "orders_user_idempotency_key"

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, status, subtotal, shipping_fee, discount_amount, total,
                      recipient_name, phone, shipping_address, note, payment_method, promotion_id,
                      created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.ShippingFee, &o.DiscountAmount, &o.Total,
		&o.RecipientName, &o.Phone, &o.ShippingAddress, &o.Note, &o.PaymentMethod, &o.PromotionID,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// validID rejects ids the uuid columns could never match.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PlaceOrder turns the user's cart into an order in one transaction.
// The cart's products stay locked from the stock check until commit, so two
// checkouts competing for the same units cannot both pass. Any short line
// rejects the whole order and nothing is written.
func (r *Repo) PlaceOrder(ctx context.Context, p Placement, price PriceFunc) (Placed, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Placed{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// lock rows in id order so carts sharing products cannot deadlock
	rows, err := tx.Query(ctx, `
		SELECT p.id, p.name, p.price, p.stock, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY p.id
		FOR UPDATE OF p`, p.UserID)
	if err != nil {
		return Placed{}, err
	}
	var (
		lines     []Line
		shortages []Shortage
	)
	for rows.Next() {
		var (
			l     Line
			stock int
		)
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Price, &stock, &l.Quantity); err != nil {
			rows.Close()
			return Placed{}, err
		}
		if stock < l.Quantity {
			shortages = append(shortages, Shortage{ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity, Available: stock})
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Placed{}, err
	}
	if len(lines) == 0 {
		return Placed{}, ErrCartEmpty
	}
	if len(shortages) > 0 {
		return Placed{}, &InsufficientStockError{Items: shortages}
	}

	subtotal := Subtotal(lines)
	pricing := Pricing{}
	if price != nil {
		if pricing, err = price(subtotal); err != nil {
			return Placed{}, err
		}
	}
	total := subtotal + pricing.ShippingFee - pricing.Discount
	if total < 0 {
		total = 0
	}

	o := Order{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		Status:          StatusPending,
		Subtotal:        subtotal,
		ShippingFee:     pricing.ShippingFee,
		DiscountAmount:  pricing.Discount,
		Total:           total,
		RecipientName:   p.RecipientName,
		Phone:           p.Phone,
		ShippingAddress: p.ShippingAddress,
		Note:            nullable(p.Note),
		PaymentMethod:   p.PaymentMethod,
		PromotionID:     nullable(pricing.PromotionID),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, status, subtotal, shipping_fee, discount_amount, total,
		                   recipient_name, phone, shipping_address, note, payment_method, promotion_id, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Status, o.Subtotal, o.ShippingFee, o.DiscountAmount, o.Total,
		o.RecipientName, o.Phone, o.ShippingAddress, o.Note, o.PaymentMethod, o.PromotionID, nullable(p.IdempotencyKey),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == idempotencyConstraint {
			return Placed{}, ErrDuplicateOrder
		}
		return Placed{}, err
	}

	for _, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, quantity, price)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, l.ProductID, l.Name, l.Quantity, l.Price,
		); err != nil {
			return Placed{}, err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`, l.ProductID, l.Quantity)
		if err != nil {
			return Placed{}, err
		}
		if ct.RowsAffected() != 1 {
			return Placed{}, &InsufficientStockError{Items: []Shortage{{ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity}}}
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, p.UserID); err != nil {
		return Placed{}, err
	}

	if pricing.PromotionID != "" && pricing.Discount > 0 {
		ct, err := tx.Exec(ctx, `
			UPDATE promotions SET used_count = used_count + 1
			WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`, pricing.PromotionID)
		if err != nil {
			return Placed{}, err
		}
		if ct.RowsAffected() != 1 {
			return Placed{}, ErrPromotionExhausted
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO promotion_usage(promotion_id, user_id, order_id, discount_amount)
			VALUES ($1,$2,$3,$4)`, pricing.PromotionID, p.UserID, o.ID, pricing.Discount); err != nil {
			return Placed{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Placed{}, err
	}
	return Placed{Order: o, Lines: lines}, nil
}

func (r *Repo) FindByIdempotencyKey(ctx context.Context, userID, key string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
}

// Get loads an order with its items. An empty userID skips the ownership check.
func (r *Repo) Get(ctx context.Context, userID, orderID string) (Order, error) {
	if !validID(orderID) {
		return Order{}, ErrNotFound
	}
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	args := []any{orderID}
	if userID != "" {
		q += ` AND user_id = $2`
		args = append(args, userID)
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, q, args...))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.items(ctx, r.DB, o.ID)
	return o, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) items(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, name, quantity, price
	                            FROM order_items WHERE order_id = $1 ORDER BY name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
	                              WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Cancel is the customer path: own order, still pending. Stock comes back.
func (r *Repo) Cancel(ctx context.Context, userID, orderID string) (Order, error) {
	return r.transition(ctx, userID, orderID, StatusCancelled, func(from Status) error {
		if !from.CustomerCancellable() {
			return ErrNotCancellable
		}
		return nil
	})
}

// UpdateStatus is the staff path; any move allowed by the status machine.
// It returns the order after the move and the status it left.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) (Order, Status, error) {
	var from Status
	o, err := r.transition(ctx, "", orderID, to, func(cur Status) error {
		from = cur
		if !CanTransition(cur, to) {
			return &TransitionError{From: cur, To: to}
		}
		return nil
	})
	return o, from, err
}

func (r *Repo) transition(ctx context.Context, userID, orderID string, to Status, allow func(from Status) error) (Order, error) {
	if !validID(orderID) {
		return Order{}, ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	args := []any{orderID}
	if userID != "" {
		q += ` AND user_id = $2`
		args = append(args, userID)
	}
	o, err := scanOrder(tx.QueryRow(ctx, q+` FOR UPDATE`, args...))
	if err != nil {
		return Order{}, err
	}
	if err := allow(o.Status); err != nil {
		return Order{}, err
	}

	if to == StatusCancelled {
		if _, err := tx.Exec(ctx, `
			UPDATE products p SET stock = p.stock + oi.quantity, updated_at = now()
			FROM order_items oi
			WHERE oi.order_id = $1 AND oi.product_id = p.id`, o.ID); err != nil {
			return Order{}, fmt.Errorf("restore stock: %w", err)
		}
	}
	if err := tx.QueryRow(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		o.ID, to).Scan(&o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = to

	if o.Items, err = r.items(ctx, tx, o.ID); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, category_id, name, price, stock, created_at, updated_at
                                FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
