package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("cart item not found")
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// NotEnoughStockError is returned when a cart change asks for more than is
// available once other carts holding the product are accounted for.
type NotEnoughStockError struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

func (e *NotEnoughStockError) Error() string {
	return fmt.Sprintf("only %d available, requested %d", e.Available, e.Requested)
}

type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

type Item struct {
	ID        string    `json:"id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	Product   Product   `json:"product"`
}

func Subtotal(items []Item) int64 {
	var s int64
	for _, it := range items {
		s += it.Product.Price * int64(it.Quantity)
	}
	return s
}

type Repo struct{ DB *pgxpool.Pool }

// validID rejects ids the uuid columns could never match.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *Repo) List(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ci.id, ci.quantity, ci.created_at, p.id, p.name, p.price, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Quantity, &it.CreatedAt, &it.Product.ID, &it.Product.Name, &it.Product.Price, &it.Product.Stock); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// available is stock minus what other users already hold in their carts.
func available(ctx context.Context, q pgx.Tx, userID, productID string) (int, error) {
	var stock, held int
	err := q.QueryRow(ctx, `
		SELECT p.stock,
		       COALESCE((SELECT SUM(quantity) FROM cart_items WHERE product_id = p.id AND user_id <> $2), 0)
		FROM products p WHERE p.id = $1`, productID, userID).Scan(&stock, &held)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return stock - held, nil
}

// Add puts qty more units of productID in the cart, merging with an existing line.
func (r *Repo) Add(ctx context.Context, userID, productID string, qty int) (Item, error) {
	if qty < 1 {
		return Item{}, ErrInvalidQuantity
	}
	if !validID(productID) {
		return Item{}, ErrProductNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Item{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	avail, err := available(ctx, tx, userID, productID)
	if err != nil {
		return Item{}, err
	}
	var current int
	err = tx.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Item{}, err
	}
	if want := current + qty; avail < want {
		return Item{}, &NotEnoughStockError{Available: max(avail, 0), Requested: want}
	}

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO cart_items(user_id, product_id, quantity) VALUES ($1,$2,$3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id`, userID, productID, qty).Scan(&id)
	if err != nil {
		return Item{}, err
	}
	it, err := r.get(ctx, tx, userID, id)
	if err != nil {
		return Item{}, err
	}
	return it, tx.Commit(ctx)
}

func (r *Repo) UpdateQuantity(ctx context.Context, userID, itemID string, qty int) (Item, error) {
	if qty < 1 {
		return Item{}, ErrInvalidQuantity
	}
	if !validID(itemID) {
		return Item{}, ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Item{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	it, err := r.get(ctx, tx, userID, itemID)
	if err != nil {
		return Item{}, err
	}
	avail, err := available(ctx, tx, userID, it.Product.ID)
	if err != nil {
		return Item{}, err
	}
	if avail < qty {
		return Item{}, &NotEnoughStockError{Available: max(avail, 0), Requested: qty}
	}
	if _, err := tx.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE id = $1 AND user_id = $2`, itemID, userID, qty); err != nil {
		return Item{}, err
	}
	it.Quantity = qty
	return it, tx.Commit(ctx)
}

func (r *Repo) get(ctx context.Context, tx pgx.Tx, userID, itemID string) (Item, error) {
	var it Item
	err := tx.QueryRow(ctx, `
		SELECT ci.id, ci.quantity, ci.created_at, p.id, p.name, p.price, p.stock
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.id = $1 AND ci.user_id = $2`, itemID, userID).
		Scan(&it.ID, &it.Quantity, &it.CreatedAt, &it.Product.ID, &it.Product.Name, &it.Product.Price, &it.Product.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *Repo) Remove(ctx context.Context, userID, itemID string) error {
	if !validID(itemID) {
		return ErrNotFound
	}
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
