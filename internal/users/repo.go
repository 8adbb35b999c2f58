package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

// Profile is the part of a user the checkout form is prefilled with.
type Profile struct {
	Name    string  `json:"name"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Profile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := r.DB.QueryRow(ctx, `SELECT name, phone, address FROM users WHERE id = $1`, userID).
		Scan(&p.Name, &p.Phone, &p.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}
