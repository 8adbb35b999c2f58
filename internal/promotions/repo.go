package promotions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const selectPromotion = `SELECT id, code, name, type, value, min_order_value, max_discount,
                                usage_limit, used_count, start_date, end_date, is_active
                         FROM promotions`

func scanPromotion(row pgx.Row) (Promotion, error) {
	var p Promotion
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.Value, &p.MinOrderValue, &p.MaxDiscount,
		&p.UsageLimit, &p.UsedCount, &p.StartDate, &p.EndDate, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Promotion{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) Get(ctx context.Context, id string) (Promotion, error) {
	return scanPromotion(r.DB.QueryRow(ctx, selectPromotion+` WHERE id = $1`, id))
}

func (r *Repo) GetByCode(ctx context.Context, code string) (Promotion, error) {
	return scanPromotion(r.DB.QueryRow(ctx, selectPromotion+` WHERE UPPER(code) = UPPER($1)`, code))
}
