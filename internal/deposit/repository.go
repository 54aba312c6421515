package deposit

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Get(ctx context.Context, q sqlx.QueryerContext, userID, chain string) (*Address, error)
	// Save keeps the first address stored for (user, chain) and returns it.
	Save(ctx context.Context, q sqlx.ExtContext, a *Address) (*Address, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) Get(ctx context.Context, q sqlx.QueryerContext, userID, chain string) (*Address, error) {
	var a Address
	err := sqlx.GetContext(ctx, q, &a,
		`SELECT user_id, chain, address, memo, created_at FROM deposit_addresses WHERE user_id = $1 AND chain = $2`,
		userID, chain,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) Save(ctx context.Context, q sqlx.ExtContext, a *Address) (*Address, error) {
	var saved Address
	err := sqlx.GetContext(ctx, q, &saved, `
		INSERT INTO deposit_addresses (user_id, chain, address, memo)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, chain) DO UPDATE SET user_id = deposit_addresses.user_id
		RETURNING user_id, chain, address, memo, created_at`,
		a.UserID, a.Chain, a.Address, a.Memo,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}
