package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

const profileColumns = `user_id, email, referrer_id, first_deposit, created_at, updated_at`

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) Get(ctx context.Context, q sqlx.QueryerContext, userID string) (*Profile, error) {
	var p Profile
	err := sqlx.GetContext(ctx, q, &p, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert never overwrites an existing referrer.
func (r *repository) Upsert(ctx context.Context, q sqlx.ExtContext, p *Profile) error {
	query := `
		INSERT INTO user_profiles (user_id, email, referrer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET email = CASE WHEN EXCLUDED.email = '' THEN user_profiles.email ELSE EXCLUDED.email END,
		    referrer_id = COALESCE(user_profiles.referrer_id, EXCLUDED.referrer_id),
		    updated_at = NOW()
		RETURNING ` + profileColumns

	return sqlx.GetContext(ctx, q, p, query, p.UserID, p.Email, p.ReferrerID)
}

func (r *repository) ClaimFirstDeposit(ctx context.Context, q sqlx.ExtContext, userID string) (bool, *string, error) {
	query := `
		INSERT INTO user_profiles (user_id, first_deposit)
		VALUES ($1, TRUE)
		ON CONFLICT (user_id) DO UPDATE
		SET first_deposit = TRUE, updated_at = NOW()
		WHERE user_profiles.first_deposit = FALSE
		RETURNING referrer_id`

	var referrer sql.NullString
	err := q.QueryRowxContext(ctx, query, userID).Scan(&referrer)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if !referrer.Valid || referrer.String == "" {
		return true, nil, nil
	}
	return true, &referrer.String, nil
}
