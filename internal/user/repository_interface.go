package user

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Get(ctx context.Context, q sqlx.QueryerContext, userID string) (*Profile, error)
	Upsert(ctx context.Context, q sqlx.ExtContext, p *Profile) error
	// ClaimFirstDeposit flips first_deposit once per user and reports the
	// referrer of the claiming user. Later calls report claimed == false.
	ClaimFirstDeposit(ctx context.Context, q sqlx.ExtContext, userID string) (claimed bool, referrerID *string, err error)
}
