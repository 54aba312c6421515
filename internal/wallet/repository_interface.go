package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Repository persists wallet accounts. Mutating methods must run inside the
// ledger's transaction; q is that transaction.
type Repository interface {
	Get(ctx context.Context, q sqlx.QueryerContext, key Key) (*Account, error)
	ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string) ([]Account, error)
	Lock(ctx context.Context, q sqlx.ExtContext, key Key) (*Account, error)
	ApplyDelta(ctx context.Context, q sqlx.ExtContext, id int64, balanceDelta, lockedDelta decimal.Decimal) (*Account, error)
	SetRequiredVolume(ctx context.Context, q sqlx.ExtContext, id int64, volume decimal.Decimal) error
	AddTradingVolume(ctx context.Context, q sqlx.ExtContext, key Key, volume decimal.Decimal) (*Account, error)

	LockPool(ctx context.Context, q sqlx.ExtContext, coinID int64) (*PoolBalance, error)
	ApplyPoolDelta(ctx context.Context, q sqlx.ExtContext, coinID int64, delta decimal.Decimal) (*PoolBalance, error)
	ListPool(ctx context.Context, q sqlx.QueryerContext) ([]PoolBalance, error)
}
