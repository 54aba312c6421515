package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wtcoin/internal/api"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", api.ErrInsufficientFunds)
	ErrAccountNotFound     = fmt.Errorf("%w: wallet account", api.ErrNotFound)
)

const accountColumns = `id, user_id, wallet_type, coin_id, balance, locked_balance, trading_volume, required_volume, created_at, updated_at`

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) Get(ctx context.Context, q sqlx.QueryerContext, key Key) (*Account, error) {
	a := &Account{}
	err := sqlx.GetContext(ctx, q, a,
		`SELECT `+accountColumns+` FROM wallet_accounts WHERE user_id = $1 AND wallet_type = $2 AND coin_id = $3`,
		key.UserID, key.WalletType, key.CoinID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repository) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string) ([]Account, error) {
	accounts := []Account{}
	err := sqlx.SelectContext(ctx, q, &accounts,
		`SELECT `+accountColumns+` FROM wallet_accounts WHERE user_id = $1 ORDER BY coin_id, wallet_type`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Lock creates the account if it does not exist and takes its row lock for
// the rest of the transaction.
func (r *repository) Lock(ctx context.Context, q sqlx.ExtContext, key Key) (*Account, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallet_accounts (user_id, wallet_type, coin_id) VALUES ($1, $2, $3) ON CONFLICT (user_id, wallet_type, coin_id) DO NOTHING`,
		key.UserID, key.WalletType, key.CoinID,
	)
	if err != nil {
		return nil, err
	}

	a := &Account{}
	err = sqlx.GetContext(ctx, q, a,
		`SELECT `+accountColumns+` FROM wallet_accounts WHERE user_id = $1 AND wallet_type = $2 AND coin_id = $3 FOR UPDATE`,
		key.UserID, key.WalletType, key.CoinID,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ApplyDelta adds the deltas to balance and locked balance. The non-negative
// check is evaluated against the persisted row in the same statement, so a
// concurrent writer can never drive either column below zero.
func (r *repository) ApplyDelta(ctx context.Context, q sqlx.ExtContext, id int64, balanceDelta, lockedDelta decimal.Decimal) (*Account, error) {
	a := &Account{}
	err := sqlx.GetContext(ctx, q, a,
		`UPDATE wallet_accounts
		 SET balance = balance + $1, locked_balance = locked_balance + $2, updated_at = NOW()
		 WHERE id = $3 AND balance + $1 >= 0 AND locked_balance + $2 >= 0
		 RETURNING `+accountColumns,
		balanceDelta, lockedDelta, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetRequiredVolume sets the fee threshold only while it is still zero.
func (r *repository) SetRequiredVolume(ctx context.Context, q sqlx.ExtContext, id int64, volume decimal.Decimal) error {
	_, err := q.ExecContext(ctx,
		`UPDATE wallet_accounts SET required_volume = $1, updated_at = NOW() WHERE id = $2 AND required_volume = 0`,
		volume, id,
	)
	return err
}

func (r *repository) AddTradingVolume(ctx context.Context, q sqlx.ExtContext, key Key, volume decimal.Decimal) (*Account, error) {
	locked, err := r.Lock(ctx, q, key)
	if err != nil {
		return nil, err
	}

	a := &Account{}
	err = sqlx.GetContext(ctx, q, a,
		`UPDATE wallet_accounts SET trading_volume = trading_volume + $1, updated_at = NOW() WHERE id = $2 RETURNING `+accountColumns,
		volume, locked.ID,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repository) LockPool(ctx context.Context, q sqlx.ExtContext, coinID int64) (*PoolBalance, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO admin_wallets (coin_id) VALUES ($1) ON CONFLICT (coin_id) DO NOTHING`,
		coinID,
	)
	if err != nil {
		return nil, err
	}

	p := &PoolBalance{}
	err = sqlx.GetContext(ctx, q, p,
		`SELECT coin_id, balance, updated_at FROM admin_wallets WHERE coin_id = $1 FOR UPDATE`,
		coinID,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) ApplyPoolDelta(ctx context.Context, q sqlx.ExtContext, coinID int64, delta decimal.Decimal) (*PoolBalance, error) {
	p := &PoolBalance{}
	err := sqlx.GetContext(ctx, q, p,
		`UPDATE admin_wallets SET balance = balance + $1, updated_at = NOW()
		 WHERE coin_id = $2 AND balance + $1 >= 0
		 RETURNING coin_id, balance, updated_at`,
		delta, coinID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) ListPool(ctx context.Context, q sqlx.QueryerContext) ([]PoolBalance, error) {
	pool := []PoolBalance{}
	err := sqlx.SelectContext(ctx, q, &pool, `SELECT coin_id, balance, updated_at FROM admin_wallets ORDER BY coin_id`)
	if err != nil {
		return nil, err
	}
	return pool, nil
}
