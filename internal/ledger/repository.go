package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wtcoin/internal/api"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrTransactionNotFound = fmt.Errorf("%w: ledger transaction", api.ErrNotFound)

const txColumns = `id, user_id, counterparty_id, type, status, coin_id, wallet_type, destination_wallet_type, amount, fee, net_amount, order_id, record_id, created_at, completed_at`

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, q sqlx.ExtContext, t *Transaction) (bool, error) {
	query := `
		INSERT INTO ledger_transactions (id, user_id, counterparty_id, type, status, coin_id, wallet_type, destination_wallet_type, amount, fee, net_amount, order_id, record_id, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
		RETURNING created_at`

	err := sqlx.GetContext(ctx, q, &t.CreatedAt, query,
		t.ID, t.UserID, t.CounterpartyID, t.Type, t.Status, t.CoinID, t.WalletType, t.DestinationWalletType,
		t.Amount, t.Fee, t.NetAmount, t.OrderID, t.RecordID, t.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) get(ctx context.Context, q sqlx.QueryerContext, where string, arg interface{}) (*Transaction, error) {
	t := &Transaction{}
	err := sqlx.GetContext(ctx, q, t, `SELECT `+txColumns+` FROM ledger_transactions WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*Transaction, error) {
	return r.get(ctx, q, "id = $1", id)
}

func (r *repository) GetByOrderID(ctx context.Context, q sqlx.QueryerContext, orderID string) (*Transaction, error) {
	return r.get(ctx, q, "order_id = $1", orderID)
}

func (r *repository) GetByRecordID(ctx context.Context, q sqlx.QueryerContext, recordID string) (*Transaction, error) {
	return r.get(ctx, q, "record_id = $1", recordID)
}

func (r *repository) Transition(ctx context.Context, q sqlx.ExtContext, id string, from []Status, to Status, recordID *string) (bool, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE ledger_transactions
		SET status = $1,
		    record_id = COALESCE($2, record_id),
		    completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
		WHERE id = $3 AND status = ANY($4)`,
		to, recordID, id, pq.Array(froms),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string, limit, offset int) ([]Transaction, error) {
	txs := []Transaction{}
	err := sqlx.SelectContext(ctx, q, &txs,
		`SELECT `+txColumns+` FROM ledger_transactions WHERE user_id = $1 OR counterparty_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return txs, nil
}
