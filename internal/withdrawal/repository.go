package withdrawal

import (
	"context"
	"database/sql"
	"errors"

	"wtcoin/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const requestColumns = `id, user_id, coin_id, wallet_type, amount, fee, net_amount, address, chain, memo, status, approved_by, decline_reason, failure_reason, order_id, record_id, created_at, updated_at`

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, q sqlx.ExtContext, req *Request) error {
	query := `
		INSERT INTO withdrawal_requests (id, user_id, coin_id, wallet_type, amount, fee, net_amount, address, chain, memo, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	row := q.QueryRowxContext(ctx, query,
		req.ID, req.UserID, req.CoinID, req.WalletType, req.Amount, req.Fee, req.NetAmount,
		req.Address, req.Chain, req.Memo, req.Status,
	)
	if err := row.Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrPendingExists
		}
		return err
	}
	return nil
}

func (r *repository) get(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*Request, error) {
	req := &Request{}
	err := sqlx.GetContext(ctx, q, req, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *repository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*Request, error) {
	return r.get(ctx, q, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*Request, error) {
	return r.get(ctx, q, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) GetByOrderID(ctx context.Context, q sqlx.QueryerContext, orderID string) (*Request, error) {
	return r.get(ctx, q, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE order_id = $1`, orderID)
}

func (r *repository) HasPending(ctx context.Context, q sqlx.QueryerContext, userID string, coinID int64) (bool, error) {
	return db.Exists(ctx, q,
		`SELECT EXISTS(SELECT 1 FROM withdrawal_requests WHERE user_id = $1 AND coin_id = $2 AND status = 'pending')`,
		userID, coinID,
	)
}

func (r *repository) Transition(ctx context.Context, q sqlx.ExtContext, id string, from []Status, to Status, change Change) (bool, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE withdrawal_requests
		SET status = $1,
		    approved_by = COALESCE($2, approved_by),
		    decline_reason = COALESCE($3, decline_reason),
		    failure_reason = COALESCE($4, failure_reason),
		    order_id = COALESCE($5, order_id),
		    record_id = COALESCE($6, record_id),
		    fee = COALESCE($7, fee),
		    net_amount = COALESCE($8, net_amount),
		    updated_at = NOW()
		WHERE id = $9 AND status = ANY($10)`,
		to, change.ApprovedBy, change.DeclineReason, change.FailureReason, change.OrderID, change.RecordID,
		change.Fee, change.NetAmount,
		id, pq.Array(froms),
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

func (r *repository) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string) ([]Request, error) {
	reqs := []Request{}
	err := sqlx.SelectContext(ctx, q, &reqs,
		`SELECT `+requestColumns+` FROM withdrawal_requests WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *repository) ListByStatus(ctx context.Context, q sqlx.QueryerContext, status Status, limit, offset int) ([]Request, error) {
	reqs := []Request{}
	err := sqlx.SelectContext(ctx, q, &reqs,
		`SELECT `+requestColumns+` FROM withdrawal_requests WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return reqs, nil
}
