package ledger

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	// Insert reports false when the order id or record id already exists.
	Insert(ctx context.Context, q sqlx.ExtContext, t *Transaction) (bool, error)
	GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*Transaction, error)
	GetByOrderID(ctx context.Context, q sqlx.QueryerContext, orderID string) (*Transaction, error)
	GetByRecordID(ctx context.Context, q sqlx.QueryerContext, recordID string) (*Transaction, error)
	// Transition moves the transaction to status `to` only if its current
	// status is one of `from`. A non-nil recordID is stored with it.
	Transition(ctx context.Context, q sqlx.ExtContext, id string, from []Status, to Status, recordID *string) (bool, error)
	ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string, limit, offset int) ([]Transaction, error)
}
