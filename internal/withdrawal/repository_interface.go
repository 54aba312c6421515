package withdrawal

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	Create(ctx context.Context, q sqlx.ExtContext, r *Request) error
	GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*Request, error)
	GetForUpdate(ctx context.Context, q sqlx.ExtContext, id string) (*Request, error)
	GetByOrderID(ctx context.Context, q sqlx.QueryerContext, orderID string) (*Request, error)
	HasPending(ctx context.Context, q sqlx.QueryerContext, userID string, coinID int64) (bool, error)
	// Transition reports false when the request is no longer in one of `from`.
	Transition(ctx context.Context, q sqlx.ExtContext, id string, from []Status, to Status, change Change) (bool, error)
	ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string) ([]Request, error)
	ListByStatus(ctx context.Context, q sqlx.QueryerContext, status Status, limit, offset int) ([]Request, error)
}
