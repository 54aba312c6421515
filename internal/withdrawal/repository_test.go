package withdrawal

import (
	"context"
	"regexp"
	"testing"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/wallet"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestCols = []string{"id", "user_id", "coin_id", "wallet_type", "amount", "fee", "net_amount", "address", "chain", "memo", "status", "approved_by", "decline_reason", "failure_reason", "order_id", "record_id", "created_at", "updated_at"}

func setupRequestMock(t *testing.T) (Repository, *sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })
	return NewRepository(), sqlxDB, mock
}

func pendingRequest() *Request {
	return &Request{
		ID:         "65a1b2c3d4e5f60718293a4b",
		UserID:     "u1",
		CoinID:     1280,
		WalletType: wallet.Main,
		Amount:     decimal.NewFromInt(50),
		Fee:        decimal.Zero,
		NetAmount:  decimal.NewFromInt(50),
		Address:    "TXaddr",
		Chain:      "TRX",
		Status:     StatusPending,
	}
}

func TestCreate(t *testing.T) {
	repo, db, mock := setupRequestMock(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO withdrawal_requests")).
		WithArgs("65a1b2c3d4e5f60718293a4b", "u1", int64(1280), wallet.Main, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "TXaddr", "TRX", "", StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	r := pendingRequest()
	require.NoError(t, repo.Create(context.Background(), db, r))
	assert.Equal(t, now, r.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_PendingExists(t *testing.T) {
	repo, db, mock := setupRequestMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO withdrawal_requests")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), db, pendingRequest())
	assert.ErrorIs(t, err, ErrPendingExists)
	assert.ErrorIs(t, err, api.ErrValidation)
}

func TestGetByID(t *testing.T) {
	repo, db, mock := setupRequestMock(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM withdrawal_requests WHERE id = $1")).
		WithArgs("65a1b2c3d4e5f60718293a4b").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow(
			"65a1b2c3d4e5f60718293a4b", "u1", 1280, "main", "50", "0", "50", "TXaddr", "TRX", "",
			"processing", "admin", nil, nil, "WD-1", "R1", now, now,
		))

	r, err := repo.GetByID(context.Background(), db, "65a1b2c3d4e5f60718293a4b")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, r.Status)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(50)))
	require.NotNil(t, r.RecordID)
	assert.Equal(t, "R1", *r.RecordID)
	assert.Nil(t, r.DeclineReason)
}

func TestGetByOrderID_NotFound(t *testing.T) {
	repo, db, mock := setupRequestMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE order_id = $1")).
		WithArgs("WD-missing").
		WillReturnRows(sqlmock.NewRows(requestCols))

	_, err := repo.GetByOrderID(context.Background(), db, "WD-missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestHasPending(t *testing.T) {
	repo, db, mock := setupRequestMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'pending'")).
		WithArgs("u1", int64(1280)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasPending(context.Background(), db, "u1", 1280)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"applied", 1, true},
		{"already moved", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, db, mock := setupRequestMock(t)

			admin := "admin"
			mock.ExpectExec(regexp.QuoteMeta("UPDATE withdrawal_requests")).
				WithArgs(StatusDeclined, &admin, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), "65a1b2c3d4e5f60718293a4b", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.Transition(context.Background(), db, "65a1b2c3d4e5f60718293a4b",
				[]Status{StatusPending}, StatusDeclined, Change{ApprovedBy: &admin})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListByStatus(t *testing.T) {
	repo, db, mock := setupRequestMock(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3")).
		WithArgs(StatusPending, 50, 0).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow("65a1b2c3d4e5f60718293a4b", "u1", 1280, "main", "50", "0", "50", "a", "TRX", "", "pending", nil, nil, nil, nil, nil, now, now).
			AddRow("65a1b2c3d4e5f60718293a4c", "u2", 1280, "spot", "10", "1", "9", "b", "TRX", "", "pending", nil, nil, nil, nil, nil, now, now))

	reqs, err := repo.ListByStatus(context.Background(), db, StatusPending, 50, 0)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
	assert.Equal(t, wallet.Spot, reqs[1].WalletType)
}
