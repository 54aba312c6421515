package withdrawal

import (
	"time"

	"wtcoin/internal/wallet"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeclined   Status = "declined"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusProcessing, StatusCompleted, StatusFailed, StatusDeclined:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeclined
}

type Request struct {
	ID            string            `db:"id" json:"id"`
	UserID        string            `db:"user_id" json:"user_id"`
	CoinID        int64             `db:"coin_id" json:"coin_id"`
	WalletType    wallet.WalletType `db:"wallet_type" json:"wallet_type"`
	Amount        decimal.Decimal   `db:"amount" json:"amount"`
	Fee           decimal.Decimal   `db:"fee" json:"fee"`
	NetAmount     decimal.Decimal   `db:"net_amount" json:"net_amount"`
	Address       string            `db:"address" json:"address"`
	Chain         string            `db:"chain" json:"chain"`
	Memo          string            `db:"memo" json:"memo,omitempty"`
	Status        Status            `db:"status" json:"status"`
	ApprovedBy    *string           `db:"approved_by" json:"approved_by,omitempty"`
	DeclineReason *string           `db:"decline_reason" json:"decline_reason,omitempty"`
	FailureReason *string           `db:"failure_reason" json:"failure_reason,omitempty"`
	OrderID       *string           `db:"order_id" json:"order_id,omitempty"`
	RecordID      *string           `db:"record_id" json:"record_id,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

func (r *Request) Key() wallet.Key {
	return wallet.Key{UserID: r.UserID, WalletType: r.WalletType, CoinID: r.CoinID}
}

// Change holds the columns a status transition may set. Nil fields keep their
// current value.
type Change struct {
	ApprovedBy    *string
	DeclineReason *string
	FailureReason *string
	OrderID       *string
	RecordID      *string
	// Fee and NetAmount replace the quote stored at submission.
	Fee       *decimal.Decimal
	NetAmount *decimal.Decimal
}

type SubmitRequest struct {
	CoinID     int64           `json:"coin_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Address    string          `json:"address" validate:"required,max=128"`
	Chain      string          `json:"chain" validate:"required,max=32"`
	Memo       string          `json:"memo" validate:"max=64"`
	WalletType string          `json:"wallet_type" validate:"required,oneof=main spot futures"`
}

type DeclineRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type MassWithdrawRequest struct {
	CoinID  int64           `json:"coin_id" validate:"required,gt=0"`
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address" validate:"required,max=128"`
	Chain   string          `json:"chain" validate:"required,max=32"`
	Memo    string          `json:"memo" validate:"max=64"`
}

// Outcome is the provider's verdict on an executed withdrawal.
type Outcome string

const (
	OutcomeProcessing Outcome = "processing"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
)

// SettleResult tells the caller whether a provider event changed anything.
type SettleResult string

const (
	SettleApplied   SettleResult = "applied"
	SettleDuplicate SettleResult = "duplicate"
)
