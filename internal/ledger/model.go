package ledger

import (
	"time"

	"wtcoin/internal/wallet"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TypeDeposit          TxType = "deposit"
	TypeWithdrawal       TxType = "withdrawal"
	TypeInternalTransfer TxType = "internal_transfer"
	TypeWalletTransfer   TxType = "wallet_transfer"
	TypeMassDeposit      TxType = "mass_deposit"
	TypeMassWithdrawal   TxType = "mass_withdrawal"
	TypeReferralBonus    TxType = "referral_bonus"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// PoolOwner is the user id recorded on Admin Wallet movements.
const PoolOwner = "admin-pool"

// Transaction is an append-only record of one value movement. Only status,
// record id and completion time change after insert.
type Transaction struct {
	ID                    string             `db:"id" json:"id"`
	UserID                string             `db:"user_id" json:"user_id"`
	CounterpartyID        *string            `db:"counterparty_id" json:"counterparty_id,omitempty"`
	Type                  TxType             `db:"type" json:"type"`
	Status                Status             `db:"status" json:"status"`
	CoinID                int64              `db:"coin_id" json:"coin_id"`
	WalletType            wallet.WalletType  `db:"wallet_type" json:"wallet_type"`
	DestinationWalletType *wallet.WalletType `db:"destination_wallet_type" json:"destination_wallet_type,omitempty"`
	Amount                decimal.Decimal    `db:"amount" json:"amount"`
	Fee                   decimal.Decimal    `db:"fee" json:"fee"`
	NetAmount             decimal.Decimal    `db:"net_amount" json:"net_amount"`
	OrderID               string             `db:"order_id" json:"order_id"`
	RecordID              *string            `db:"record_id" json:"record_id,omitempty"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
	CompletedAt           *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

type TransferRequest struct {
	From    wallet.Key
	To      wallet.Key
	Amount  decimal.Decimal
	OrderID string
}

type TransferResult struct {
	Transaction *Transaction    `json:"transaction"`
	Fee         decimal.Decimal `json:"fee"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	FeeType     string          `json:"fee_type"`
}
