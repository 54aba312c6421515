package webhook

import (
	"github.com/shopspring/decimal"
)

// Provider event statuses.
const (
	StatusSuccess    = "Success"
	StatusProcessing = "Processing"
	StatusFailed     = "Failed"
)

// Payload is the JSON body of deposit and withdrawal notifications.
type Payload struct {
	RecordID    string          `json:"recordId" validate:"required,max=128"`
	OrderID     string          `json:"orderId" validate:"max=128"`
	ReferenceID string          `json:"referenceId" validate:"max=64"`
	CoinID      int64           `json:"coinId" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status" validate:"required,oneof=Success Processing Failed"`
	Chain       string          `json:"chain" validate:"max=32"`
	TxID        string          `json:"txId" validate:"max=128"`
}

// Headers carries the provider's signature headers.
type Headers struct {
	AppID     string
	Timestamp string
	Sign      string
}

// Result is what a delivery did to the ledger.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)
