// Package fee computes transfer fees from trading-volume attainment.
package fee

import (
	"wtcoin/internal/wallet"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeNone     Type = "none"
	TypeStandard Type = "standard"
	TypePenalty  Type = "penalty"
)

type Policy struct {
	StandardRate     decimal.Decimal
	PenaltyRate      decimal.Decimal
	VolumeMultiplier decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		StandardRate:     decimal.RequireFromString("0.10"),
		PenaltyRate:      decimal.RequireFromString("0.20"),
		VolumeMultiplier: decimal.NewFromInt(2),
	}
}

type Quote struct {
	Fee  decimal.Decimal `json:"fee"`
	Net  decimal.Decimal `json:"net_amount"`
	Type Type            `json:"fee_type"`
}

type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Applies reports whether a movement from one wallet type to another is fee
// gated. Only movements touching a trading wallet are.
func Applies(from, to wallet.WalletType) bool {
	return from.IsTrading() || to.IsTrading()
}

// ComputeFee charges the standard rate when the source account has traded at
// least its required volume, the penalty rate otherwise.
func (e *Engine) ComputeFee(source *wallet.Account, amount decimal.Decimal) Quote {
	rate, typ := e.policy.PenaltyRate, TypePenalty
	if source.TradingVolume.GreaterThanOrEqual(source.RequiredVolume) {
		rate, typ = e.policy.StandardRate, TypeStandard
	}

	fee := amount.Mul(rate)
	return Quote{Fee: fee, Net: amount.Sub(fee), Type: typ}
}

// Quote is ComputeFee for gated movements and a zero fee otherwise.
func (e *Engine) Quote(source *wallet.Account, to wallet.WalletType, amount decimal.Decimal) Quote {
	if !Applies(source.WalletType, to) {
		return None(amount)
	}
	return e.ComputeFee(source, amount)
}

func None(amount decimal.Decimal) Quote {
	return Quote{Fee: decimal.Zero, Net: amount, Type: TypeNone}
}

// RequiredVolumeFor returns the threshold to persist for an account whose
// threshold is still unset. It is set once from the first non-zero balance
// and never lowered afterwards. Main accounts get one too: they are the
// source of main to trading movements.
func (e *Engine) RequiredVolumeFor(account *wallet.Account) (decimal.Decimal, bool) {
	if !account.RequiredVolume.IsZero() || !account.Balance.IsPositive() {
		return decimal.Zero, false
	}
	return account.Balance.Mul(e.policy.VolumeMultiplier), true
}
