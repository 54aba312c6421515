package fee

import (
	"testing"

	"wtcoin/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeFee(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	tests := []struct {
		name     string
		volume   string
		required string
		amount   string
		wantFee  string
		wantNet  string
		wantType Type
	}{
		{"volume below threshold pays penalty", "0", "50", "100", "20", "80", TypePenalty},
		{"volume at threshold pays standard", "50", "50", "100", "10", "90", TypeStandard},
		{"volume above threshold pays standard", "500", "50", "100", "10", "90", TypeStandard},
		{"unset threshold pays standard", "0", "0", "100", "10", "90", TypeStandard},
		{"fractional amount", "0", "1", "0.5", "0.1", "0.4", TypePenalty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &wallet.Account{
				WalletType:     wallet.Main,
				TradingVolume:  d(tt.volume),
				RequiredVolume: d(tt.required),
			}

			q := engine.ComputeFee(src, d(tt.amount))

			assert.True(t, q.Fee.Equal(d(tt.wantFee)), "fee %s", q.Fee)
			assert.True(t, q.Net.Equal(d(tt.wantNet)), "net %s", q.Net)
			assert.Equal(t, tt.wantType, q.Type)
			assert.True(t, q.Fee.Add(q.Net).Equal(d(tt.amount)))
		})
	}
}

func TestQuote_BypassForMainOnly(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	src := &wallet.Account{WalletType: wallet.Main, RequiredVolume: d("50")}

	q := engine.Quote(src, wallet.Main, d("100"))
	assert.Equal(t, TypeNone, q.Type)
	assert.True(t, q.Fee.IsZero())
	assert.True(t, q.Net.Equal(d("100")))

	q = engine.Quote(src, wallet.Futures, d("100"))
	assert.Equal(t, TypePenalty, q.Type)
}

func TestApplies(t *testing.T) {
	assert.False(t, Applies(wallet.Main, wallet.Main))
	assert.True(t, Applies(wallet.Main, wallet.Spot))
	assert.True(t, Applies(wallet.Futures, wallet.Main))
	assert.True(t, Applies(wallet.Spot, wallet.Futures))
	assert.True(t, Applies(wallet.Spot, wallet.Spot))
}

func TestRequiredVolumeFor(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	v, ok := engine.RequiredVolumeFor(&wallet.Account{WalletType: wallet.Futures, Balance: d("80")})
	assert.True(t, ok)
	assert.True(t, v.Equal(d("160")))

	_, ok = engine.RequiredVolumeFor(&wallet.Account{WalletType: wallet.Futures, Balance: d("80"), RequiredVolume: d("10")})
	assert.False(t, ok, "threshold is never recomputed")

	v, ok = engine.RequiredVolumeFor(&wallet.Account{WalletType: wallet.Main, Balance: d("25")})
	assert.True(t, ok, "main accounts gate main to trading movements")
	assert.True(t, v.Equal(d("50")))

	_, ok = engine.RequiredVolumeFor(&wallet.Account{WalletType: wallet.Spot, Balance: decimal.Zero})
	assert.False(t, ok)
}
