package wallet

import (
	"fmt"
	"time"

	"wtcoin/internal/api"

	"github.com/shopspring/decimal"
)

type WalletType string

const (
	Main    WalletType = "main"
	Spot    WalletType = "spot"
	Futures WalletType = "futures"
)

func ParseWalletType(s string) (WalletType, error) {
	switch WalletType(s) {
	case Main, Spot, Futures:
		return WalletType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown wallet type %q", api.ErrValidation, s)
	}
}

// IsTrading reports whether the wallet is a spot or futures wallet.
func (t WalletType) IsTrading() bool {
	return t == Spot || t == Futures
}

// Key identifies one balance bucket.
type Key struct {
	UserID     string
	WalletType WalletType
	CoinID     int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.UserID, k.WalletType, k.CoinID)
}

// Account is one (user, wallet type, coin) balance row.
type Account struct {
	ID             int64           `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	WalletType     WalletType      `db:"wallet_type" json:"wallet_type"`
	CoinID         int64           `db:"coin_id" json:"coin_id"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	LockedBalance  decimal.Decimal `db:"locked_balance" json:"locked_balance"`
	TradingVolume  decimal.Decimal `db:"trading_volume" json:"trading_volume"`
	RequiredVolume decimal.Decimal `db:"required_volume" json:"required_volume"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

func (a *Account) Key() Key {
	return Key{UserID: a.UserID, WalletType: a.WalletType, CoinID: a.CoinID}
}

// Total is balance plus locked balance, the value the user owns.
func (a *Account) Total() decimal.Decimal {
	return a.Balance.Add(a.LockedBalance)
}

// PoolBalance is the Admin Wallet balance for one coin.
type PoolBalance struct {
	CoinID    int64           `db:"coin_id" json:"coin_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
