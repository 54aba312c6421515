// Package ledger owns every mutation of wallet balances. Each operation runs
// inside one database transaction together with the LedgerTransaction rows
// that record it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/db"
	"wtcoin/internal/fee"
	"wtcoin/internal/ids"
	"wtcoin/internal/logger"
	"wtcoin/internal/metrics"
	"wtcoin/internal/wallet"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveAmount = fmt.Errorf("%w: amount must be positive", api.ErrValidation)
	ErrSameWallet        = fmt.Errorf("%w: source and destination wallet are the same", api.ErrValidation)
	ErrCoinMismatch      = fmt.Errorf("%w: source and destination coin differ", api.ErrValidation)
	ErrP2PWalletType     = fmt.Errorf("%w: transfers between users must use the same wallet type", api.ErrValidation)
	ErrDuplicateOrder    = fmt.Errorf("%w: order id already used", api.ErrDuplicate)
)

// EventSink receives the transactions a unit of work created or moved, after
// the unit committed.
type EventSink interface {
	Publish(ctx context.Context, events []Event)
}

type Event struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Type          TxType          `json:"type"`
	Status        Status          `json:"status"`
	CoinID        int64           `json:"coin_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	At            time.Time       `json:"at"`
}

type Ledger struct {
	runner  db.Runner
	wallets wallet.Repository
	txs     Repository
	fees    *fee.Engine
	sink    EventSink
}

func New(runner db.Runner, wallets wallet.Repository, txs Repository, fees *fee.Engine) *Ledger {
	return &Ledger{runner: runner, wallets: wallets, txs: txs, fees: fees}
}

// WithEvents sets the sink notified after each committed unit of work.
func (l *Ledger) WithEvents(sink EventSink) *Ledger {
	l.sink = sink
	return l
}

func (l *Ledger) Fees() *fee.Engine {
	return l.fees
}

// Tx is one atomic unit of work. Every method runs against the same database
// transaction; the first error returned from the Atomically callback undoes
// all of them.
type Tx struct {
	l      *Ledger
	q      sqlx.ExtContext
	events []Event
}

// Q exposes the underlying transaction so other repositories can write in the
// same unit.
func (tx *Tx) Q() sqlx.ExtContext {
	return tx.q
}

func (l *Ledger) Atomically(ctx context.Context, fn func(tx *Tx) error) error {
	var events []Event
	err := l.runner.WithTx(ctx, func(q sqlx.ExtContext) error {
		tx := &Tx{l: l, q: q}
		if err := fn(tx); err != nil {
			return err
		}
		events = tx.events
		return nil
	})
	if err != nil {
		return err
	}

	if l.sink != nil && len(events) > 0 {
		l.sink.Publish(ctx, events)
	}
	return nil
}

// Account takes the row lock on the account, creating it on first reference.
func (tx *Tx) Account(ctx context.Context, key wallet.Key) (*wallet.Account, error) {
	return tx.l.wallets.Lock(ctx, tx.q, key)
}

func (tx *Tx) Debit(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return tx.move(ctx, key, amount.Neg(), decimal.Zero)
}

func (tx *Tx) Credit(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return tx.move(ctx, key, amount, decimal.Zero)
}

// LockFunds moves amount from balance to locked balance.
func (tx *Tx) LockFunds(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return tx.move(ctx, key, amount.Neg(), amount)
}

// UnlockFunds moves amount from locked balance back to balance.
func (tx *Tx) UnlockFunds(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return tx.move(ctx, key, amount, amount.Neg())
}

// SettleLocked removes amount from locked balance once the provider confirmed
// the funds left the platform.
func (tx *Tx) SettleLocked(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return tx.move(ctx, key, decimal.Zero, amount.Neg())
}

// move applies both deltas to the locked row. The sufficiency check is
// repeated by the UPDATE itself against the persisted values.
func (tx *Tx) move(ctx context.Context, key wallet.Key, balanceDelta, lockedDelta decimal.Decimal) (*wallet.Account, error) {
	account, err := tx.l.wallets.Lock(ctx, tx.q, key)
	if err != nil {
		return nil, err
	}
	if account.Balance.Add(balanceDelta).IsNegative() || account.LockedBalance.Add(lockedDelta).IsNegative() {
		return nil, wallet.ErrInsufficientBalance
	}

	updated, err := tx.l.wallets.ApplyDelta(ctx, tx.q, account.ID, balanceDelta, lockedDelta)
	if err != nil {
		return nil, err
	}

	if v, ok := tx.l.fees.RequiredVolumeFor(updated); ok {
		if err := tx.l.wallets.SetRequiredVolume(ctx, tx.q, updated.ID, v); err != nil {
			return nil, err
		}
		updated.RequiredVolume = v
	}
	return updated, nil
}

func (tx *Tx) CreditPool(ctx context.Context, coinID int64, amount decimal.Decimal) (*wallet.PoolBalance, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if _, err := tx.l.wallets.LockPool(ctx, tx.q, coinID); err != nil {
		return nil, err
	}
	return tx.l.wallets.ApplyPoolDelta(ctx, tx.q, coinID, amount)
}

func (tx *Tx) DebitPool(ctx context.Context, coinID int64, amount decimal.Decimal) (*wallet.PoolBalance, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	pool, err := tx.l.wallets.LockPool(ctx, tx.q, coinID)
	if err != nil {
		return nil, err
	}
	if pool.Balance.LessThan(amount) {
		return nil, wallet.ErrInsufficientBalance
	}
	return tx.l.wallets.ApplyPoolDelta(ctx, tx.q, coinID, amount.Neg())
}

// Record appends t. It returns false without writing when the order id or
// record id is already taken.
func (tx *Tx) Record(ctx context.Context, t *Transaction) (bool, error) {
	if t.ID == "" {
		t.ID = ids.NewObjectID()
	}
	if t.Status.Terminal() && t.CompletedAt == nil {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}

	inserted, err := tx.l.txs.Insert(ctx, tx.q, t)
	if err != nil || !inserted {
		return inserted, err
	}
	tx.emit(t)
	return true, nil
}

// Transition moves t to status `to` if it is still in one of `from`. A
// concurrent writer that got there first makes it return false.
func (tx *Tx) Transition(ctx context.Context, t *Transaction, from []Status, to Status, recordID *string) (bool, error) {
	ok, err := tx.l.txs.Transition(ctx, tx.q, t.ID, from, to, recordID)
	if err != nil || !ok {
		return ok, err
	}

	t.Status = to
	if recordID != nil {
		t.RecordID = recordID
	}
	if to.Terminal() {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	tx.emit(t)
	return true, nil
}

func (tx *Tx) TransactionByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	return tx.l.txs.GetByOrderID(ctx, tx.q, orderID)
}

func (tx *Tx) TransactionByRecordID(ctx context.Context, recordID string) (*Transaction, error) {
	return tx.l.txs.GetByRecordID(ctx, tx.q, recordID)
}

func (tx *Tx) emit(t *Transaction) {
	tx.events = append(tx.events, Event{
		TransactionID: t.ID,
		OrderID:       t.OrderID,
		UserID:        t.UserID,
		Type:          t.Type,
		Status:        t.Status,
		CoinID:        t.CoinID,
		Amount:        t.Amount,
		Fee:           t.Fee,
		At:            time.Now().UTC(),
	})
}

func (l *Ledger) Debit(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	var account *wallet.Account
	err := l.Atomically(ctx, func(tx *Tx) (err error) {
		account, err = tx.Debit(ctx, key, amount)
		return err
	})
	return account, err
}

func (l *Ledger) Credit(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	var account *wallet.Account
	err := l.Atomically(ctx, func(tx *Tx) (err error) {
		account, err = tx.Credit(ctx, key, amount)
		return err
	})
	return account, err
}

func (l *Ledger) LockFunds(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	var account *wallet.Account
	err := l.Atomically(ctx, func(tx *Tx) (err error) {
		account, err = tx.LockFunds(ctx, key, amount)
		return err
	})
	return account, err
}

func (l *Ledger) UnlockFunds(ctx context.Context, key wallet.Key, amount decimal.Decimal) (*wallet.Account, error) {
	var account *wallet.Account
	err := l.Atomically(ctx, func(tx *Tx) (err error) {
		account, err = tx.UnlockFunds(ctx, key, amount)
		return err
	})
	return account, err
}

// Transfer moves amount from one account to another, deducting the fee the
// engine quotes for the source account. Debit, credit and the ledger row
// commit together or not at all.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if req.From == req.To {
		return nil, ErrSameWallet
	}
	if req.From.CoinID != req.To.CoinID {
		return nil, ErrCoinMismatch
	}

	p2p := req.From.UserID != req.To.UserID
	if p2p && req.From.WalletType != req.To.WalletType {
		return nil, ErrP2PWalletType
	}

	txType := TypeWalletTransfer
	if p2p {
		txType = TypeInternalTransfer
	}
	if req.OrderID == "" {
		req.OrderID = ids.NewOrderID("TR-")
	}

	var result *TransferResult
	err := l.Atomically(ctx, func(tx *Tx) error {
		// Rows are locked in key order so two opposite transfers cannot deadlock.
		keys := []wallet.Key{req.From, req.To}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		locked := make(map[wallet.Key]*wallet.Account, 2)
		for _, k := range keys {
			a, err := tx.Account(ctx, k)
			if err != nil {
				return err
			}
			locked[k] = a
		}

		source := locked[req.From]
		if source.Balance.LessThan(req.Amount) {
			return wallet.ErrInsufficientBalance
		}

		quote := l.fees.Quote(source, req.To.WalletType, req.Amount)

		if _, err := tx.Debit(ctx, req.From, req.Amount); err != nil {
			return err
		}
		if quote.Net.IsPositive() {
			if _, err := tx.Credit(ctx, req.To, quote.Net); err != nil {
				return err
			}
		}

		t := &Transaction{
			UserID:                req.From.UserID,
			Type:                  txType,
			Status:                StatusCompleted,
			CoinID:                req.From.CoinID,
			WalletType:            req.From.WalletType,
			DestinationWalletType: &req.To.WalletType,
			Amount:                req.Amount,
			Fee:                   quote.Fee,
			NetAmount:             quote.Net,
			OrderID:               req.OrderID,
		}
		if p2p {
			t.CounterpartyID = &req.To.UserID
		}

		inserted, err := tx.Record(ctx, t)
		if err != nil {
			return err
		}
		if !inserted {
			return ErrDuplicateOrder
		}

		result = &TransferResult{Transaction: t, Fee: quote.Fee, NetAmount: quote.Net, FeeType: string(quote.Type)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransfer(string(txType), result.FeeType, req.From.CoinID, result.Fee)
	logger.Info("transfer completed",
		"order_id", req.OrderID,
		"from", req.From.String(),
		"to", req.To.String(),
		"amount", req.Amount.String(),
		"fee", result.Fee.String(),
	)
	return result, nil
}

// AddTradingVolume records volume executed by the trading engine, attributed
// to the wallet that funded it.
func (l *Ledger) AddTradingVolume(ctx context.Context, key wallet.Key, volume decimal.Decimal) (*wallet.Account, error) {
	if !volume.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	var account *wallet.Account
	err := l.Atomically(ctx, func(tx *Tx) (err error) {
		account, err = l.wallets.AddTradingVolume(ctx, tx.q, key, volume)
		return err
	})
	return account, err
}

func (l *Ledger) Accounts(ctx context.Context, userID string) ([]wallet.Account, error) {
	return l.wallets.ListByUser(ctx, l.runner.Reader(), userID)
}

func (l *Ledger) Transactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.txs.ListByUser(ctx, l.runner.Reader(), userID, limit, offset)
}

func (l *Ledger) Pool(ctx context.Context) ([]wallet.PoolBalance, error) {
	return l.wallets.ListPool(ctx, l.runner.Reader())
}

func (l *Ledger) TransactionByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	return l.txs.GetByOrderID(ctx, l.runner.Reader(), orderID)
}

// Account reads an account outside any unit of work. A never referenced
// account reads as zero.
func (l *Ledger) Account(ctx context.Context, key wallet.Key) (*wallet.Account, error) {
	a, err := l.wallets.Get(ctx, l.runner.Reader(), key)
	if errors.Is(err, wallet.ErrAccountNotFound) {
		return &wallet.Account{UserID: key.UserID, WalletType: key.WalletType, CoinID: key.CoinID}, nil
	}
	return a, err
}

func (l *Ledger) Reader() sqlx.QueryerContext {
	return l.runner.Reader()
}
