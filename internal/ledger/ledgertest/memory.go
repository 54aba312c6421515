// Package ledgertest provides in-memory stand-ins for the ledger's storage.
// Units of work are serialized and rolled back on error, which is the
// behavior the Postgres implementation gives the ledger.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"wtcoin/internal/ledger"
	"wtcoin/internal/wallet"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Snapshotter is any in-memory table that can be restored after a failed unit.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Runner serializes units of work and restores every tracked table when fn fails.
type Runner struct {
	mu     sync.Mutex
	tables []Snapshotter
}

func NewRunner(tables ...Snapshotter) *Runner {
	return &Runner{tables: tables}
}

func (r *Runner) Track(t Snapshotter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, t)
}

func (r *Runner) WithTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	restores := make([]func(), len(r.tables))
	for i, t := range r.tables {
		restores[i] = t.Snapshot()
	}

	if err := fn(nil); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

func (r *Runner) Reader() sqlx.QueryerContext {
	return nil
}

// Wallets is an in-memory wallet.Repository.
type Wallets struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[wallet.Key]*wallet.Account
	pool     map[int64]*wallet.PoolBalance
}

func NewWallets() *Wallets {
	return &Wallets{
		accounts: make(map[wallet.Key]*wallet.Account),
		pool:     make(map[int64]*wallet.PoolBalance),
	}
}

// Seed creates or overwrites an account directly, bypassing the ledger.
func (w *Wallets) Seed(key wallet.Key, balance, tradingVolume, requiredVolume decimal.Decimal) *wallet.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.lockLocked(key)
	a.Balance = balance
	a.TradingVolume = tradingVolume
	a.RequiredVolume = requiredVolume
	cp := *a
	return &cp
}

func (w *Wallets) SeedPool(coinID int64, balance decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pool[coinID] = &wallet.PoolBalance{CoinID: coinID, Balance: balance, UpdatedAt: time.Now()}
}

// Account returns a copy of the account, or a zero account when it was never
// referenced.
func (w *Wallets) Account(key wallet.Key) wallet.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.accounts[key]; ok {
		return *a
	}
	return wallet.Account{UserID: key.UserID, WalletType: key.WalletType, CoinID: key.CoinID}
}

func (w *Wallets) PoolBalance(coinID int64) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pool[coinID]; ok {
		return p.Balance
	}
	return decimal.Zero
}

// All returns copies of every account.
func (w *Wallets) All() []wallet.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]wallet.Account, 0, len(w.accounts))
	for _, a := range w.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Wallets) Snapshot() func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	accounts := make(map[wallet.Key]*wallet.Account, len(w.accounts))
	for k, a := range w.accounts {
		cp := *a
		accounts[k] = &cp
	}
	pool := make(map[int64]*wallet.PoolBalance, len(w.pool))
	for k, p := range w.pool {
		cp := *p
		pool[k] = &cp
	}
	nextID := w.nextID

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.accounts, w.pool, w.nextID = accounts, pool, nextID
	}
}

func (w *Wallets) lockLocked(key wallet.Key) *wallet.Account {
	a, ok := w.accounts[key]
	if !ok {
		w.nextID++
		now := time.Now()
		a = &wallet.Account{
			ID:         w.nextID,
			UserID:     key.UserID,
			WalletType: key.WalletType,
			CoinID:     key.CoinID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		w.accounts[key] = a
	}
	return a
}

func (w *Wallets) byID(id int64) *wallet.Account {
	for _, a := range w.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (w *Wallets) Get(ctx context.Context, q sqlx.QueryerContext, key wallet.Key) (*wallet.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.accounts[key]
	if !ok {
		return nil, wallet.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (w *Wallets) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string) ([]wallet.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []wallet.Account{}
	for _, a := range w.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (w *Wallets) Lock(ctx context.Context, q sqlx.ExtContext, key wallet.Key) (*wallet.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := *w.lockLocked(key)
	return &cp, nil
}

func (w *Wallets) ApplyDelta(ctx context.Context, q sqlx.ExtContext, id int64, balanceDelta, lockedDelta decimal.Decimal) (*wallet.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.byID(id)
	if a == nil {
		return nil, wallet.ErrAccountNotFound
	}
	if a.Balance.Add(balanceDelta).IsNegative() || a.LockedBalance.Add(lockedDelta).IsNegative() {
		return nil, wallet.ErrInsufficientBalance
	}
	a.Balance = a.Balance.Add(balanceDelta)
	a.LockedBalance = a.LockedBalance.Add(lockedDelta)
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (w *Wallets) SetRequiredVolume(ctx context.Context, q sqlx.ExtContext, id int64, volume decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a := w.byID(id); a != nil && a.RequiredVolume.IsZero() {
		a.RequiredVolume = volume
	}
	return nil
}

func (w *Wallets) AddTradingVolume(ctx context.Context, q sqlx.ExtContext, key wallet.Key, volume decimal.Decimal) (*wallet.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.lockLocked(key)
	a.TradingVolume = a.TradingVolume.Add(volume)
	cp := *a
	return &cp, nil
}

func (w *Wallets) LockPool(ctx context.Context, q sqlx.ExtContext, coinID int64) (*wallet.PoolBalance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pool[coinID]
	if !ok {
		p = &wallet.PoolBalance{CoinID: coinID, UpdatedAt: time.Now()}
		w.pool[coinID] = p
	}
	cp := *p
	return &cp, nil
}

func (w *Wallets) ApplyPoolDelta(ctx context.Context, q sqlx.ExtContext, coinID int64, delta decimal.Decimal) (*wallet.PoolBalance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pool[coinID]
	if !ok || p.Balance.Add(delta).IsNegative() {
		return nil, wallet.ErrInsufficientBalance
	}
	p.Balance = p.Balance.Add(delta)
	cp := *p
	return &cp, nil
}

func (w *Wallets) ListPool(ctx context.Context, q sqlx.QueryerContext) ([]wallet.PoolBalance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := []wallet.PoolBalance{}
	for _, p := range w.pool {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoinID < out[j].CoinID })
	return out, nil
}

// Transactions is an in-memory ledger.Repository enforcing order id and
// record id uniqueness.
type Transactions struct {
	mu   sync.Mutex
	rows []*ledger.Transaction
}

func NewTransactions() *Transactions {
	return &Transactions{}
}

func (r *Transactions) All() []ledger.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Transaction, len(r.rows))
	for i, t := range r.rows {
		out[i] = *t
	}
	return out
}

func (r *Transactions) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]*ledger.Transaction, len(r.rows))
	for i, t := range r.rows {
		cp := *t
		rows[i] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.rows = rows
	}
}

func (r *Transactions) Insert(ctx context.Context, q sqlx.ExtContext, t *ledger.Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == t.ID || row.OrderID == t.OrderID {
			return false, nil
		}
		if t.RecordID != nil && row.RecordID != nil && *row.RecordID == *t.RecordID {
			return false, nil
		}
	}
	t.CreatedAt = time.Now()
	cp := *t
	r.rows = append(r.rows, &cp)
	return true, nil
}

func (r *Transactions) find(match func(*ledger.Transaction) bool) (*ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if match(row) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}

func (r *Transactions) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*ledger.Transaction, error) {
	return r.find(func(t *ledger.Transaction) bool { return t.ID == id })
}

func (r *Transactions) GetByOrderID(ctx context.Context, q sqlx.QueryerContext, orderID string) (*ledger.Transaction, error) {
	return r.find(func(t *ledger.Transaction) bool { return t.OrderID == orderID })
}

func (r *Transactions) GetByRecordID(ctx context.Context, q sqlx.QueryerContext, recordID string) (*ledger.Transaction, error) {
	return r.find(func(t *ledger.Transaction) bool { return t.RecordID != nil && *t.RecordID == recordID })
}

func (r *Transactions) Transition(ctx context.Context, q sqlx.ExtContext, id string, from []ledger.Status, to ledger.Status, recordID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID != id {
			continue
		}
		for _, s := range from {
			if row.Status != s {
				continue
			}
			if recordID != nil {
				for _, other := range r.rows {
					if other != row && other.RecordID != nil && *other.RecordID == *recordID {
						return false, nil
					}
				}
				rid := *recordID
				row.RecordID = &rid
			}
			row.Status = to
			if to.Terminal() {
				now := time.Now()
				row.CompletedAt = &now
			}
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

func (r *Transactions) ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string, limit, offset int) ([]ledger.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []ledger.Transaction{}
	for i := len(r.rows) - 1; i >= 0; i-- {
		t := r.rows[i]
		if t.UserID == userID || (t.CounterpartyID != nil && *t.CounterpartyID == userID) {
			out = append(out, *t)
		}
	}
	if offset >= len(out) {
		return []ledger.Transaction{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
