// Package webhook authenticates provider notifications and applies them to
// the ledger exactly once.
package webhook

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/ledger"
	"wtcoin/internal/logger"
	"wtcoin/internal/metrics"
	"wtcoin/internal/provider"
	"wtcoin/internal/user"
	"wtcoin/internal/wallet"
	"wtcoin/internal/withdrawal"

	"github.com/shopspring/decimal"
)

var (
	ErrAppIDMismatch    = fmt.Errorf("%w: unknown app id", api.ErrAuthentication)
	ErrStaleTimestamp   = fmt.Errorf("%w: timestamp outside freshness window", api.ErrAuthentication)
	ErrBadSignature     = fmt.Errorf("%w: signature mismatch", api.ErrAuthentication)
	errMalformedPayload = fmt.Errorf("%w: malformed payload", api.ErrValidation)
)

// Settler applies a provider verdict to a withdrawal.
type Settler interface {
	Settle(ctx context.Context, orderID, recordID string, outcome withdrawal.Outcome) (withdrawal.SettleResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID, subject, body string) error
}

type Config struct {
	AppID             string
	Secret            string
	FreshnessWindow   time.Duration
	MassDepositPrefix string
	SelfBonusRate     decimal.Decimal
	ReferrerBonusRate decimal.Decimal
}

type Reconciler struct {
	ledger   *ledger.Ledger
	users    user.Repository
	settler  Settler
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func NewReconciler(l *ledger.Ledger, users user.Repository, settler Settler, notifier Notifier, cfg Config) *Reconciler {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 300 * time.Second
	}
	if cfg.MassDepositPrefix == "" {
		cfg.MassDepositPrefix = "MASS-"
	}
	return &Reconciler{ledger: l, users: users, settler: settler, notifier: notifier, cfg: cfg, now: time.Now}
}

// Authenticate checks app id, timestamp freshness and signature. Any failure
// rejects the delivery as a whole.
func (r *Reconciler) Authenticate(h Headers, body []byte) error {
	if !hmac.Equal([]byte(h.AppID), []byte(r.cfg.AppID)) {
		return ErrAppIDMismatch
	}

	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	age := r.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > r.cfg.FreshnessWindow {
		return ErrStaleTimestamp
	}

	want := provider.Sign(r.cfg.Secret, h.AppID, h.Timestamp, body)
	if !hmac.Equal([]byte(strings.ToLower(h.Sign)), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

func decode(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if err := api.Validate(p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyDeposit credits a confirmed deposit. Redelivery of the same record id
// reports ResultDuplicate and changes nothing.
func (r *Reconciler) ApplyDeposit(ctx context.Context, h Headers, body []byte) (Result, error) {
	if err := r.Authenticate(h, body); err != nil {
		metrics.RecordWebhook("deposit", "unauthorized")
		logger.Warn("rejected deposit webhook", "error", err)
		return "", err
	}

	p, err := decode(body)
	if err != nil {
		return r.ignore("deposit", err, body), nil
	}
	if p.Status != StatusSuccess {
		logger.Info("deposit not final yet", "record_id", p.RecordID, "status", p.Status)
		metrics.RecordWebhook("deposit", string(ResultIgnored))
		return ResultIgnored, nil
	}
	if !p.Amount.IsPositive() {
		return r.ignore("deposit", fmt.Errorf("%w: amount must be positive", errMalformedPayload), body), nil
	}

	var res Result
	if strings.HasPrefix(p.OrderID, r.cfg.MassDepositPrefix) {
		res, err = r.applyMassDeposit(ctx, p)
	} else {
		if p.ReferenceID == "" {
			return r.ignore("deposit", fmt.Errorf("%w: missing referenceId", errMalformedPayload), body), nil
		}
		res, err = r.applyUserDeposit(ctx, p)
	}
	if err != nil {
		metrics.RecordWebhook("deposit", "error")
		return "", err
	}

	metrics.RecordWebhook("deposit", string(res))
	return res, nil
}

type bonus struct {
	userID string
	amount decimal.Decimal
}

func (r *Reconciler) applyUserDeposit(ctx context.Context, p *Payload) (Result, error) {
	orderID := p.OrderID
	if orderID == "" {
		orderID = "DEP-" + p.RecordID
	}
	recordID := p.RecordID
	key := wallet.Key{UserID: p.ReferenceID, WalletType: wallet.Main, CoinID: p.CoinID}

	res := ResultApplied
	var bonuses []bonus
	err := r.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		inserted, err := tx.Record(ctx, &ledger.Transaction{
			UserID:     p.ReferenceID,
			Type:       ledger.TypeDeposit,
			Status:     ledger.StatusCompleted,
			CoinID:     p.CoinID,
			WalletType: wallet.Main,
			Amount:     p.Amount,
			Fee:        decimal.Zero,
			NetAmount:  p.Amount,
			OrderID:    orderID,
			RecordID:   &recordID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			res = ResultDuplicate
			return nil
		}

		if _, err := tx.Credit(ctx, key, p.Amount); err != nil {
			return err
		}

		claimed, referrerID, err := r.users.ClaimFirstDeposit(ctx, tx.Q(), p.ReferenceID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		bonuses, err = r.creditBonuses(ctx, tx, p, referrerID)
		return err
	})
	if err != nil {
		return "", err
	}

	if res == ResultDuplicate {
		logger.Info("duplicate deposit delivery", "record_id", p.RecordID, "user_id", p.ReferenceID)
		return res, nil
	}

	logger.Info("deposit credited", "record_id", p.RecordID, "user_id", p.ReferenceID, "coin_id", p.CoinID, "amount", p.Amount.String(), "bonuses", len(bonuses))
	r.notify(ctx, p.ReferenceID, "Deposit received",
		fmt.Sprintf("%s (coin %d) was credited to your main wallet.", p.Amount, p.CoinID))
	for _, b := range bonuses {
		r.notify(ctx, b.userID, "Bonus credited",
			fmt.Sprintf("A bonus of %s (coin %d) was credited to your main wallet.", b.amount, p.CoinID))
	}
	return res, nil
}

// creditBonuses pays the first-deposit bonus to the depositor and, when
// present, the referrer. Both rows key off the deposit's record id.
func (r *Reconciler) creditBonuses(ctx context.Context, tx *ledger.Tx, p *Payload, referrerID *string) ([]bonus, error) {
	var out []bonus

	pay := func(userID, orderID string, rate decimal.Decimal, counterparty *string) error {
		amount := p.Amount.Mul(rate)
		if !amount.IsPositive() {
			return nil
		}
		inserted, err := tx.Record(ctx, &ledger.Transaction{
			UserID:         userID,
			CounterpartyID: counterparty,
			Type:           ledger.TypeReferralBonus,
			Status:         ledger.StatusCompleted,
			CoinID:         p.CoinID,
			WalletType:     wallet.Main,
			Amount:         amount,
			Fee:            decimal.Zero,
			NetAmount:      amount,
			OrderID:        orderID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if _, err := tx.Credit(ctx, wallet.Key{UserID: userID, WalletType: wallet.Main, CoinID: p.CoinID}, amount); err != nil {
			return err
		}
		out = append(out, bonus{userID: userID, amount: amount})
		return nil
	}

	if err := pay(p.ReferenceID, "BONUS-"+p.RecordID, r.cfg.SelfBonusRate, nil); err != nil {
		return nil, err
	}
	if referrerID != nil && *referrerID != p.ReferenceID {
		depositor := p.ReferenceID
		if err := pay(*referrerID, "REF-"+p.RecordID, r.cfg.ReferrerBonusRate, &depositor); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reconciler) applyMassDeposit(ctx context.Context, p *Payload) (Result, error) {
	recordID := p.RecordID
	res := ResultApplied
	err := r.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		inserted, err := tx.Record(ctx, &ledger.Transaction{
			UserID:     ledger.PoolOwner,
			Type:       ledger.TypeMassDeposit,
			Status:     ledger.StatusCompleted,
			CoinID:     p.CoinID,
			WalletType: wallet.Main,
			Amount:     p.Amount,
			Fee:        decimal.Zero,
			NetAmount:  p.Amount,
			OrderID:    p.OrderID,
			RecordID:   &recordID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			res = ResultDuplicate
			return nil
		}
		_, err = tx.CreditPool(ctx, p.CoinID, p.Amount)
		return err
	})
	if err != nil {
		return "", err
	}

	logger.Info("mass deposit", "record_id", p.RecordID, "order_id", p.OrderID, "coin_id", p.CoinID, "amount", p.Amount.String(), "result", res)
	return res, nil
}

// ApplyWithdrawal hands the provider's verdict to the withdrawal workflow.
func (r *Reconciler) ApplyWithdrawal(ctx context.Context, h Headers, body []byte) (Result, error) {
	if err := r.Authenticate(h, body); err != nil {
		metrics.RecordWebhook("withdrawal", "unauthorized")
		logger.Warn("rejected withdrawal webhook", "error", err)
		return "", err
	}

	p, err := decode(body)
	if err != nil {
		return r.ignore("withdrawal", err, body), nil
	}
	if p.OrderID == "" {
		return r.ignore("withdrawal", fmt.Errorf("%w: missing orderId", errMalformedPayload), body), nil
	}

	var outcome withdrawal.Outcome
	switch p.Status {
	case StatusSuccess:
		outcome = withdrawal.OutcomeSuccess
	case StatusFailed:
		outcome = withdrawal.OutcomeFailed
	default:
		outcome = withdrawal.OutcomeProcessing
	}

	sr, err := r.settler.Settle(ctx, p.OrderID, p.RecordID, outcome)
	switch {
	case errors.Is(err, api.ErrNotFound), errors.Is(err, api.ErrValidation):
		return r.ignore("withdrawal", err, body), nil
	case err != nil:
		metrics.RecordWebhook("withdrawal", "error")
		return "", err
	}

	res := ResultApplied
	if sr == withdrawal.SettleDuplicate {
		res = ResultDuplicate
	}
	metrics.RecordWebhook("withdrawal", string(res))
	return res, nil
}

// ignore acknowledges an authenticated delivery that cannot be applied, so
// the provider stops retrying it.
func (r *Reconciler) ignore(kind string, cause error, body []byte) Result {
	logger.Warn("ignoring webhook", "kind", kind, "error", cause, "body", string(body))
	metrics.RecordWebhook(kind, string(ResultIgnored))
	return ResultIgnored
}

func (r *Reconciler) notify(ctx context.Context, userID, subject, body string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, userID, subject, body); err != nil {
		logger.Warn("failed to queue notification", "user_id", userID, "error", err)
	}
}
