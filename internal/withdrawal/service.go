// Package withdrawal runs user withdrawal requests through admin approval,
// external execution and provider settlement.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wtcoin/internal/api"
	"wtcoin/internal/ids"
	"wtcoin/internal/ledger"
	"wtcoin/internal/logger"
	"wtcoin/internal/metrics"
	"wtcoin/internal/provider"
	"wtcoin/internal/wallet"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequestID = fmt.Errorf("%w: request id must be 24 hex characters", api.ErrValidation)
	ErrRequestNotFound  = fmt.Errorf("%w: withdrawal request", api.ErrNotFound)
	ErrPendingExists    = fmt.Errorf("%w: a pending withdrawal for this coin already exists", api.ErrValidation)
	ErrNotPending       = fmt.Errorf("%w: withdrawal request is not pending", api.ErrInvalidState)
	ErrUnknownOrder     = fmt.Errorf("%w: withdrawal order", api.ErrNotFound)
	ErrRecordMismatch   = fmt.Errorf("%w: record id does not match the order", api.ErrValidation)
)

const (
	compensationAttempts = 3
	compensationBackoff  = 200 * time.Millisecond
)

// Provider executes withdrawals on the external payment processor.
type Provider interface {
	SubmitWithdrawal(ctx context.Context, order provider.WithdrawalOrder) (string, error)
}

// Notifier delivers user notifications and escalates critical conditions.
type Notifier interface {
	Notify(ctx context.Context, userID, subject, body string) error
	Alert(ctx context.Context, event string, fields map[string]interface{}) error
}

type Service interface {
	Submit(ctx context.Context, userID string, req SubmitRequest) (*Request, error)
	Approve(ctx context.Context, adminID, requestID string) (*Request, error)
	Decline(ctx context.Context, adminID, requestID, reason string) (*Request, error)
	Settle(ctx context.Context, orderID, recordID string, outcome Outcome) (SettleResult, error)
	MassWithdraw(ctx context.Context, adminID string, req MassWithdrawRequest) (*ledger.Transaction, error)
	Get(ctx context.Context, requestID string) (*Request, error)
	ListMine(ctx context.Context, userID string) ([]Request, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Request, error)
}

type Config struct {
	// ProviderTimeout bounds each provider call made during approval.
	ProviderTimeout time.Duration
	// MassPrefix marks order ids of Admin Wallet withdrawals.
	MassPrefix string
}

type service struct {
	ledger   *ledger.Ledger
	repo     Repository
	provider Provider
	notifier Notifier
	cfg      Config
}

func NewService(l *ledger.Ledger, repo Repository, p Provider, n Notifier, cfg Config) Service {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	if cfg.MassPrefix == "" {
		cfg.MassPrefix = "MASSW-"
	}
	return &service{ledger: l, repo: repo, provider: p, notifier: n, cfg: cfg}
}

func (s *service) Submit(ctx context.Context, userID string, req SubmitRequest) (*Request, error) {
	wt, err := wallet.ParseWalletType(req.WalletType)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ledger.ErrNonPositiveAmount
	}
	if req.Address == "" || req.Chain == "" {
		return nil, fmt.Errorf("%w: address and chain are required", api.ErrValidation)
	}

	pending, err := s.repo.HasPending(ctx, s.ledger.Reader(), userID, req.CoinID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPendingExists
	}

	key := wallet.Key{UserID: userID, WalletType: wt, CoinID: req.CoinID}
	account, err := s.ledger.Account(ctx, key)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(req.Amount) {
		return nil, wallet.ErrInsufficientBalance
	}

	quote := s.ledger.Fees().Quote(account, wt, req.Amount)
	r := &Request{
		ID:         ids.NewObjectID(),
		UserID:     userID,
		CoinID:     req.CoinID,
		WalletType: wt,
		Amount:     req.Amount,
		Fee:        quote.Fee,
		NetAmount:  quote.Net,
		Address:    req.Address,
		Chain:      req.Chain,
		Memo:       req.Memo,
		Status:     StatusPending,
	}

	err = s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		return s.repo.Create(ctx, tx.Q(), r)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordWithdrawal(string(StatusPending))
	logger.Info("withdrawal submitted", "request_id", r.ID, "user_id", userID, "coin_id", r.CoinID, "amount", r.Amount.String())
	return r, nil
}

// Approve locks the funds, hands the withdrawal to the provider and records
// its record id. If the provider call fails, times out or panics the lock is
// reversed and the request ends in failed before Approve returns.
func (s *service) Approve(ctx context.Context, adminID, requestID string) (*Request, error) {
	if !ids.IsObjectID(requestID) {
		return nil, ErrInvalidRequestID
	}

	orderID := ids.NewOrderID("WD-")
	var (
		req *Request
		ltx *ledger.Transaction
	)
	err := s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		r, err := s.repo.GetForUpdate(ctx, tx.Q(), requestID)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return ErrNotPending
		}

		// Volume attainment may have moved since submission, so the fee is
		// quoted again against the locked row.
		account, err := tx.Account(ctx, r.Key())
		if err != nil {
			return err
		}
		quote := s.ledger.Fees().Quote(account, r.WalletType, r.Amount)
		r.Fee, r.NetAmount = quote.Fee, quote.Net

		if _, err := tx.LockFunds(ctx, r.Key(), r.Amount); err != nil {
			return err
		}

		ok, err := s.repo.Transition(ctx, tx.Q(), r.ID, []Status{StatusPending}, StatusApproved, Change{
			ApprovedBy: &adminID,
			OrderID:    &orderID,
			Fee:        &quote.Fee,
			NetAmount:  &quote.Net,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}

		t := &ledger.Transaction{
			UserID:     r.UserID,
			Type:       ledger.TypeWithdrawal,
			Status:     ledger.StatusPending,
			CoinID:     r.CoinID,
			WalletType: r.WalletType,
			Amount:     r.Amount,
			Fee:        r.Fee,
			NetAmount:  r.NetAmount,
			OrderID:    orderID,
		}
		inserted, err := tx.Record(ctx, t)
		if err != nil {
			return err
		}
		if !inserted {
			return ledger.ErrDuplicateOrder
		}

		r.Status, r.ApprovedBy, r.OrderID = StatusApproved, &adminID, &orderID
		req, ltx = r, t
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordWithdrawal(string(StatusApproved))

	recordID, err := s.submit(ctx, provider.WithdrawalOrder{
		CoinID:  req.CoinID,
		Address: req.Address,
		OrderID: orderID,
		Chain:   req.Chain,
		Amount:  req.NetAmount.String(),
		Memo:    req.Memo,
	})
	if err != nil {
		logger.Warn("provider rejected withdrawal, returning funds", "request_id", req.ID, "order_id", orderID, "error", err)
		s.compensate(ctx, req, ltx, err)
		if !errors.Is(err, api.ErrExternalService) {
			err = fmt.Errorf("%w: %v", api.ErrExternalService, err)
		}
		return nil, err
	}

	err = s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		if _, err := s.repo.Transition(ctx, tx.Q(), req.ID, []Status{StatusApproved}, StatusProcessing, Change{RecordID: &recordID}); err != nil {
			return err
		}
		_, err := tx.Transition(ctx, ltx, []ledger.Status{ledger.StatusPending}, ledger.StatusProcessing, &recordID)
		return err
	})
	req.RecordID = &recordID
	if err != nil {
		// The provider accepted the order; its webhook settles it by order id.
		logger.Error("failed to record provider record id", "request_id", req.ID, "order_id", orderID, "record_id", recordID, "error", err)
		return req, nil
	}

	req.Status = StatusProcessing
	metrics.RecordWithdrawal(string(StatusProcessing))
	logger.Info("withdrawal sent to provider", "request_id", req.ID, "order_id", orderID, "record_id", recordID, "approved_by", adminID)
	return req, nil
}

// submit calls the provider under the approval timeout and turns a panic
// into an error so the caller always reaches compensation.
func (s *service) submit(ctx context.Context, order provider.WithdrawalOrder) (recordID string, err error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: provider call panicked: %v", api.ErrExternalService, p)
		}
	}()

	recordID, err = s.provider.SubmitWithdrawal(callCtx, order)
	if err == nil && callCtx.Err() != nil {
		err = fmt.Errorf("%w: provider call exceeded %s", api.ErrExternalService, s.cfg.ProviderTimeout)
	}
	return recordID, err
}

// compensate returns locked funds after a failed provider call. It runs
// detached from the request context and retries, since giving up leaves the
// user's funds locked with no external action pending.
func (s *service) compensate(ctx context.Context, req *Request, ltx *ledger.Transaction, cause error) {
	ctx = context.WithoutCancel(ctx)
	reason := cause.Error()

	var (
		err      error
		returned bool
	)
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		returned = false
		err = s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
			ok, err := s.repo.Transition(ctx, tx.Q(), req.ID, []Status{StatusApproved, StatusProcessing}, StatusFailed, Change{FailureReason: &reason})
			if err != nil || !ok {
				return err
			}
			if _, err := tx.UnlockFunds(ctx, req.Key(), req.Amount); err != nil {
				return err
			}
			if _, err := tx.Transition(ctx, ltx, []ledger.Status{ledger.StatusPending, ledger.StatusProcessing}, ledger.StatusFailed, nil); err != nil {
				return err
			}
			returned = true
			return nil
		})
		if err == nil {
			break
		}
		logger.Warn("compensation attempt failed", "request_id", req.ID, "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * compensationBackoff)
	}

	if err != nil {
		metrics.RecordCompensationFailure()
		s.escalate(ctx, "withdrawal_compensation_failed", map[string]interface{}{
			"request_id": req.ID,
			"user_id":    req.UserID,
			"coin_id":    req.CoinID,
			"amount":     req.Amount.String(),
			"order_id":   ltx.OrderID,
			"error":      err.Error(),
		})
		return
	}
	if !returned {
		return
	}

	req.Status, req.FailureReason = StatusFailed, &reason
	metrics.RecordWithdrawal(string(StatusFailed))
	s.notify(ctx, req.UserID, "Withdrawal failed",
		fmt.Sprintf("Your withdrawal of %s (coin %d) could not be executed. The funds were returned to your %s wallet.", req.Amount, req.CoinID, req.WalletType))
}

func (s *service) Decline(ctx context.Context, adminID, requestID, reason string) (*Request, error) {
	if !ids.IsObjectID(requestID) {
		return nil, ErrInvalidRequestID
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: decline reason is required", api.ErrValidation)
	}

	var req *Request
	err := s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		r, err := s.repo.GetForUpdate(ctx, tx.Q(), requestID)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return ErrNotPending
		}

		ok, err := s.repo.Transition(ctx, tx.Q(), r.ID, []Status{StatusPending}, StatusDeclined, Change{ApprovedBy: &adminID, DeclineReason: &reason})
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}

		r.Status, r.ApprovedBy, r.DeclineReason = StatusDeclined, &adminID, &reason
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordWithdrawal(string(StatusDeclined))
	logger.Info("withdrawal declined", "request_id", req.ID, "declined_by", adminID)
	s.notify(ctx, req.UserID, "Withdrawal declined",
		fmt.Sprintf("Your withdrawal of %s (coin %d) was declined: %s", req.Amount, req.CoinID, reason))
	return req, nil
}

// Settle applies the provider's verdict on an executed withdrawal. Each
// order settles once; repeated deliveries report SettleDuplicate.
func (s *service) Settle(ctx context.Context, orderID, recordID string, outcome Outcome) (SettleResult, error) {
	var rid *string
	if recordID != "" {
		rid = &recordID
	}

	result := SettleApplied
	var ltx *ledger.Transaction
	err := s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		t, err := tx.TransactionByOrderID(ctx, orderID)
		if errors.Is(err, ledger.ErrTransactionNotFound) && recordID != "" {
			t, err = tx.TransactionByRecordID(ctx, recordID)
		}
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return ErrUnknownOrder
		}
		if err != nil {
			return err
		}
		if t.Type != ledger.TypeWithdrawal && t.Type != ledger.TypeMassWithdrawal {
			return ErrUnknownOrder
		}
		if rid != nil && t.RecordID != nil && *t.RecordID != recordID {
			return ErrRecordMismatch
		}
		ltx = t

		if t.Status.Terminal() {
			result = SettleDuplicate
			return nil
		}

		var to ledger.Status
		switch outcome {
		case OutcomeProcessing:
			to = ledger.StatusProcessing
		case OutcomeSuccess:
			to = ledger.StatusCompleted
		case OutcomeFailed:
			to = ledger.StatusFailed
		default:
			return fmt.Errorf("%w: unknown outcome %q", api.ErrValidation, outcome)
		}
		if outcome == OutcomeProcessing && t.Status == ledger.StatusProcessing {
			result = SettleDuplicate
			return nil
		}

		ok, err := tx.Transition(ctx, t, []ledger.Status{ledger.StatusPending, ledger.StatusProcessing}, to, rid)
		if err != nil {
			return err
		}
		if !ok {
			result = SettleDuplicate
			return nil
		}

		if t.Type == ledger.TypeMassWithdrawal {
			if outcome == OutcomeFailed {
				_, err = tx.CreditPool(ctx, t.CoinID, t.Amount)
			}
			return err
		}

		key := wallet.Key{UserID: t.UserID, WalletType: t.WalletType, CoinID: t.CoinID}
		switch outcome {
		case OutcomeSuccess:
			_, err = tx.SettleLocked(ctx, key, t.Amount)
		case OutcomeFailed:
			_, err = tx.UnlockFunds(ctx, key, t.Amount)
		}
		if err != nil {
			return err
		}
		return s.transitionByOrder(ctx, tx, orderID, outcome, rid)
	})
	if err != nil {
		return "", err
	}

	if result == SettleDuplicate {
		if outcome == OutcomeSuccess && ltx.Status == ledger.StatusFailed {
			// The provider paid out an order whose funds were already returned.
			s.escalate(ctx, "withdrawal_paid_after_compensation", map[string]interface{}{
				"order_id":  orderID,
				"record_id": recordID,
				"user_id":   ltx.UserID,
				"amount":    ltx.Amount.String(),
			})
		}
		return result, nil
	}

	logger.Info("withdrawal settled", "order_id", orderID, "record_id", recordID, "outcome", outcome)
	switch outcome {
	case OutcomeSuccess:
		metrics.RecordWithdrawal(string(StatusCompleted))
		if ltx.Type == ledger.TypeWithdrawal {
			s.notify(ctx, ltx.UserID, "Withdrawal completed",
				fmt.Sprintf("Your withdrawal of %s (coin %d) was sent.", ltx.NetAmount, ltx.CoinID))
		}
	case OutcomeFailed:
		metrics.RecordWithdrawal(string(StatusFailed))
		if ltx.Type == ledger.TypeWithdrawal {
			s.notify(ctx, ltx.UserID, "Withdrawal failed",
				fmt.Sprintf("Your withdrawal of %s (coin %d) failed. The funds were returned to your %s wallet.", ltx.Amount, ltx.CoinID, ltx.WalletType))
		}
	}
	return result, nil
}

func (s *service) transitionByOrder(ctx context.Context, tx *ledger.Tx, orderID string, outcome Outcome, rid *string) error {
	r, err := s.repo.GetByOrderID(ctx, tx.Q(), orderID)
	if errors.Is(err, ErrRequestNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	change := Change{RecordID: rid}
	to := StatusProcessing
	switch outcome {
	case OutcomeSuccess:
		to = StatusCompleted
	case OutcomeFailed:
		to = StatusFailed
		reason := "provider reported failure"
		change.FailureReason = &reason
	}
	_, err = s.repo.Transition(ctx, tx.Q(), r.ID, []Status{StatusApproved, StatusProcessing}, to, change)
	return err
}

// MassWithdraw sends Admin Wallet funds to an external address. The pool is
// debited up front and credited back if the provider refuses the order.
func (s *service) MassWithdraw(ctx context.Context, adminID string, req MassWithdrawRequest) (*ledger.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ledger.ErrNonPositiveAmount
	}
	if req.Address == "" || req.Chain == "" {
		return nil, fmt.Errorf("%w: address and chain are required", api.ErrValidation)
	}

	t := &ledger.Transaction{
		UserID:     ledger.PoolOwner,
		Type:       ledger.TypeMassWithdrawal,
		Status:     ledger.StatusPending,
		CoinID:     req.CoinID,
		WalletType: wallet.Main,
		Amount:     req.Amount,
		Fee:        decimal.Zero,
		NetAmount:  req.Amount,
		OrderID:    ids.NewOrderID(s.cfg.MassPrefix),
	}
	err := s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		if _, err := tx.DebitPool(ctx, req.CoinID, req.Amount); err != nil {
			return err
		}
		inserted, err := tx.Record(ctx, t)
		if err != nil {
			return err
		}
		if !inserted {
			return ledger.ErrDuplicateOrder
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordID, err := s.submit(ctx, provider.WithdrawalOrder{
		CoinID:  req.CoinID,
		Address: req.Address,
		OrderID: t.OrderID,
		Chain:   req.Chain,
		Amount:  req.Amount.String(),
		Memo:    req.Memo,
	})
	if err != nil {
		detached := context.WithoutCancel(ctx)
		cerr := s.ledger.Atomically(detached, func(tx *ledger.Tx) error {
			ok, err := tx.Transition(detached, t, []ledger.Status{ledger.StatusPending}, ledger.StatusFailed, nil)
			if err != nil || !ok {
				return err
			}
			_, err = tx.CreditPool(detached, t.CoinID, t.Amount)
			return err
		})
		if cerr != nil {
			metrics.RecordCompensationFailure()
			s.escalate(detached, "mass_withdrawal_compensation_failed", map[string]interface{}{
				"order_id": t.OrderID,
				"coin_id":  t.CoinID,
				"amount":   t.Amount.String(),
				"error":    cerr.Error(),
			})
		}
		if !errors.Is(err, api.ErrExternalService) {
			err = fmt.Errorf("%w: %v", api.ErrExternalService, err)
		}
		return nil, err
	}

	err = s.ledger.Atomically(ctx, func(tx *ledger.Tx) error {
		_, err := tx.Transition(ctx, t, []ledger.Status{ledger.StatusPending}, ledger.StatusProcessing, &recordID)
		return err
	})
	if err != nil {
		logger.Error("failed to record provider record id", "order_id", t.OrderID, "record_id", recordID, "error", err)
	}

	logger.Info("mass withdrawal sent to provider", "order_id", t.OrderID, "record_id", recordID, "coin_id", t.CoinID, "amount", t.Amount.String(), "admin_id", adminID)
	return t, nil
}

func (s *service) Get(ctx context.Context, requestID string) (*Request, error) {
	if !ids.IsObjectID(requestID) {
		return nil, ErrInvalidRequestID
	}
	return s.repo.GetByID(ctx, s.ledger.Reader(), requestID)
}

func (s *service) ListMine(ctx context.Context, userID string) ([]Request, error) {
	return s.repo.ListByUser(ctx, s.ledger.Reader(), userID)
}

func (s *service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Request, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByStatus(ctx, s.ledger.Reader(), status, limit, offset)
}

func (s *service) notify(ctx context.Context, userID, subject, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, subject, body); err != nil {
		logger.Warn("failed to queue notification", "user_id", userID, "error", err)
	}
}

// escalate reports stuck or mismatched funds. These need an operator.
func (s *service) escalate(ctx context.Context, event string, fields map[string]interface{}) {
	logger.WithFields(fields).Errorw("CRITICAL: "+event, "event", event)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Alert(ctx, event, fields); err != nil {
		logger.WithError(err).Errorw("failed to raise alert", "event", event)
	}
}
