package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/logging"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

// AuditLogger receives one event per committed balance change, settlement, refund
// and reconciliation anomaly.
type AuditLogger interface {
	LogLedgerEntry(entryID int64, accountID string, delta, resultingBalance int64, reason string)
	LogSettlement(txID, accountID string, credits int64, status string)
	LogRefund(txID, accountID string, clawedBack, shortfall int64)
	LogAnomaly(txID, kind string, details map[string]any)
	LogError(txID, accountID string, err error)
}

// Mutation describes one grant or deduction. IdempotencyKey is optional; when set,
// a second mutation with the same key returns the first one's result.
type Mutation struct {
	AccountID      string
	Amount         int64
	Reason         string
	Metadata       models.Metadata
	IdempotencyKey string
}

type LedgerResult struct {
	EntryID    int64 `json:"entry_id,omitempty"`
	Delta      int64 `json:"delta"`
	NewBalance int64 `json:"new_balance"`
	Replayed   bool  `json:"replayed,omitempty"`
}

// ReplayReport is the outcome of re-summing an account's ledger from zero.
type ReplayReport struct {
	AccountID       string `json:"account_id"`
	Balance         int64  `json:"balance"`
	Reconstructed   int64  `json:"reconstructed"`
	Entries         int    `json:"entries"`
	Consistent      bool   `json:"consistent"`
	FirstDivergence int64  `json:"first_divergence,omitempty"`
}

const (
	defaultOpTimeout   = 5 * time.Second
	defaultHistorySize = 20
	readAttempts       = 3
)

// CreditLedger is the only writer of account balances. Every mutation locks the
// account row, appends exactly one entry and moves the balance in the same
// transaction.
type CreditLedger struct {
	store      store.Store
	audit      AuditLogger
	log        zerolog.Logger
	opTimeout  time.Duration
	historyMax int
}

func NewCreditLedger(st store.Store, audit AuditLogger, log zerolog.Logger, opTimeout time.Duration, historyMax int) *CreditLedger {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	if historyMax <= 0 {
		historyMax = 100
	}
	return &CreditLedger{
		store:      st,
		audit:      audit,
		log:        logging.Component(log, "ledger"),
		opTimeout:  opTimeout,
		historyMax: historyMax,
	}
}

// Grant adds m.Amount credits.
func (l *CreditLedger) Grant(ctx context.Context, m Mutation) (*LedgerResult, error) {
	return l.mutate(ctx, m, func(ctx context.Context, tx store.Tx) (*LedgerResult, error) {
		return l.GrantTx(ctx, tx, m)
	})
}

// Deduct removes m.Amount credits or fails with *InsufficientCreditsError, leaving
// no entry behind.
func (l *CreditLedger) Deduct(ctx context.Context, m Mutation) (*LedgerResult, error) {
	return l.mutate(ctx, m, func(ctx context.Context, tx store.Tx) (*LedgerResult, error) {
		return l.DeductTx(ctx, tx, m)
	})
}

// GrantTx grants inside the caller's transaction. The caller commits and audits.
func (l *CreditLedger) GrantTx(ctx context.Context, tx store.Tx, m Mutation) (*LedgerResult, error) {
	return l.apply(ctx, tx, m, 1, false)
}

func (l *CreditLedger) DeductTx(ctx context.Context, tx store.Tx, m Mutation) (*LedgerResult, error) {
	return l.apply(ctx, tx, m, -1, false)
}

// DeductUpToTx claws back min(balance, m.Amount). With a zero balance nothing is
// written and the result has Delta 0.
func (l *CreditLedger) DeductUpToTx(ctx context.Context, tx store.Tx, m Mutation) (*LedgerResult, error) {
	return l.apply(ctx, tx, m, -1, true)
}

// InTx runs fn in one store transaction detached from ctx cancellation and bounded
// by the ledger timeout. Other services use it so their status changes commit
// together with the ledger entries they cause.
func (l *CreditLedger) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opTimeout)
	defer cancel()

	err := l.store.WithTx(opCtx, func(tx store.Tx) error {
		return fn(opCtx, tx)
	})
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return storeErr(err)
}

func (l *CreditLedger) mutate(ctx context.Context, m Mutation, fn func(ctx context.Context, tx store.Tx) (*LedgerResult, error)) (*LedgerResult, error) {
	var res *LedgerResult
	err := l.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = fn(ctx, tx)
		return err
	})

	// Lost a race on the idempotency key: the winner's entry is the answer.
	if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		existing, lookupErr := l.store.GetEntryByIdempotencyKey(context.WithoutCancel(ctx), m.IdempotencyKey)
		if lookupErr != nil {
			return nil, storeErr(lookupErr)
		}
		return replayFor(m, existing)
	}
	if err != nil {
		if !IsClientError(err) {
			l.log.Error().Err(err).Str("account_id", m.AccountID).Str("reason", m.Reason).Msg("ledger mutation failed")
		}
		return nil, err
	}

	l.Applied(m, res)
	return res, nil
}

// Applied audits a committed result; replays and empty claw-backs are skipped.
func (l *CreditLedger) Applied(m Mutation, res *LedgerResult) {
	if res == nil || res.Replayed || res.Delta == 0 {
		return
	}
	l.audit.LogLedgerEntry(res.EntryID, m.AccountID, res.Delta, res.NewBalance, m.Reason)
	l.log.Debug().
		Str("account_id", m.AccountID).
		Int64("delta", res.Delta).
		Int64("balance", res.NewBalance).
		Str("reason", m.Reason).
		Msg("ledger entry applied")
}

func (l *CreditLedger) apply(ctx context.Context, tx store.Tx, m Mutation, sign int64, upTo bool) (*LedgerResult, error) {
	if m.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if m.Reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrMalformedPayload)
	}

	acct, err := tx.LockAccount(ctx, m.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, m.AccountID)
	}
	if err != nil {
		return nil, err
	}

	// Checked under the account lock, so a concurrent holder of the same key
	// has either committed (found here) or not started.
	if m.IdempotencyKey != "" {
		existing, err := tx.GetEntryByIdempotencyKey(ctx, m.IdempotencyKey)
		if err == nil {
			return replayFor(m, existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	delta := sign * m.Amount
	if sign < 0 && acct.Balance < m.Amount {
		if !upTo {
			return nil, &InsufficientCreditsError{AccountID: acct.ID, Balance: acct.Balance, Required: m.Amount}
		}
		delta = -acct.Balance
	}
	if delta == 0 {
		return &LedgerResult{NewBalance: acct.Balance}, nil
	}

	meta := m.Metadata.Clone()
	if m.IdempotencyKey != "" {
		meta[models.MetaIdempotencyKey] = m.IdempotencyKey
	}

	entry := &models.LedgerEntry{
		AccountID:        acct.ID,
		Delta:            delta,
		Reason:           m.Reason,
		ResultingBalance: acct.Balance + delta,
		IdempotencyKey:   m.IdempotencyKey,
		Metadata:         meta,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.UpdateBalance(ctx, acct.ID, entry.ResultingBalance, acct.Version); err != nil {
		return nil, err
	}

	return &LedgerResult{EntryID: entry.ID, Delta: delta, NewBalance: entry.ResultingBalance}, nil
}

// replayFor answers a repeated mutation with the entry already recorded under its
// key. A key recorded for another account is never replayed.
func replayFor(m Mutation, e *models.LedgerEntry) (*LedgerResult, error) {
	if e.AccountID != m.AccountID {
		return nil, fmt.Errorf("%w: idempotency key %q belongs to another account", ErrMalformedPayload, m.IdempotencyKey)
	}
	return &LedgerResult{EntryID: e.ID, Delta: e.Delta, NewBalance: e.ResultingBalance, Replayed: true}, nil
}

// GetBalance returns the current balance. Reads are retried on transient failures.
func (l *CreditLedger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	var acct *models.Account
	err := retryRead(ctx, func() error {
		var err error
		acct, err = l.store.GetAccount(ctx, accountID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// GetHistory returns up to limit entries, most recent first.
func (l *CreditLedger) GetHistory(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	if limit > l.historyMax {
		limit = l.historyMax
	}

	if _, err := l.GetBalance(ctx, accountID); err != nil {
		return nil, err
	}

	var entries []models.LedgerEntry
	err := retryRead(ctx, func() error {
		var err error
		entries, err = l.store.ListEntries(ctx, accountID, limit)
		return err
	})
	return entries, err
}

// Replay sums every entry in creation order and compares the result, and each
// entry's resulting balance, against the stored balance.
func (l *CreditLedger) Replay(ctx context.Context, accountID string) (*ReplayReport, error) {
	balance, err := l.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var entries []models.LedgerEntry
	err = retryRead(ctx, func() error {
		var err error
		entries, err = l.store.ListAllEntries(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{AccountID: accountID, Balance: balance, Entries: len(entries)}
	for _, e := range entries {
		report.Reconstructed += e.Delta
		if report.FirstDivergence == 0 && report.Reconstructed != e.ResultingBalance {
			report.FirstDivergence = e.ID
		}
	}
	report.Consistent = report.Reconstructed == balance && report.FirstDivergence == 0

	if !report.Consistent {
		l.audit.LogAnomaly("", "ledger_replay_mismatch", map[string]any{
			"account_id":       accountID,
			"balance":          balance,
			"reconstructed":    report.Reconstructed,
			"first_divergence": report.FirstDivergence,
		})
	}
	return report, nil
}

func retryRead(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		err = storeErr(fn())
		if err == nil || !IsRetryable(err) || errors.Is(err, ErrTimeout) {
			return err
		}
		select {
		case <-ctx.Done():
			return storeErr(ctx.Err())
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}
