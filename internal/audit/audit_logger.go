package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/logging"
)

const (
	EventLedgerEntry = "LEDGER_ENTRY"
	EventSettlement  = "SETTLEMENT"
	EventRefund      = "REFUND"
	EventAnomaly     = "RECONCILIATION_ANOMALY"
	EventError       = "ERROR"
)

type Event struct {
	Timestamp     time.Time      `json:"timestamp"`
	EventType     string         `json:"event_type"`
	TransactionID string         `json:"transaction_id"`
	AccountID     string         `json:"account_id"`
	Amount        int64          `json:"amount"`
	Status        string         `json:"status"`
	Details       map[string]any `json:"details"`
}

// Logger writes one structured line per audited event under the "audit" component.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{log: logging.Component(l, "audit")}
}

func (a *Logger) LogLedgerEntry(entryID int64, accountID string, delta, resultingBalance int64, reason string) {
	a.emit(Event{
		EventType: EventLedgerEntry,
		AccountID: accountID,
		Amount:    delta,
		Status:    "APPLIED",
		Details: map[string]any{
			"entry_id":          entryID,
			"reason":            reason,
			"resulting_balance": resultingBalance,
		},
	})
}

func (a *Logger) LogSettlement(txID, accountID string, credits int64, status string) {
	a.emit(Event{
		EventType:     EventSettlement,
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        credits,
		Status:        status,
	})
}

func (a *Logger) LogRefund(txID, accountID string, clawedBack, shortfall int64) {
	a.emit(Event{
		EventType:     EventRefund,
		TransactionID: txID,
		AccountID:     accountID,
		Amount:        clawedBack,
		Status:        "REFUNDED",
		Details:       map[string]any{"shortfall": shortfall},
	})
}

// LogAnomaly records something an operator has to reconcile by hand.
func (a *Logger) LogAnomaly(txID, kind string, details map[string]any) {
	a.emit(Event{
		EventType:     EventAnomaly,
		TransactionID: txID,
		Status:        kind,
		Details:       details,
	})
}

func (a *Logger) LogError(txID, accountID string, err error) {
	a.emit(Event{
		EventType:     EventError,
		TransactionID: txID,
		AccountID:     accountID,
		Status:        "FAILED",
		Details:       map[string]any{"error": err.Error()},
	})
}

func (a *Logger) emit(e Event) {
	e.Timestamp = time.Now().UTC()

	level := zerolog.InfoLevel
	switch e.EventType {
	case EventAnomaly:
		level = zerolog.WarnLevel
	case EventError:
		level = zerolog.ErrorLevel
	}

	ev := a.log.WithLevel(level).
		Time("event_time", e.Timestamp).
		Str("event_type", e.EventType).
		Str("status", e.Status).
		Int64("amount", e.Amount)
	if e.TransactionID != "" {
		ev = ev.Str("transaction_id", e.TransactionID)
	}
	if e.AccountID != "" {
		ev = ev.Str("account_id", e.AccountID)
	}
	if len(e.Details) > 0 {
		ev = ev.Interface("details", e.Details)
	}
	ev.Msg("AUDIT")
}
