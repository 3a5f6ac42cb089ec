package models

import (
	"time"
)

const (
	ReasonGeneration       = "generation"
	ReasonGenerationRefund = "generation-refund"
	ReasonSignupBonus      = "signup-bonus"
	ReasonPaymentPrefix    = "payment:"
	ReasonRefundPrefix     = "refund:"
)

// MetaIdempotencyKey is the metadata key mirroring LedgerEntry.IdempotencyKey.
const MetaIdempotencyKey = "idempotency_key"

// LedgerEntry is an immutable record of one balance change. Entries are never
// updated or deleted; summing Delta in ID order reproduces the account balance.
type LedgerEntry struct {
	ID               int64     `json:"id" db:"id"`
	AccountID        string    `json:"account_id" db:"account_id"`
	Delta            int64     `json:"delta" db:"delta"`
	Reason           string    `json:"reason" db:"reason"`
	ResultingBalance int64     `json:"resulting_balance" db:"resulting_balance"`
	IdempotencyKey   string    `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Metadata         Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
