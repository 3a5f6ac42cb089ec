package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Provider string

const (
	ProviderCard         Provider = "card-gateway"
	ProviderCrypto       Provider = "crypto-gateway"
	ProviderBankTransfer Provider = "bank-transfer"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderCard, ProviderCrypto, ProviderBankTransfer:
		return true
	}
	return false
}

// PaymentTransaction is one purchase attempt. CreditsGranted and Amount are frozen
// from the price table at initiation and never recomputed.
type PaymentTransaction struct {
	ID                  string          `json:"id" db:"id"`
	AccountID           string          `json:"account_id" db:"account_id"`
	Tier                string          `json:"tier" db:"tier"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	Currency            string          `json:"currency" db:"currency"`
	Status              PaymentStatus   `json:"status" db:"status"`
	Provider            Provider        `json:"provider" db:"provider"`
	ProviderReference   *string         `json:"provider_reference,omitempty" db:"provider_reference"`
	CheckoutURL         string          `json:"checkout_url,omitempty" db:"checkout_url"`
	CreditsGranted      int64           `json:"credits_granted" db:"credits_granted"`
	FailureReason       string          `json:"failure_reason,omitempty" db:"failure_reason"`
	ConfirmationPayload string          `json:"-" db:"confirmation_payload"`
	Metadata            Metadata        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
