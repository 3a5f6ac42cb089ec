package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTier is read at initiation time only; later edits never reach pending purchases.
type PriceTier struct {
	Tier       string          `json:"tier" db:"tier" validate:"required,alphanum,max=32"`
	Credits    int64           `json:"credits" db:"credits" validate:"required,gt=0"`
	PriceUSD   decimal.Decimal `json:"price_usd" db:"price_usd"`
	PriceLocal decimal.Decimal `json:"price_local" db:"price_local"`
	IsActive   bool            `json:"is_active" db:"is_active"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}
