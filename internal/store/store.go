// Package store defines persistence for accounts, the append-only ledger, payment
// transactions, price tiers and the beta capacity counter.
//
// All balance and status mutations go through Tx inside Store.WithTx. Rows returned
// by the Lock* methods stay locked until the surrounding transaction ends, which is
// what serializes concurrent grants and deductions on one account.
package store

import (
	"context"

	"github.com/sitecraft/backend/internal/models"
)

// Store is the transactional entry point plus read-only queries.
type Store interface {
	// WithTx runs fn inside one database transaction. A nil return commits,
	// anything else rolls back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	// ListEntries returns the newest entries first.
	ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)
	// ListAllEntries returns every entry for the account in creation order.
	ListAllEntries(ctx context.Context, accountID string) ([]models.LedgerEntry, error)
	GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error)

	GetPayment(ctx context.Context, txID string) (*models.PaymentTransaction, error)
	FindPaymentByReference(ctx context.Context, provider models.Provider, reference string) (*models.PaymentTransaction, error)
	ListPayments(ctx context.Context, accountID string, limit int) ([]models.PaymentTransaction, error)

	GetPriceTier(ctx context.Context, tier string) (*models.PriceTier, error)
	ListPriceTiers(ctx context.Context, activeOnly bool) ([]models.PriceTier, error)
	SavePriceTier(ctx context.Context, tier models.PriceTier) error

	GetCapacity(ctx context.Context) (*models.BetaCapacity, error)
	SetCapacityLimit(ctx context.Context, maxFreeUsers int) error
	// AppendWaitlist enqueues the requester and returns the 1-based queue position.
	// Re-adding an existing email returns its original position.
	AppendWaitlist(ctx context.Context, email, accountID string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx carries the mutations that must happen under a transaction.
type Tx interface {
	LockAccount(ctx context.Context, accountID string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	// UpdateBalance fails with ErrConcurrentModification if version moved.
	UpdateBalance(ctx context.Context, accountID string, balance int64, version int) error
	// InsertEntry assigns entry.ID and entry.CreatedAt. A reused idempotency key
	// yields ErrDuplicateIdempotencyKey.
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error)

	CreatePayment(ctx context.Context, payment *models.PaymentTransaction) error
	LockPayment(ctx context.Context, txID string) (*models.PaymentTransaction, error)
	LockPaymentByReference(ctx context.Context, provider models.Provider, reference string) (*models.PaymentTransaction, error)
	UpdatePayment(ctx context.Context, payment *models.PaymentTransaction) error

	LockCapacity(ctx context.Context) (*models.BetaCapacity, error)
	UpdateCapacity(ctx context.Context, currentFreeUsers int) error
}
