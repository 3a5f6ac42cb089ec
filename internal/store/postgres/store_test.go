package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountRowColumns = []string{"id", "email", "role", "balance", "version", "created_at", "updated_at"}

func TestStore_LockAccountAndUpdateBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	t.Run("successful update", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1 FOR UPDATE")).
			WithArgs("acct-1").
			WillReturnRows(sqlmock.NewRows(accountRowColumns).
				AddRow("acct-1", "a@example.com", "user", 5, 3, time.Now(), time.Now()))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WithArgs(int64(4), sqlmock.AnyArg(), "acct-1", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.WithTx(ctx, func(tx store.Tx) error {
			acct, err := tx.LockAccount(ctx, "acct-1")
			if err != nil {
				return err
			}
			assert.Equal(t, int64(5), acct.Balance)
			assert.Equal(t, models.RoleUser, acct.Role)
			return tx.UpdateBalance(ctx, acct.ID, acct.Balance-1, acct.Version)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WithArgs(int64(4), sqlmock.AnyArg(), "acct-1", 3).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.UpdateBalance(ctx, "acct-1", 4, 3)
		})
		assert.ErrorIs(t, err, store.ErrConcurrentModification)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1 FOR UPDATE")).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(accountRowColumns))
		mock.ExpectRollback()

		err := s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.LockAccount(ctx, "ghost")
			return err
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_InsertEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	t.Run("assigns id", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WithArgs("acct-1", int64(-1), models.ReasonGeneration, int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		mock.ExpectCommit()

		entry := &models.LedgerEntry{AccountID: "acct-1", Delta: -1, Reason: models.ReasonGeneration, ResultingBalance: 2}
		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertEntry(ctx, entry)
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(42), entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate idempotency key", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_entries_idempotency_key_key"})
		mock.ExpectRollback()

		err := s.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertEntry(ctx, &models.LedgerEntry{
				AccountID: "acct-1", Delta: 20, Reason: "payment:starter", ResultingBalance: 20, IdempotencyKey: "tx-1",
			})
		})
		assert.ErrorIs(t, err, store.ErrDuplicateIdempotencyKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_LockPaymentByReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	ctx := context.Background()
	completedAt := time.Now()

	columns := []string{"id", "account_id", "tier", "amount", "currency", "status", "provider", "provider_reference",
		"checkout_url", "credits_granted", "failure_reason", "confirmation_payload", "metadata",
		"created_at", "updated_at", "completed_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE provider = $1 AND (id = $2 OR provider_reference = $2)")).
		WithArgs("card-gateway", "ref-9").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"tx-1", "acct-1", "starter", "5.00", "USD", "completed", "card-gateway", "ref-9",
			"https://checkout.example/abc", 20, "", "{}", []byte(`{"source":"web"}`),
			time.Now(), time.Now(), completedAt))
	mock.ExpectCommit()

	var got *models.PaymentTransaction
	err = s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		got, err = tx.LockPaymentByReference(ctx, models.ProviderCard, "ref-9")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, got.Status)
	assert.True(t, decimal.RequireFromString("5").Equal(got.Amount))
	require.NotNil(t, got.ProviderReference)
	assert.Equal(t, "ref-9", *got.ProviderReference)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "web", got.Metadata["source"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetCapacityLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	t.Run("accepted", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE beta_capacity")).
			WithArgs(150).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.SetCapacityLimit(context.Background(), 150))
	})

	t.Run("below current admissions", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE beta_capacity")).
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, s.SetCapacityLimit(context.Background(), 1), store.ErrCapacityExceeded)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendWaitlist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waiting_list")).
		WithArgs("late@example.com", "acct-101", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waiting_list")).
		WithArgs("late@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	pos, err := New(db).AppendWaitlist(context.Background(), "late@example.com", "acct-101")
	assert.NoError(t, err)
	assert.Equal(t, 7, pos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"check violation on capacity", &pq.Error{Code: "23514", Constraint: "beta_capacity_check"}, store.ErrCapacityExceeded},
		{"other unique violation", &pq.Error{Code: "23505", Constraint: "accounts_pkey"}, store.ErrAlreadyExists},
		{"admin shutdown", &pq.Error{Code: "57P01"}, store.ErrUnavailable},
		{"connection failure", &pq.Error{Code: "08006"}, store.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.in), tt.want)
		})
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, translate(plain))
	assert.NoError(t, translate(nil))
}
