package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sitecraft/backend/internal/models"
	"github.com/sitecraft/backend/internal/store"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store implements store.Store on PostgreSQL. Row locks come from SELECT ... FOR UPDATE
// inside WithTx.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Accounts & ledger ====================

const accountColumns = `id, COALESCE(email, ''), role, balance, version, created_at, updated_at`

const entryColumns = `id, account_id, delta, reason, resulting_balance, COALESCE(idempotency_key, ''), metadata, created_at`

func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func (s *Store) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectEntries(rows)
}

func (s *Store) ListAllEntries(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, translate(err)
	}
	return collectEntries(rows)
}

func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return getEntryByKey(ctx, s.db, key)
}

// ==================== Payments ====================

const paymentColumns = `id, account_id, tier, amount, currency, status, provider, provider_reference,
	COALESCE(checkout_url, ''), credits_granted, COALESCE(failure_reason, ''),
	COALESCE(confirmation_payload, ''), metadata, created_at, updated_at, completed_at`

func (s *Store) GetPayment(ctx context.Context, txID string) (*models.PaymentTransaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE id = $1`, txID)
	return scanPayment(row)
}

func (s *Store) FindPaymentByReference(ctx context.Context, provider models.Provider, reference string) (*models.PaymentTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE provider = $1 AND (id = $2 OR provider_reference = $2)
		LIMIT 1`, string(provider), reference)
	return scanPayment(row)
}

func (s *Store) ListPayments(ctx context.Context, accountID string, limit int) ([]models.PaymentTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	payments := []models.PaymentTransaction{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, translate(rows.Err())
}

// ==================== Pricing ====================

func (s *Store) GetPriceTier(ctx context.Context, tier string) (*models.PriceTier, error) {
	var pt models.PriceTier
	err := s.db.QueryRowContext(ctx, `
		SELECT tier, credits, price_usd, price_local, is_active, updated_at
		FROM price_tiers
		WHERE tier = $1`, tier).Scan(&pt.Tier, &pt.Credits, &pt.PriceUSD, &pt.PriceLocal, &pt.IsActive, &pt.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &pt, nil
}

func (s *Store) ListPriceTiers(ctx context.Context, activeOnly bool) ([]models.PriceTier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, credits, price_usd, price_local, is_active, updated_at
		FROM price_tiers
		WHERE is_active OR NOT $1
		ORDER BY credits ASC`, activeOnly)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	tiers := []models.PriceTier{}
	for rows.Next() {
		var pt models.PriceTier
		if err := rows.Scan(&pt.Tier, &pt.Credits, &pt.PriceUSD, &pt.PriceLocal, &pt.IsActive, &pt.UpdatedAt); err != nil {
			return nil, translate(err)
		}
		tiers = append(tiers, pt)
	}
	return tiers, translate(rows.Err())
}

func (s *Store) SavePriceTier(ctx context.Context, pt models.PriceTier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_tiers (tier, credits, price_usd, price_local, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tier) DO UPDATE
		SET credits = EXCLUDED.credits, price_usd = EXCLUDED.price_usd,
		    price_local = EXCLUDED.price_local, is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at`,
		pt.Tier, pt.Credits, pt.PriceUSD, pt.PriceLocal, pt.IsActive, time.Now().UTC())
	return translate(err)
}

// ==================== Capacity & waitlist ====================

func (s *Store) GetCapacity(ctx context.Context) (*models.BetaCapacity, error) {
	var c models.BetaCapacity
	err := s.db.QueryRowContext(ctx, `SELECT max_free_users, current_free_users FROM beta_capacity WHERE id = 1`).
		Scan(&c.MaxFreeUsers, &c.CurrentFreeUsers)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) SetCapacityLimit(ctx context.Context, maxFreeUsers int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE beta_capacity
		SET max_free_users = $1
		WHERE id = 1 AND current_free_users <= $1`, maxFreeUsers)
	if err != nil {
		return translate(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if rowsAffected == 0 {
		return store.ErrCapacityExceeded
	}
	return nil
}

func (s *Store) AppendWaitlist(ctx context.Context, email, accountID string) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waiting_list (email, account_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING`, email, accountID, time.Now().UTC())
	if err != nil {
		return 0, translate(err)
	}

	var position int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM waiting_list
		WHERE id <= (SELECT id FROM waiting_list WHERE email = $1)`, email).Scan(&position)
	if err != nil {
		return 0, translate(err)
	}
	return position, nil
}

// ==================== Transaction-scoped operations ====================

type tx struct {
	q querier
}

func (t *tx) LockAccount(ctx context.Context, accountID string) (*models.Account, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	return scanAccount(row)
}

func (t *tx) CreateAccount(ctx context.Context, a *models.Account) error {
	now := time.Now().UTC()
	if a.Role == "" {
		a.Role = models.RoleUser
	}
	a.Version = 1
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO accounts (id, email, role, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Email, string(a.Role), a.Balance, a.Version, a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

func (t *tx) UpdateBalance(ctx context.Context, accountID string, balance int64, version int) error {
	result, err := t.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		balance, time.Now().UTC(), accountID, version)
	if err != nil {
		return translate(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: account %s", store.ErrConcurrentModification, accountID)
	}
	return nil
}

func (t *tx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	e.CreatedAt = time.Now().UTC()
	key := sql.NullString{String: e.IdempotencyKey, Valid: e.IdempotencyKey != ""}

	err := t.q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (account_id, delta, reason, resulting_balance, idempotency_key, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.AccountID, e.Delta, e.Reason, e.ResultingBalance, key, e.Metadata, e.CreatedAt).Scan(&e.ID)
	return translate(err)
}

func (t *tx) GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return getEntryByKey(ctx, t.q, key)
}

func (t *tx) CreatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payment_transactions
		(id, account_id, tier, amount, currency, status, provider, provider_reference,
		 checkout_url, credits_granted, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.AccountID, p.Tier, p.Amount, p.Currency, string(p.Status), string(p.Provider),
		nullString(p.ProviderReference), p.CheckoutURL, p.CreditsGranted, p.Metadata, p.CreatedAt, p.UpdatedAt)
	return translate(err)
}

func (t *tx) LockPayment(ctx context.Context, txID string) (*models.PaymentTransaction, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE id = $1 FOR UPDATE`, txID)
	return scanPayment(row)
}

func (t *tx) LockPaymentByReference(ctx context.Context, provider models.Provider, reference string) (*models.PaymentTransaction, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_transactions
		WHERE provider = $1 AND (id = $2 OR provider_reference = $2)
		LIMIT 1
		FOR UPDATE`, string(provider), reference)
	return scanPayment(row)
}

func (t *tx) UpdatePayment(ctx context.Context, p *models.PaymentTransaction) error {
	p.UpdatedAt = time.Now().UTC()

	result, err := t.q.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = $1, provider_reference = $2, checkout_url = $3, failure_reason = $4,
		    confirmation_payload = $5, metadata = $6, updated_at = $7, completed_at = $8
		WHERE id = $9`,
		string(p.Status), nullString(p.ProviderReference), p.CheckoutURL, p.FailureReason,
		p.ConfirmationPayload, p.Metadata, p.UpdatedAt, nullTime(p.CompletedAt), p.ID)
	if err != nil {
		return translate(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) LockCapacity(ctx context.Context) (*models.BetaCapacity, error) {
	var c models.BetaCapacity
	err := t.q.QueryRowContext(ctx, `SELECT max_free_users, current_free_users FROM beta_capacity WHERE id = 1 FOR UPDATE`).
		Scan(&c.MaxFreeUsers, &c.CurrentFreeUsers)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (t *tx) UpdateCapacity(ctx context.Context, currentFreeUsers int) error {
	_, err := t.q.ExecContext(ctx, `UPDATE beta_capacity SET current_free_users = $1 WHERE id = 1`, currentFreeUsers)
	return translate(err)
}

// ==================== Helpers ====================

func getEntryByKey(ctx context.Context, q querier, key string) (*models.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	var e models.LedgerEntry
	if err := scanEntry(row, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	var role string
	if err := row.Scan(&a.ID, &a.Email, &role, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	a.Role = models.Role(role)
	return &a, nil
}

func scanEntry(row scanner, e *models.LedgerEntry) error {
	err := row.Scan(&e.ID, &e.AccountID, &e.Delta, &e.Reason, &e.ResultingBalance,
		&e.IdempotencyKey, &e.Metadata, &e.CreatedAt)
	return translate(err)
}

func collectEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, translate(rows.Err())
}

func scanPayment(row scanner) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	var status, provider string
	var providerRef sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&p.ID, &p.AccountID, &p.Tier, &p.Amount, &p.Currency, &status, &provider,
		&providerRef, &p.CheckoutURL, &p.CreditsGranted, &p.FailureReason,
		&p.ConfirmationPayload, &p.Metadata, &p.CreatedAt, &p.UpdatedAt, &completedAt)
	if err != nil {
		return nil, translate(err)
	}

	p.Status = models.PaymentStatus(status)
	p.Provider = models.Provider(provider)
	if providerRef.Valid {
		p.ProviderReference = &providerRef.String
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return &p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// translate maps driver errors onto store sentinels, keeping the original in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			if pqErr.Constraint == "ledger_entries_idempotency_key_key" {
				return store.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("%w: %s", store.ErrAlreadyExists, pqErr.Constraint)
		case "23514": // check_violation
			if pqErr.Constraint == "beta_capacity_check" {
				return store.ErrCapacityExceeded
			}
		case "57P01", "57P02", "57P03", "08000", "08003", "08006": // shutdown / connection failures
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
	}
	return err
}
