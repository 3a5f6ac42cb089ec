package database

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations run in order inside one transaction; every statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT PRIMARY KEY,
		email      TEXT,
		role       TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
		balance    BIGINT NOT NULL DEFAULT 0 CONSTRAINT accounts_balance_check CHECK (balance >= 0),
		version    INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                BIGSERIAL PRIMARY KEY,
		account_id        TEXT NOT NULL REFERENCES accounts(id),
		delta             BIGINT NOT NULL CHECK (delta <> 0),
		reason            TEXT NOT NULL,
		resulting_balance BIGINT NOT NULL CHECK (resulting_balance >= 0),
		idempotency_key   TEXT CONSTRAINT ledger_entries_idempotency_key_key UNIQUE,
		metadata          JSONB,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id, id DESC)`,

	`CREATE TABLE IF NOT EXISTS price_tiers (
		tier        TEXT PRIMARY KEY,
		credits     BIGINT NOT NULL CHECK (credits > 0),
		price_usd   NUMERIC(12, 2) NOT NULL,
		price_local NUMERIC(14, 2) NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`INSERT INTO price_tiers (tier, credits, price_usd, price_local) VALUES
		('starter', 20, 5.00, 7500.00),
		('pro', 100, 20.00, 30000.00),
		('business', 300, 50.00, 75000.00)
	ON CONFLICT (tier) DO NOTHING`,

	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id                   TEXT PRIMARY KEY,
		account_id           TEXT NOT NULL REFERENCES accounts(id),
		tier                 TEXT NOT NULL,
		amount               NUMERIC(14, 2) NOT NULL,
		currency             TEXT NOT NULL,
		status               TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed', 'refunded')),
		provider             TEXT NOT NULL CHECK (provider IN ('card-gateway', 'crypto-gateway', 'bank-transfer')),
		provider_reference   TEXT,
		checkout_url         TEXT,
		credits_granted      BIGINT NOT NULL CHECK (credits_granted > 0),
		failure_reason       TEXT,
		confirmation_payload TEXT,
		metadata             JSONB,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at         TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_provider_reference
		ON payment_transactions (provider, provider_reference) WHERE provider_reference IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_payment_account ON payment_transactions (account_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS beta_capacity (
		id                 INTEGER PRIMARY KEY CHECK (id = 1),
		max_free_users     INTEGER NOT NULL CHECK (max_free_users >= 0),
		current_free_users INTEGER NOT NULL DEFAULT 0,
		CONSTRAINT beta_capacity_check CHECK (current_free_users <= max_free_users)
	)`,

	`CREATE TABLE IF NOT EXISTS waiting_list (
		id         BIGSERIAL PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		account_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema and seeds the price table and capacity row.
// maxFreeUsers only applies the first time the capacity row is created.
func Migrate(ctx context.Context, db *sql.DB, maxFreeUsers int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO beta_capacity (id, max_free_users, current_free_users)
		VALUES (1, $1, 0)
		ON CONFLICT (id) DO NOTHING`, maxFreeUsers); err != nil {
		return fmt.Errorf("seed beta capacity: %w", err)
	}

	return tx.Commit()
}
