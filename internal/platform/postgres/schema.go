// Package postgres owns the engine's schema. Tables are applied at startup
// with idempotent DDL so a fresh database and a restarted one take the same
// path.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"satvault/internal/platform/config"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vault_balances (
		account TEXT PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS vault_allowances (
		owner   TEXT NOT NULL,
		spender TEXT NOT NULL,
		shares  BIGINT NOT NULL DEFAULT 0 CHECK (shares >= 0),
		PRIMARY KEY (owner, spender)
	)`,

	`CREATE TABLE IF NOT EXISTS vault_state (
		singleton     BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		local_balance BIGINT NOT NULL DEFAULT 0 CHECK (local_balance >= 0),
		entry_fee_bps INTEGER NOT NULL DEFAULT 0,
		exit_fee_bps  INTEGER NOT NULL DEFAULT 0,
		treasury      TEXT NOT NULL DEFAULT '',
		dispatcher    TEXT NOT NULL DEFAULT '',
		min_deposit   BIGINT NOT NULL DEFAULT 0,
		paused        BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id               BIGSERIAL PRIMARY KEY,
		redeemer         TEXT NOT NULL,
		shares_burned    BIGINT NOT NULL,
		asset_amount     BIGINT NOT NULL,
		exit_fee         BIGINT NOT NULL,
		destination_hash TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		completed_at     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_redeemer
		ON withdrawal_requests (redeemer)`,

	`CREATE TABLE IF NOT EXISTS queue_custody (
		singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		balance   BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS reimbursement_pool (
		singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		balance   BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id           TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		payload      JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
		ON outbox (created_at) WHERE published_at IS NULL`,

	`INSERT INTO queue_custody (singleton) VALUES (TRUE)
		ON CONFLICT DO NOTHING`,

	`INSERT INTO reimbursement_pool (singleton) VALUES (TRUE)
		ON CONFLICT DO NOTHING`,
}

// Migrate applies the schema and seeds the vault state singleton with the
// configured defaults. Seeding only fires on a fresh database; after that
// governance operations own the row.
func Migrate(ctx context.Context, db *sql.DB, cfg config.Server) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO vault_state (singleton, entry_fee_bps, exit_fee_bps, min_deposit)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT DO NOTHING`,
		cfg.EntryFeeBps, cfg.ExitFeeBps, cfg.MinDeposit,
	)
	if err != nil {
		return fmt.Errorf("seed vault state: %w", err)
	}
	return nil
}
