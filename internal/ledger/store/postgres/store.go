// Package postgres persists the share ledger in PostgreSQL. All balance
// movements use guarded single-statement updates so concurrent operations
// can never drive a balance negative.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"satvault/internal/ledger"
	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
	txcontext "satvault/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer returns the transaction carried in ctx when one is present, so a
// service-level transaction spans every store it touches.
func (s *Store) execer(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) TotalSupply(ctx context.Context) (domain.Shares, error) {
	var supply uint64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM vault_balances`,
	).Scan(&supply)
	if err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return domain.Shares(supply), nil
}

func (s *Store) Balance(ctx context.Context, account domain.AccountID) (domain.Shares, error) {
	var balance uint64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT balance FROM vault_balances WHERE account = $1`,
		string(account),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return domain.Shares(balance), nil
}

func (s *Store) Mint(ctx context.Context, account domain.AccountID, shares domain.Shares) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO vault_balances (account, balance)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = vault_balances.balance + $2`,
		string(account), uint64(shares),
	)
	if err != nil {
		return fmt.Errorf("mint shares: %w", err)
	}
	return nil
}

func (s *Store) Burn(ctx context.Context, account domain.AccountID, shares domain.Shares) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE vault_balances
		SET balance = balance - $2
		WHERE account = $1 AND balance >= $2`,
		string(account), uint64(shares),
	)
	if err != nil {
		return fmt.Errorf("burn shares: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("burn shares: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) Allowance(ctx context.Context, owner, spender domain.AccountID) (domain.Shares, error) {
	var shares uint64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT shares FROM vault_allowances WHERE owner = $1 AND spender = $2`,
		string(owner), string(spender),
	).Scan(&shares)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read allowance: %w", err)
	}
	return domain.Shares(shares), nil
}

func (s *Store) SetAllowance(ctx context.Context, owner, spender domain.AccountID, shares domain.Shares) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO vault_allowances (owner, spender, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, spender) DO UPDATE SET shares = $3`,
		string(owner), string(spender), uint64(shares),
	)
	if err != nil {
		return fmt.Errorf("set allowance: %w", err)
	}
	return nil
}

func (s *Store) SpendAllowance(ctx context.Context, owner, spender domain.AccountID, shares domain.Shares) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE vault_allowances
		SET shares = shares - $3
		WHERE owner = $1 AND spender = $2 AND shares >= $3`,
		string(owner), string(spender), uint64(shares),
	)
	if err != nil {
		return fmt.Errorf("spend allowance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("spend allowance: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) LocalBalance(ctx context.Context) (domain.Sats, error) {
	var balance uint64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT local_balance FROM vault_state WHERE singleton`,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read local balance: %w", err)
	}
	return domain.Sats(balance), nil
}

func (s *Store) CreditReserve(ctx context.Context, amount domain.Sats) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE vault_state SET local_balance = local_balance + $1 WHERE singleton`,
		uint64(amount),
	)
	if err != nil {
		return fmt.Errorf("credit reserve: %w", err)
	}
	return nil
}

func (s *Store) DebitReserve(ctx context.Context, amount domain.Sats) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE vault_state
		SET local_balance = local_balance - $1
		WHERE singleton AND local_balance >= $1`,
		uint64(amount),
	)
	if err != nil {
		return fmt.Errorf("debit reserve: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit reserve: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInsufficientFunds
	}
	return nil
}

func (s *Store) Config(ctx context.Context) (ledger.Config, error) {
	var (
		cfg        ledger.Config
		entry      uint16
		exit       uint16
		treasury   string
		dispatcher string
		minDeposit uint64
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT entry_fee_bps, exit_fee_bps, treasury, dispatcher, min_deposit, paused
		FROM vault_state WHERE singleton`,
	).Scan(&entry, &exit, &treasury, &dispatcher, &minDeposit, &cfg.Paused)
	if err != nil {
		return ledger.Config{}, fmt.Errorf("read vault config: %w", err)
	}
	cfg.EntryFeeBps = domain.BasisPoints(entry)
	cfg.ExitFeeBps = domain.BasisPoints(exit)
	cfg.Treasury = domain.AccountID(treasury)
	cfg.Dispatcher = domain.AccountID(dispatcher)
	cfg.MinDeposit = domain.Sats(minDeposit)
	return cfg, nil
}

func (s *Store) SetConfig(ctx context.Context, cfg ledger.Config) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE vault_state
		SET entry_fee_bps = $1, exit_fee_bps = $2, treasury = $3,
		    dispatcher = $4, min_deposit = $5, paused = $6
		WHERE singleton`,
		uint16(cfg.EntryFeeBps), uint16(cfg.ExitFeeBps),
		string(cfg.Treasury), string(cfg.Dispatcher),
		uint64(cfg.MinDeposit), cfg.Paused,
	)
	if err != nil {
		return fmt.Errorf("persist vault config: %w", err)
	}
	return nil
}
