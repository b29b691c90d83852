// Package postgres persists the reimbursement pool balance.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

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

func (s *Store) execer(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Balance(ctx context.Context) (domain.Sats, error) {
	var balance uint64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT balance FROM reimbursement_pool WHERE singleton`,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read pool balance: %w", err)
	}
	return domain.Sats(balance), nil
}

func (s *Store) Credit(ctx context.Context, amount domain.Sats) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE reimbursement_pool SET balance = balance + $1 WHERE singleton`,
		uint64(amount),
	)
	if err != nil {
		return fmt.Errorf("credit pool: %w", err)
	}
	return nil
}

func (s *Store) Debit(ctx context.Context, amount domain.Sats) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE reimbursement_pool
		SET balance = balance - $1
		WHERE singleton AND balance >= $1`,
		uint64(amount),
	)
	if err != nil {
		return fmt.Errorf("debit pool: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit pool: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrInsufficientFunds
	}
	return nil
}
