// Package postgres persists withdrawal requests and queue custody using
// pgx directly: Complete needs a multi-statement transaction with exact
// control over the completion CAS, which is cleaner against the native
// driver than through database/sql.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"satvault/internal/queue"
	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateFunded credits custody and inserts the request in one transaction:
// a request row only ever commits together with the funds backing it.
func (s *Store) CreateFunded(ctx context.Context, req queue.WithdrawalRequest) (domain.RequestID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin create transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE queue_custody SET balance = balance + $1 WHERE singleton`,
		uint64(req.AssetAmount),
	); err != nil {
		return 0, fmt.Errorf("credit custody: %w", err)
	}

	var id uint64
	err = tx.QueryRow(ctx, `
		INSERT INTO withdrawal_requests
			(redeemer, shares_burned, asset_amount, exit_fee, destination_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(req.Redeemer), uint64(req.SharesBurned), uint64(req.AssetAmount),
		uint64(req.ExitFee), req.DestinationHash.String(), req.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create withdrawal request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit create transaction: %w", err)
	}
	return domain.RequestID(id), nil
}

func (s *Store) Get(ctx context.Context, id domain.RequestID) (queue.WithdrawalRequest, error) {
	return s.scanRequest(s.pool.QueryRow(ctx, `
		SELECT id, redeemer, shares_burned, asset_amount, exit_fee,
		       destination_hash, created_at, completed_at
		FROM withdrawal_requests WHERE id = $1`,
		uint64(id),
	))
}

func (s *Store) List(ctx context.Context, redeemer domain.AccountID) ([]queue.WithdrawalRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, redeemer, shares_burned, asset_amount, exit_fee,
		       destination_hash, created_at, completed_at
		FROM withdrawal_requests
		WHERE redeemer = $1
		ORDER BY id`,
		string(redeemer),
	)
	if err != nil {
		return nil, fmt.Errorf("list withdrawal requests: %w", err)
	}
	defer rows.Close()

	var out []queue.WithdrawalRequest
	for rows.Next() {
		req, err := s.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Complete sets completedAt and debits custody in one transaction. The
// guarded UPDATEs make the completion a compare-and-set: a second call
// for the same id changes nothing.
func (s *Store) Complete(ctx context.Context, id domain.RequestID, at time.Time, amount domain.Sats) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE withdrawal_requests
		SET completed_at = $2
		WHERE id = $1 AND completed_at IS NULL`,
		uint64(id), at,
	)
	if err != nil {
		return fmt.Errorf("mark request completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM withdrawal_requests WHERE id = $1)`,
			uint64(id),
		).Scan(&exists); err != nil {
			return fmt.Errorf("check request exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrAlreadyCompleted
	}

	tag, err = tx.Exec(ctx, `
		UPDATE queue_custody
		SET balance = balance - $1
		WHERE singleton AND balance >= $1`,
		uint64(amount),
	)
	if err != nil {
		return fmt.Errorf("debit custody: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrInsufficientFunds
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete transaction: %w", err)
	}
	return nil
}

func (s *Store) CustodyBalance(ctx context.Context) (domain.Sats, error) {
	var balance uint64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM queue_custody WHERE singleton`,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read custody balance: %w", err)
	}
	return domain.Sats(balance), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRequest(row rowScanner) (queue.WithdrawalRequest, error) {
	var (
		req         queue.WithdrawalRequest
		id          uint64
		redeemer    string
		shares      uint64
		assets      uint64
		fee         uint64
		hash        string
		completedAt *time.Time
	)
	err := row.Scan(&id, &redeemer, &shares, &assets, &fee, &hash, &req.CreatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.WithdrawalRequest{}, sentinel.ErrNotFound
	}
	if err != nil {
		return queue.WithdrawalRequest{}, fmt.Errorf("scan withdrawal request: %w", err)
	}
	req.ID = domain.RequestID(id)
	req.Redeemer = domain.AccountID(redeemer)
	req.SharesBurned = domain.Shares(shares)
	req.AssetAmount = domain.Sats(assets)
	req.ExitFee = domain.Sats(fee)
	req.CompletedAt = completedAt
	req.DestinationHash, err = domain.ParseScriptHash(hash)
	if err != nil {
		return queue.WithdrawalRequest{}, fmt.Errorf("parse stored destination hash: %w", err)
	}
	return req, nil
}
