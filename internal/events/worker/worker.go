// Package worker drains the events outbox to Kafka. The ledger mutation and
// its outbox row commit in one transaction; this worker publishes rows and
// marks them published, so a crash between publish and mark can only cause
// redelivery, never loss. Downstream consumers deduplicate on event ID.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Publisher is satisfied by the kafka platform client.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

type Worker struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func New(db *sql.DB, publisher Publisher, logger *slog.Logger) *Worker {
	return &Worker{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
}

// Run drains the outbox until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.DrainOnce(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.DebugContext(ctx, "outbox drained", "published", n)
			}
		}
	}
}

type outboxRow struct {
	id          string
	aggregateID string
	payload     []byte
}

// DrainOnce publishes one batch of unpublished rows, oldest first.
// SKIP LOCKED keeps concurrent workers from double-publishing a row while
// both are healthy.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox batch: %w", err)
	}

	var batch []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.aggregateID, &r.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox batch: %w", err)
	}
	rows.Close()

	published := 0
	for _, r := range batch {
		if err := w.publisher.Publish(ctx, r.aggregateID, r.payload); err != nil {
			return published, fmt.Errorf("publish outbox row %s: %w", r.id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET published_at = $1 WHERE id = $2`,
			time.Now().UTC(), r.id,
		); err != nil {
			return published, fmt.Errorf("mark outbox row %s: %w", r.id, err)
		}
		published++
	}

	if err := tx.Commit(); err != nil {
		return published, fmt.Errorf("commit outbox batch: %w", err)
	}
	return published, nil
}
