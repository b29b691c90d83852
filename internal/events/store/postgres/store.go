package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"satvault/internal/events"
	"satvault/pkg/domain"
	txcontext "satvault/pkg/platform/tx"
)

// Store implements events.Store using the transactional outbox pattern.
// Events are written to the outbox table in the same transaction as the
// ledger mutation that produced them (when a *sql.Tx rides the context) and
// published to Kafka by the outbox worker. Kafka is the source of truth for
// the indexing collaborator.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// events.Event for deserialization by downstream consumers.
type outboxPayload struct {
	ID              string `json:"ID"`
	Timestamp       string `json:"Timestamp"`
	Action          string `json:"Action"`
	Actor           string `json:"Actor,omitempty"`
	Account         string `json:"Account,omitempty"`
	RequestID       uint64 `json:"RequestID,omitempty"`
	Assets          uint64 `json:"Assets,omitempty"`
	Shares          uint64 `json:"Shares,omitempty"`
	Fee             uint64 `json:"Fee,omitempty"`
	DestinationHash string `json:"DestinationHash,omitempty"`
}

// Append writes a ledger event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event events.Event) error {
	payload := outboxPayload{
		ID:              event.ID,
		Timestamp:       event.Timestamp.Format(time.RFC3339Nano),
		Action:          string(event.Action),
		Actor:           string(event.Actor),
		Account:         string(event.Account),
		RequestID:       uint64(event.RequestID),
		Assets:          uint64(event.Assets),
		Shares:          uint64(event.Shares),
		Fee:             uint64(event.Fee),
		DestinationHash: event.DestinationHash,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	aggregateID := string(event.Account)
	if aggregateID == "" {
		aggregateID = event.ID
	}

	query := `
		INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID, aggregateID, string(event.Action), payloadBytes, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append event to outbox: %w", err)
	}
	return nil
}

// ListByAccount reads back events for one account, oldest first.
func (s *Store) ListByAccount(ctx context.Context, account string) ([]events.Event, error) {
	query := `
		SELECT payload FROM outbox
		WHERE aggregate_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func decodePayload(raw []byte) (events.Event, error) {
	var p outboxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return events.Event{}, fmt.Errorf("decode event payload: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return events.Event{}, fmt.Errorf("decode event timestamp: %w", err)
	}
	return events.Event{
		ID:              p.ID,
		Timestamp:       ts,
		Action:          events.Action(p.Action),
		Actor:           domain.AccountID(p.Actor),
		Account:         domain.AccountID(p.Account),
		RequestID:       domain.RequestID(p.RequestID),
		Assets:          domain.Sats(p.Assets),
		Shares:          domain.Shares(p.Shares),
		Fee:             domain.Sats(p.Fee),
		DestinationHash: p.DestinationHash,
	}, nil
}
