// Package events captures structured ledger events for the external
// indexing collaborator. The publisher is append-only and writes through
// the storage layer so tests can swap sinks; in production the Postgres
// store is a transactional outbox drained to Kafka by the worker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists events. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, account string) ([]Event, error)
}

// Publisher stamps and appends ledger events.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, event)
}
