package memory

import (
	"context"
	"sync"

	"satvault/internal/events"
)

// InMemoryStore keeps events in append order. It backs tests and
// single-node runs without Kafka.
type InMemoryStore struct {
	mu  sync.RWMutex
	log []events.Event
}

func New() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, event)
	return nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, account string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, e := range s.log {
		if string(e.Account) == account || string(e.Actor) == account {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of the full log in append order. Test helper.
func (s *InMemoryStore) All() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event{}, s.log...)
}

// ByAction filters the log by action in append order. Test helper.
func (s *InMemoryStore) ByAction(action events.Action) []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, e := range s.log {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
