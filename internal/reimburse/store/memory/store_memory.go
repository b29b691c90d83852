// Package memory provides an in-memory PoolStore for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	balance domain.Sats
}

func New() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Balance(_ context.Context) (domain.Sats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance, nil
}

func (s *InMemoryStore) Credit(_ context.Context, amount domain.Sats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance += amount
	return nil
}

func (s *InMemoryStore) Debit(_ context.Context, amount domain.Sats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance < amount {
		return sentinel.ErrInsufficientFunds
	}
	s.balance -= amount
	return nil
}
