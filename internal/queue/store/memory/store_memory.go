// Package memory provides an in-memory RequestStore for tests and local
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"satvault/internal/queue"
	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.RequestID]queue.WithdrawalRequest
	counter  uint64
	custody  domain.Sats
}

func New() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[domain.RequestID]queue.WithdrawalRequest),
	}
}

func (s *InMemoryStore) CreateFunded(_ context.Context, req queue.WithdrawalRequest) (domain.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custody += req.AssetAmount
	s.counter++
	req.ID = domain.RequestID(s.counter)
	req.CompletedAt = nil
	s.requests[req.ID] = req
	return req.ID, nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.RequestID) (queue.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return queue.WithdrawalRequest{}, sentinel.ErrNotFound
	}
	return req, nil
}

func (s *InMemoryStore) List(_ context.Context, redeemer domain.AccountID) ([]queue.WithdrawalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []queue.WithdrawalRequest
	for i := uint64(1); i <= s.counter; i++ {
		req, ok := s.requests[domain.RequestID(i)]
		if ok && req.Redeemer == redeemer {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Complete(_ context.Context, id domain.RequestID, at time.Time, amount domain.Sats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.CompletedAt != nil {
		return sentinel.ErrAlreadyCompleted
	}
	if s.custody < amount {
		return sentinel.ErrInsufficientFunds
	}
	s.custody -= amount
	completed := at
	req.CompletedAt = &completed
	s.requests[id] = req
	return nil
}

func (s *InMemoryStore) CustodyBalance(_ context.Context) (domain.Sats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.custody, nil
}

// DrainCustody empties custody, simulating funds lost to an external
// failure. Test helper.
func (s *InMemoryStore) DrainCustody(amount domain.Sats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount > s.custody {
		s.custody = 0
		return
	}
	s.custody -= amount
}
