package memory

import (
	"context"
	"sync"

	"satvault/internal/ledger"
	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
)

type allowanceKey struct {
	owner   domain.AccountID
	spender domain.AccountID
}

// InMemoryStore is the non-persistent ledger store used in tests and
// single-node deployments.
type InMemoryStore struct {
	mu           sync.RWMutex
	balances     map[domain.AccountID]domain.Shares
	allowances   map[allowanceKey]domain.Shares
	totalSupply  domain.Shares
	localBalance domain.Sats
	config       ledger.Config
}

func New(cfg ledger.Config) *InMemoryStore {
	return &InMemoryStore{
		balances:   make(map[domain.AccountID]domain.Shares),
		allowances: make(map[allowanceKey]domain.Shares),
		config:     cfg,
	}
}

func (s *InMemoryStore) TotalSupply(_ context.Context) (domain.Shares, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSupply, nil
}

func (s *InMemoryStore) Balance(_ context.Context, account domain.AccountID) (domain.Shares, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *InMemoryStore) Mint(_ context.Context, account domain.AccountID, shares domain.Shares) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] += shares
	s.totalSupply += shares
	return nil
}

func (s *InMemoryStore) Burn(_ context.Context, account domain.AccountID, shares domain.Shares) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[account] < shares {
		return sentinel.ErrInsufficientFunds
	}
	s.balances[account] -= shares
	s.totalSupply -= shares
	return nil
}

func (s *InMemoryStore) Allowance(_ context.Context, owner, spender domain.AccountID) (domain.Shares, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowances[allowanceKey{owner, spender}], nil
}

func (s *InMemoryStore) SetAllowance(_ context.Context, owner, spender domain.AccountID, shares domain.Shares) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[allowanceKey{owner, spender}] = shares
	return nil
}

func (s *InMemoryStore) SpendAllowance(_ context.Context, owner, spender domain.AccountID, shares domain.Shares) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowanceKey{owner, spender}
	if s.allowances[key] < shares {
		return sentinel.ErrInsufficientFunds
	}
	s.allowances[key] -= shares
	return nil
}

func (s *InMemoryStore) LocalBalance(_ context.Context) (domain.Sats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localBalance, nil
}

func (s *InMemoryStore) CreditReserve(_ context.Context, amount domain.Sats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localBalance += amount
	return nil
}

func (s *InMemoryStore) DebitReserve(_ context.Context, amount domain.Sats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localBalance < amount {
		return sentinel.ErrInsufficientFunds
	}
	s.localBalance -= amount
	return nil
}

func (s *InMemoryStore) Config(_ context.Context) (ledger.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, nil
}

func (s *InMemoryStore) SetConfig(_ context.Context, cfg ledger.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return nil
}

// SumBalances totals every holder balance. Test helper for the
// sum(balances) == totalSupply invariant.
func (s *InMemoryStore) SumBalances() domain.Shares {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum domain.Shares
	for _, b := range s.balances {
		sum += b
	}
	return sum
}
