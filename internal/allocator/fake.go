package allocator

import (
	"context"
	"fmt"
	"sync"

	"satvault/pkg/domain"
	"satvault/pkg/platform/sentinel"
)

// Fake is a stateful in-process destination. It holds whatever is pushed,
// honors recalls up to its holdings, and can be credited yield directly so
// tests can move the share price without touching the ledger.
type Fake struct {
	mu   sync.Mutex
	held domain.Sats

	// RefuseRecalls forces every recall to fail with insufficient
	// liquidity regardless of holdings.
	RefuseRecalls bool
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Push(_ context.Context, amount domain.Sats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held += amount
	return nil
}

func (f *Fake) Recall(_ context.Context, amount domain.Sats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefuseRecalls || f.held < amount {
		return fmt.Errorf("recall %s of %s held: %w", amount, f.held, sentinel.ErrInsufficientLiquidity)
	}
	f.held -= amount
	return nil
}

func (f *Fake) Valuation(_ context.Context) (domain.Sats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held, nil
}

// AddYield credits the destination as if its strategy earned amount.
func (f *Fake) AddYield(amount domain.Sats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held += amount
}
