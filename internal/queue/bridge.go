package queue

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"satvault/pkg/platform/circuit"
	"satvault/pkg/platform/sentinel"
)

// Bridge hands settlement payloads to the external bridging network.
type Bridge interface {
	Dispatch(ctx context.Context, payload SettlementPayload) error
}

// RemoteBridge dispatches settlements over HTTP. A circuit breaker keeps a
// dead dispatcher endpoint from stalling every finalize on a full timeout;
// a dispatch refused here surfaces to the maintainer as a settlement to
// finish out of band.
type RemoteBridge struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker

	mu        sync.Mutex
	lastProbe time.Time
}

const bridgeProbeInterval = 30 * time.Second

func NewRemoteBridge(baseURL string) *RemoteBridge {
	return &RemoteBridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: circuit.New("bridge"),
	}
}

func (b *RemoteBridge) allow() bool {
	if !b.breaker.IsOpen() {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastProbe) >= bridgeProbeInterval {
		b.lastProbe = time.Now()
		return true
	}
	return false
}

func (b *RemoteBridge) Dispatch(ctx context.Context, payload SettlementPayload) error {
	if !b.allow() {
		return fmt.Errorf("%w: bridge circuit open", sentinel.ErrUnavailable)
	}
	body, err := payload.Encode()
	if err != nil {
		return fmt.Errorf("encode settlement payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/settlements", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build settlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.breaker.RecordFailure()
		return fmt.Errorf("%w: dispatch settlement: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b.breaker.RecordFailure()
		return fmt.Errorf("%w: settlement dispatch returned %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
	b.breaker.RecordSuccess()
	return nil
}

// FakeBridge records dispatched settlements for tests.
type FakeBridge struct {
	mu         sync.Mutex
	Dispatched []SettlementPayload
	Fail       bool
}

func NewFakeBridge() *FakeBridge {
	return &FakeBridge{}
}

func (b *FakeBridge) Dispatch(_ context.Context, payload SettlementPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Fail {
		return sentinel.ErrUnavailable
	}
	b.Dispatched = append(b.Dispatched, payload)
	return nil
}

// Count returns the number of successful dispatches.
func (b *FakeBridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Dispatched)
}
