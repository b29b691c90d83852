package allocator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"satvault/pkg/domain"
	"satvault/pkg/platform/circuit"
	"satvault/pkg/platform/sentinel"
)

// RemoteGateway talks JSON-over-HTTP to the allocator service. The remote
// side reports refusals with 409 so a recall against a dry destination maps
// onto sentinel.ErrInsufficientLiquidity and the enclosing vault operation
// aborts whole.
//
// A circuit breaker guards every call: once the allocator stops answering,
// deposits and local withdrawals keep working while recalls fail fast
// instead of stacking timeouts.
type RemoteGateway struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker

	mu        sync.Mutex
	lastProbe time.Time
}

const probeInterval = 30 * time.Second

func NewRemote(baseURL string) *RemoteGateway {
	return &RemoteGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: circuit.New("allocator"),
	}
}

// allow reports whether an outbound call may proceed. While the circuit is
// open, one probe per interval is let through so the breaker can close
// again once the allocator recovers.
func (g *RemoteGateway) allow() bool {
	if !g.breaker.IsOpen() {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if time.Since(g.lastProbe) >= probeInterval {
		g.lastProbe = time.Now()
		return true
	}
	return false
}

type moveRequest struct {
	Amount string `json:"amount"`
}

type valuationResponse struct {
	Value string `json:"value"`
}

func (g *RemoteGateway) Push(ctx context.Context, amount domain.Sats) error {
	return g.post(ctx, "/allocate", amount)
}

func (g *RemoteGateway) Recall(ctx context.Context, amount domain.Sats) error {
	return g.post(ctx, "/recall", amount)
}

func (g *RemoteGateway) Valuation(ctx context.Context) (domain.Sats, error) {
	if !g.allow() {
		return 0, fmt.Errorf("allocator circuit open: %w", sentinel.ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/valuation", nil)
	if err != nil {
		return 0, fmt.Errorf("build valuation request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return 0, fmt.Errorf("allocator valuation: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.breaker.RecordFailure()
		return 0, fmt.Errorf("allocator valuation status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	g.breaker.RecordSuccess()

	var out valuationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode valuation: %w", err)
	}
	return domain.ParseSats(out.Value)
}

func (g *RemoteGateway) post(ctx context.Context, path string, amount domain.Sats) error {
	if !g.allow() {
		return fmt.Errorf("allocator circuit open: %w", sentinel.ErrUnavailable)
	}
	body, err := json.Marshal(moveRequest{Amount: amount.String()})
	if err != nil {
		return fmt.Errorf("marshal allocator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build allocator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return fmt.Errorf("allocator %s: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		g.breaker.RecordSuccess()
		return nil
	case http.StatusConflict:
		// A refusal is a healthy answer, not an outage.
		g.breaker.RecordSuccess()
		return fmt.Errorf("allocator %s for %s: %w", path, amount, sentinel.ErrInsufficientLiquidity)
	default:
		g.breaker.RecordFailure()
		return fmt.Errorf("allocator %s status %d: %w", path, resp.StatusCode, sentinel.ErrUnavailable)
	}
}
