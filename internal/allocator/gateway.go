// Package allocator is the capability boundary to the external
// yield-bearing destination. The engine never reasons about the
// destination's strategy; it only pushes reserve, recalls reserve, and asks
// for the current valuation of the externally held position.
package allocator

import (
	"context"

	"satvault/pkg/domain"
)

//go:generate mockgen -source=gateway.go -destination=mocks/mocks.go -package=mocks

// Gateway is implemented by a production adapter and by test doubles.
//
// Recall is atomic: on a refusal (insufficient liquidity at the
// destination) the adapter returns sentinel.ErrInsufficientLiquidity and no
// funds move. Adapters must never deliver a short amount.
type Gateway interface {
	// Push moves reserve from vault custody into the destination.
	Push(ctx context.Context, amount domain.Sats) error
	// Recall moves exactly amount back into vault custody.
	Recall(ctx context.Context, amount domain.Sats) error
	// Valuation reports the destination's own pricing of the position.
	Valuation(ctx context.Context) (domain.Sats, error)
}
