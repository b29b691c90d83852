package queue

import (
	"context"
	"time"

	"satvault/pkg/domain"
)

// RequestStore persists withdrawal requests and the queue's own asset
// custody. Implementations return pkg/platform/sentinel errors.
type RequestStore interface {
	// CreateFunded assigns the next request ID, credits custody with
	// req.AssetAmount and inserts the request in one atomic step, so a
	// request record and its backing funds never exist apart. The
	// counter advances by exactly one per asynchronous request and
	// never for synchronous redemptions.
	CreateFunded(ctx context.Context, req WithdrawalRequest) (domain.RequestID, error)

	// Get returns sentinel.ErrNotFound for unknown IDs.
	Get(ctx context.Context, id domain.RequestID) (WithdrawalRequest, error)

	List(ctx context.Context, redeemer domain.AccountID) ([]WithdrawalRequest, error)

	// Complete sets completedAt and debits custody by amount in one
	// atomic step. Returns sentinel.ErrAlreadyCompleted when
	// completedAt is already set and sentinel.ErrInsufficientFunds
	// when custody cannot cover amount; either way nothing changes.
	Complete(ctx context.Context, id domain.RequestID, at time.Time, amount domain.Sats) error

	CustodyBalance(ctx context.Context) (domain.Sats, error)
}
