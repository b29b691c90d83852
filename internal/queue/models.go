// Package queue implements the asynchronous withdrawal pipeline: burn at
// request time, custody of recalled assets, and maintainer-driven
// settlement against the bridging network.
package queue

import (
	"time"

	"satvault/pkg/domain"
)

// Status of a queued withdrawal request. There is no cancel or expiry;
// once created a request only ever completes.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// WithdrawalRequest is the immutable record of an asynchronous
// withdrawal. Only CompletedAt ever changes, exactly once.
type WithdrawalRequest struct {
	ID              domain.RequestID
	Redeemer        domain.AccountID
	SharesBurned    domain.Shares
	AssetAmount     domain.Sats
	ExitFee         domain.Sats
	DestinationHash domain.ScriptHash
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

func (r WithdrawalRequest) Status() Status {
	if r.CompletedAt != nil {
		return StatusCompleted
	}
	return StatusPending
}

// RedeemResult reports the outcome of the synchronous redemption path.
type RedeemResult struct {
	Assets domain.Sats
	Fee    domain.Sats
	Shares domain.Shares
}
