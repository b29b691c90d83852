// Package reimburse holds the fee reimbursement pool: a simple balance
// the designated dispatcher draws on to refund depositor fees, with a
// governance escape hatch.
package reimburse

import (
	"context"

	"satvault/pkg/domain"
)

// PoolStore persists the pool balance. Implementations return
// pkg/platform/sentinel errors.
type PoolStore interface {
	Balance(ctx context.Context) (domain.Sats, error)
	Credit(ctx context.Context, amount domain.Sats) error
	// Debit returns sentinel.ErrInsufficientFunds when the balance
	// cannot cover amount; nothing changes in that case.
	Debit(ctx context.Context, amount domain.Sats) error
}
