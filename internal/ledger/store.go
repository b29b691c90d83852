package ledger

import (
	"context"

	"satvault/pkg/domain"
)

// Store owns share balances, allowances, the local reserve balance, and the
// vault configuration. Stores are pure I/O with one concession: balance
// mutations are atomic check-and-move operations so a single public
// operation maps to a single consistent transition even on the memory
// implementation.
//
// Stores return pkg/platform/sentinel errors; the service translates them
// into coded domain errors.
type Store interface {
	TotalSupply(ctx context.Context) (domain.Shares, error)
	Balance(ctx context.Context, account domain.AccountID) (domain.Shares, error)

	// Mint credits shares to an account and grows total supply.
	Mint(ctx context.Context, account domain.AccountID, shares domain.Shares) error
	// Burn debits shares from an account and shrinks total supply.
	// Returns sentinel.ErrInsufficientFunds if the balance cannot cover it.
	Burn(ctx context.Context, account domain.AccountID, shares domain.Shares) error

	Allowance(ctx context.Context, owner, spender domain.AccountID) (domain.Shares, error)
	SetAllowance(ctx context.Context, owner, spender domain.AccountID, shares domain.Shares) error
	// SpendAllowance atomically decrements owner->spender allowance.
	// Returns sentinel.ErrInsufficientFunds if the allowance cannot cover it.
	SpendAllowance(ctx context.Context, owner, spender domain.AccountID, shares domain.Shares) error

	// LocalBalance is the reserve held in direct vault custody.
	LocalBalance(ctx context.Context) (domain.Sats, error)
	CreditReserve(ctx context.Context, amount domain.Sats) error
	// DebitReserve returns sentinel.ErrInsufficientFunds when the local
	// balance cannot cover the movement.
	DebitReserve(ctx context.Context, amount domain.Sats) error

	Config(ctx context.Context) (Config, error)
	SetConfig(ctx context.Context, cfg Config) error
}
