package ledger

import (
	"context"
	"errors"

	"satvault/internal/fees"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/sentinel"
)

// QueuePort is the narrow capability handed to the withdrawal queue. The
// queue burns shares without allowance and moves assets out of vault
// custody into its own; nothing else may do either.
type QueuePort struct {
	s *Service
}

func (s *Service) QueuePort() *QueuePort {
	return &QueuePort{s: s}
}

// EnsureActive rejects new queue requests while the vault is paused.
func (p *QueuePort) EnsureActive(ctx context.Context) error {
	cfg, err := p.s.Config(ctx)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return dErrors.New(dErrors.CodeUnavailable, "vault is paused")
	}
	return nil
}

// QuoteExit converts shares at the current share price and splits the
// proceeds into net payout and exit fee.
func (p *QueuePort) QuoteExit(ctx context.Context, shares domain.Shares) (net, fee domain.Sats, err error) {
	cfg, err := p.s.Config(ctx)
	if err != nil {
		return 0, 0, err
	}
	total, err := p.s.TotalAssets(ctx)
	if err != nil {
		return 0, 0, err
	}
	supply, err := p.s.store.TotalSupply(ctx)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	base, err := toAssets(shares, total, supply)
	if err != nil {
		return 0, 0, err
	}
	fee = fees.OnTotal(base, cfg.ExitFeeBps)
	return base - fee, fee, nil
}

// SharesOf reads owner's share balance.
func (p *QueuePort) SharesOf(ctx context.Context, owner domain.AccountID) (domain.Shares, error) {
	return p.s.Balance(ctx, owner)
}

// BurnShares burns directly from owner. The queue already holds the
// owner's intent, so no allowance is consumed.
func (p *QueuePort) BurnShares(ctx context.Context, owner domain.AccountID, shares domain.Shares) error {
	if err := p.s.store.Burn(ctx, owner, shares); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient share balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "burn shares")
	}
	return nil
}

// RestoreShares re-mints shares the queue burned for an operation that
// could not run to completion.
func (p *QueuePort) RestoreShares(ctx context.Context, owner domain.AccountID, shares domain.Shares) error {
	if err := p.s.store.Mint(ctx, owner, shares); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "restore burned shares")
	}
	return nil
}

// ReturnToReserve puts already-recalled assets back under vault accounting
// when the queue cannot take custody of them. The assets land in the local
// reserve rather than back at the allocator, which keeps total assets
// whole either way.
func (p *QueuePort) ReturnToReserve(ctx context.Context, amount domain.Sats) error {
	if err := p.s.store.CreditReserve(ctx, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "return assets to reserve")
	}
	return nil
}

// ReleaseToCustody moves amount out of vault accounting and into the
// queue's custody. The allocator position is recalled first; only when no
// allocator is configured does the local reserve cover it. After this call
// the amount no longer counts toward total assets.
func (p *QueuePort) ReleaseToCustody(ctx context.Context, amount domain.Sats) error {
	if p.s.gateway != nil {
		if err := p.s.gateway.Recall(ctx, amount); err != nil {
			if errors.Is(err, sentinel.ErrInsufficientLiquidity) {
				return dErrors.Wrap(err, dErrors.CodeInsufficientLiquidity, "allocator cannot cover withdrawal")
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "allocator recall failed")
		}
		return nil
	}
	if err := p.s.store.DebitReserve(ctx, amount); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient reserve")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "debit reserve")
	}
	return nil
}

// Dispatcher reports the configured reimbursement dispatcher account.
func (p *QueuePort) Dispatcher(ctx context.Context) (domain.AccountID, error) {
	cfg, err := p.s.Config(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Dispatcher, nil
}
