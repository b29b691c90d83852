package ledger

import (
	"context"
	"errors"

	"satvault/internal/events"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/sentinel"
)

func requireRole(actor domain.Actor, role domain.Role) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.HasRole(role) {
		return dErrors.Newf(dErrors.CodeForbidden, "%s role required", role)
	}
	return nil
}

// SetFees updates both fee rates at once. Rates above 100% are rejected at
// parse time by domain.ParseBasisPoints, so the store only ever sees valid
// values.
func (s *Service) SetFees(ctx context.Context, actor domain.Actor, entry, exit domain.BasisPoints) error {
	if err := requireRole(actor, domain.RoleGovernance); err != nil {
		return err
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		cfg.EntryFeeBps = entry
		cfg.ExitFeeBps = exit
		if err := s.store.SetConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist vault config")
		}
		return s.sink.Emit(ctx, events.Event{
			Action: events.ActionFeesUpdated,
			Actor:  actor.Account,
		})
	})
}

func (s *Service) SetTreasury(ctx context.Context, actor domain.Actor, treasury domain.AccountID) error {
	if err := requireRole(actor, domain.RoleGovernance); err != nil {
		return err
	}
	if treasury.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "treasury account is required")
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		cfg.Treasury = treasury
		if err := s.store.SetConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist vault config")
		}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionTreasuryUpdated,
			Actor:   actor.Account,
			Account: treasury,
		})
	})
}

// SetDispatcher designates the account allowed to trigger reimbursements.
// Dispatcher is an account designation, not a role.
func (s *Service) SetDispatcher(ctx context.Context, actor domain.Actor, dispatcher domain.AccountID) error {
	if err := requireRole(actor, domain.RoleGovernance); err != nil {
		return err
	}
	if dispatcher.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "dispatcher account is required")
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		cfg.Dispatcher = dispatcher
		if err := s.store.SetConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist vault config")
		}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionDispatcherSet,
			Actor:   actor.Account,
			Account: dispatcher,
		})
	})
}

func (s *Service) SetMinDeposit(ctx context.Context, actor domain.Actor, min domain.Sats) error {
	if err := requireRole(actor, domain.RoleGovernance); err != nil {
		return err
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		cfg.MinDeposit = min
		if err := s.store.SetConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist vault config")
		}
		return s.sink.Emit(ctx, events.Event{
			Action: events.ActionMinDepositSet,
			Actor:  actor.Account,
			Assets: min,
		})
	})
}

// Pause halts deposit, mint, withdraw, and redeem. Pausing an already
// paused vault is a no-op.
func (s *Service) Pause(ctx context.Context, actor domain.Actor) error {
	return s.setPaused(ctx, actor, true)
}

func (s *Service) Unpause(ctx context.Context, actor domain.Actor) error {
	return s.setPaused(ctx, actor, false)
}

func (s *Service) setPaused(ctx context.Context, actor domain.Actor, paused bool) error {
	if err := requireRole(actor, domain.RolePauseAdmin); err != nil {
		return err
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused == paused {
			return nil
		}
		cfg.Paused = paused
		if err := s.store.SetConfig(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist vault config")
		}
		action := events.ActionPaused
		if !paused {
			action = events.ActionUnpaused
		}
		return s.sink.Emit(ctx, events.Event{
			Action: action,
			Actor:  actor.Account,
		})
	})
}

// Allocate pushes the entire idle local reserve to the external allocator.
// Maintainer only.
func (s *Service) Allocate(ctx context.Context, actor domain.Actor) (domain.Sats, error) {
	if err := requireRole(actor, domain.RoleMaintainer); err != nil {
		return 0, err
	}
	if s.gateway == nil {
		return 0, dErrors.New(dErrors.CodeUnavailable, "no allocator configured")
	}

	var moved domain.Sats
	err := s.withTx(ctx, func(ctx context.Context) error {
		local, err := s.store.LocalBalance(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read local balance")
		}
		if local.IsZero() {
			return dErrors.New(dErrors.CodeBadRequest, "no idle reserve to allocate")
		}
		if err := s.gateway.Push(ctx, local); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "allocator push failed")
		}
		if err := s.store.DebitReserve(ctx, local); err != nil {
			if errors.Is(err, sentinel.ErrInsufficientFunds) {
				return dErrors.New(dErrors.CodeInsufficientFunds, "reserve changed during allocation")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit reserve")
		}
		moved = local
		return s.sink.Emit(ctx, events.Event{
			Action: events.ActionAllocated,
			Actor:  actor.Account,
			Assets: local,
		})
	})
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocation(uint64(moved))
	}
	return moved, nil
}
