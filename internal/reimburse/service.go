package reimburse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"satvault/internal/events"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/sentinel"
)

// EventSink records append-only pool events.
type EventSink interface {
	Emit(ctx context.Context, event events.Event) error
}

// DispatcherSource reports the account currently designated to trigger
// reimbursements. Satisfied by the ledger's queue port.
type DispatcherSource interface {
	Dispatcher(ctx context.Context) (domain.AccountID, error)
}

type Service struct {
	store      PoolStore
	dispatcher DispatcherSource
	sink       EventSink
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store PoolStore, dispatcher DispatcherSource, sink EventSink, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("pool store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher source is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink is required")
	}

	svc := &Service{
		store:      store,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Balance reports the current pool balance.
func (s *Service) Balance(ctx context.Context) (domain.Sats, error) {
	balance, err := s.store.Balance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read pool balance")
	}
	return balance, nil
}

// Fund adds to the pool. Any authenticated account may contribute.
func (s *Service) Fund(ctx context.Context, actor domain.Actor, amount domain.Sats) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	if err := s.store.Credit(ctx, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "credit pool")
	}
	return s.sink.Emit(ctx, events.Event{
		Action: events.ActionPoolFunded,
		Actor:  actor.Account,
		Assets: amount,
	})
}

// Reimburse pays min(requested, poolBalance) and reports the amount
// actually paid. An underfunded pool is a valid outcome, not an error;
// zero requests are a caller error. Only the designated dispatcher
// account may call it.
func (s *Service) Reimburse(ctx context.Context, actor domain.Actor, requested domain.Sats) (domain.Sats, error) {
	if actor.IsNil() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	dispatcher, err := s.dispatcher.Dispatcher(ctx)
	if err != nil {
		return 0, err
	}
	if dispatcher.IsNil() || actor.Account != dispatcher {
		return 0, dErrors.New(dErrors.CodeForbidden, "only the designated dispatcher may reimburse")
	}
	if requested.IsZero() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "requested amount must be positive")
	}

	balance, err := s.store.Balance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read pool balance")
	}
	paid := requested
	if balance < requested {
		paid = balance
	}
	if paid > 0 {
		if err := s.store.Debit(ctx, paid); err != nil {
			if errors.Is(err, sentinel.ErrInsufficientFunds) {
				return 0, dErrors.New(dErrors.CodeInternal, "pool balance changed during reimbursement")
			}
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "debit pool")
		}
	}

	if err := s.sink.Emit(ctx, events.Event{
		Action: events.ActionReimbursed,
		Actor:  actor.Account,
		Assets: paid,
	}); err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "reimbursement paid",
		"dispatcher", actor.Account,
		"requested", requested,
		"paid", paid,
	)
	return paid, nil
}

// Withdraw is the governance-only escape hatch to recover pool funds.
func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, to domain.AccountID, amount domain.Sats) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.HasRole(domain.RoleGovernance) {
		return dErrors.Newf(dErrors.CodeForbidden, "%s role required", domain.RoleGovernance)
	}
	if to.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "destination account is required")
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	if err := s.store.Debit(ctx, amount); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient pool balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "debit pool")
	}
	return s.sink.Emit(ctx, events.Event{
		Action:  events.ActionPoolWithdrawn,
		Actor:   actor.Account,
		Account: to,
		Assets:  amount,
	})
}
