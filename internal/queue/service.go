package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"satvault/internal/events"
	"satvault/internal/ledger"
	queuemetrics "satvault/internal/queue/metrics"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/sentinel"
	"satvault/pkg/requestcontext"
)

// EventSink records append-only queue events.
type EventSink interface {
	Emit(ctx context.Context, event events.Event) error
}

type Service struct {
	store   RequestStore
	port    *ledger.QueuePort
	bridge  Bridge
	sink    EventSink
	logger  *slog.Logger
	metrics *queuemetrics.Metrics
	tracer  trace.Tracer

	// mu serializes the request paths: the balance check, the burn and
	// the custody movement of one request form a single critical section
	// that another request cannot interleave with. Finalization does not
	// take it; the store's completion CAS already makes that path
	// exactly-once.
	mu sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *queuemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store RequestStore, port *ledger.QueuePort, bridge Bridge, sink EventSink, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if port == nil {
		return nil, fmt.Errorf("ledger port is required")
	}
	if bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink is required")
	}

	svc := &Service{
		store:  store,
		port:   port,
		bridge: bridge,
		sink:   sink,
		logger: slog.Default(),
		tracer: otel.Tracer("satvault/queue"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RequestRedeem is the synchronous redemption path: shares burn, the full
// base amount is recalled, the fee goes to the treasury and net proceeds
// release to receiver in the same operation. No request record is created
// and the request counter does not advance.
func (s *Service) RequestRedeem(ctx context.Context, actor domain.Actor, shares domain.Shares, receiver, owner domain.AccountID) (RedeemResult, error) {
	ctx, span := s.tracer.Start(ctx, "queue.RequestRedeem")
	defer span.End()

	if actor.IsNil() {
		return RedeemResult{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if receiver.IsNil() || owner.IsNil() {
		return RedeemResult{}, dErrors.New(dErrors.CodeBadRequest, "receiver and owner are required")
	}
	// The queue burns without allowance, so only the owner may use it.
	if actor.Account != owner {
		return RedeemResult{}, dErrors.New(dErrors.CodeForbidden, "only the share owner may request redemption")
	}
	if shares.IsZero() {
		return RedeemResult{}, dErrors.New(dErrors.CodeBadRequest, "share count must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.EnsureActive(ctx); err != nil {
		return RedeemResult{}, err
	}

	net, fee, err := s.quoteAndCheck(ctx, owner, shares)
	if err != nil {
		return RedeemResult{}, err
	}
	base := net + fee

	// Burn first: the burn is guarded and reversible, the recall is
	// neither. A refused recall re-mints and the vault is untouched.
	if err := s.port.BurnShares(ctx, owner, shares); err != nil {
		return RedeemResult{}, err
	}
	if err := s.port.ReleaseToCustody(ctx, base); err != nil {
		s.restoreShares(ctx, owner, shares)
		return RedeemResult{}, err
	}

	if err := s.sink.Emit(ctx, events.Event{
		Action:  events.ActionRedeemRequested,
		Actor:   actor.Account,
		Account: receiver,
		Assets:  net,
		Shares:  shares,
		Fee:     fee,
	}); err != nil {
		return RedeemResult{}, err
	}

	s.metrics.IncrementRequests("sync")
	s.logger.InfoContext(ctx, "synchronous redemption settled",
		"owner", owner,
		"receiver", receiver,
		"assets", net,
		"fee", fee,
		"request_id", requestcontext.RequestID(ctx),
	)
	return RedeemResult{Assets: net, Fee: fee, Shares: shares}, nil
}

// RequestRedeemAndBridge is the asynchronous path: shares burn
// immediately and irrevocably, the recalled base amount lands in queue
// custody minus the fee paid to the treasury, and an immutable request
// record awaits finalization.
func (s *Service) RequestRedeemAndBridge(ctx context.Context, actor domain.Actor, shares domain.Shares, redeemer domain.AccountID, destinationScript []byte) (WithdrawalRequest, error) {
	ctx, span := s.tracer.Start(ctx, "queue.RequestRedeemAndBridge")
	defer span.End()

	if actor.IsNil() {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if redeemer.IsNil() {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeBadRequest, "redeemer is required")
	}
	if actor.Account != redeemer {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeForbidden, "only the share owner may request redemption")
	}
	if shares.IsZero() {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeBadRequest, "share count must be positive")
	}
	if len(destinationScript) == 0 {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeBadRequest, "destination script is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.port.EnsureActive(ctx); err != nil {
		return WithdrawalRequest{}, err
	}

	net, fee, err := s.quoteAndCheck(ctx, redeemer, shares)
	if err != nil {
		return WithdrawalRequest{}, err
	}
	base := net + fee

	// Burn first: the burn is guarded and reversible, the recall is
	// neither. A refused recall re-mints and the vault is untouched.
	if err := s.port.BurnShares(ctx, redeemer, shares); err != nil {
		return WithdrawalRequest{}, err
	}
	if err := s.port.ReleaseToCustody(ctx, base); err != nil {
		s.restoreShares(ctx, redeemer, shares)
		return WithdrawalRequest{}, err
	}

	// The fee portion goes to the treasury at request time; custody
	// holds only the amount owed to the redeemer. Custody credit and
	// request record commit together.
	req := WithdrawalRequest{
		Redeemer:        redeemer,
		SharesBurned:    shares,
		AssetAmount:     net,
		ExitFee:         fee,
		DestinationHash: domain.HashScript(destinationScript),
		CreatedAt:       requestcontext.Now(ctx).UTC(),
	}
	req.ID, err = s.store.CreateFunded(ctx, req)
	if err != nil {
		// The recall already happened: park the assets back in the
		// vault reserve and undo the burn before surfacing the failure.
		s.returnToReserve(ctx, base)
		s.restoreShares(ctx, redeemer, shares)
		return WithdrawalRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "create withdrawal request")
	}
	span.SetAttributes(attribute.Int64("queue.request_id", int64(req.ID)))

	if err := s.sink.Emit(ctx, events.Event{
		Action:          events.ActionRequestCreated,
		Actor:           actor.Account,
		Account:         redeemer,
		RequestID:       req.ID,
		Assets:          net,
		Shares:          shares,
		Fee:             fee,
		DestinationHash: req.DestinationHash.String(),
	}); err != nil {
		return WithdrawalRequest{}, err
	}
	if fee > 0 {
		if err := s.sink.Emit(ctx, events.Event{
			Action:    events.ActionFeeRequested,
			Actor:     actor.Account,
			Account:   redeemer,
			RequestID: req.ID,
			Fee:       fee,
		}); err != nil {
			return WithdrawalRequest{}, err
		}
	}

	s.metrics.IncrementRequests("bridge")
	s.updateCustodyGauge(ctx)
	s.logger.InfoContext(ctx, "withdrawal request queued",
		"id", req.ID,
		"redeemer", redeemer,
		"assets", net,
		"fee", fee,
		"destination_hash", req.DestinationHash,
	)
	return req, nil
}

// FinalizeRedeemAndBridge settles a pending request. Maintainer only. The
// payload must name exactly the redeemer and destination recorded at
// request time; completion happens at most once per request. Completion
// commits before the dispatch, so a retry after any crash or dispatch
// failure can never hand the network a second settlement; a dispatch that
// fails after completion surfaces as an error for the operator to settle
// out of band.
func (s *Service) FinalizeRedeemAndBridge(ctx context.Context, actor domain.Actor, id domain.RequestID, rawPayload []byte) error {
	ctx, span := s.tracer.Start(ctx, "queue.FinalizeRedeemAndBridge",
		trace.WithAttributes(attribute.Int64("queue.request_id", int64(id))))
	defer span.End()
	start := time.Now()

	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.HasRole(domain.RoleMaintainer) {
		return dErrors.Newf(dErrors.CodeForbidden, "%s role required", domain.RoleMaintainer)
	}
	if id.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "request id is required")
	}

	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "withdrawal request %d not found", id)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load withdrawal request")
	}
	if req.CompletedAt != nil {
		s.metrics.ObserveFinalize("already_completed", time.Since(start))
		return dErrors.Newf(dErrors.CodeAlreadyCompleted, "withdrawal request %d already completed", id)
	}

	payload, err := DecodePayload(rawPayload)
	if err != nil {
		s.metrics.ObserveFinalize("payload_mismatch", time.Since(start))
		return err
	}
	if err := payload.VerifyAgainst(req); err != nil {
		s.metrics.ObserveFinalize("payload_mismatch", time.Since(start))
		s.logger.WarnContext(ctx, "finalize rejected: payload does not match request",
			"id", id,
			"maintainer", actor.Account,
		)
		return err
	}
	if payload.AssetAmount != req.AssetAmount {
		s.metrics.ObserveFinalize("payload_mismatch", time.Since(start))
		return dErrors.New(dErrors.CodePayloadMismatch, "settlement payload amount does not match request")
	}

	custody, err := s.store.CustodyBalance(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read custody balance")
	}
	if custody < req.AssetAmount {
		s.metrics.ObserveFinalize("insufficient_custody", time.Since(start))
		return dErrors.Newf(dErrors.CodeInsufficientFunds,
			"queue custody cannot cover request %d", id)
	}

	// Completion is the point of no return and commits before the
	// dispatch: once completedAt is set, no retry reaches the bridge
	// again, whatever happens to this call afterwards. A concurrent
	// finalize loses the CAS here, before it could dispatch.
	completedAt := requestcontext.Now(ctx).UTC()
	if err := s.store.Complete(ctx, id, completedAt, req.AssetAmount); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyCompleted):
			s.metrics.ObserveFinalize("already_completed", time.Since(start))
			return dErrors.Newf(dErrors.CodeAlreadyCompleted, "withdrawal request %d already completed", id)
		case errors.Is(err, sentinel.ErrInsufficientFunds):
			s.metrics.ObserveFinalize("insufficient_custody", time.Since(start))
			return dErrors.Newf(dErrors.CodeInsufficientFunds,
				"queue custody cannot cover request %d", id)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "complete withdrawal request")
		}
	}

	if err := s.sink.Emit(ctx, events.Event{
		Action:          events.ActionRedeemCompleted,
		Actor:           actor.Account,
		Account:         req.Redeemer,
		RequestID:       id,
		Assets:          req.AssetAmount,
		Shares:          req.SharesBurned,
		DestinationHash: req.DestinationHash.String(),
	}); err != nil {
		return err
	}

	if err := s.bridge.Dispatch(ctx, payload); err != nil {
		s.metrics.ObserveFinalize("dispatch_failed", time.Since(start))
		s.logger.ErrorContext(ctx, "settlement dispatch failed after completion; settle out of band",
			"id", id,
			"redeemer", req.Redeemer,
			"assets", req.AssetAmount,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "settlement dispatch failed after completion")
	}

	s.metrics.ObserveFinalize("completed", time.Since(start))
	s.updateCustodyGauge(ctx)
	s.logger.InfoContext(ctx, "withdrawal request finalized",
		"id", id,
		"redeemer", req.Redeemer,
		"assets", req.AssetAmount,
		"maintainer", actor.Account,
	)
	return nil
}

// Lookup returns a request by ID.
func (s *Service) Lookup(ctx context.Context, id domain.RequestID) (WithdrawalRequest, error) {
	if id.IsNil() {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeBadRequest, "request id is required")
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return WithdrawalRequest{}, dErrors.Newf(dErrors.CodeNotFound, "withdrawal request %d not found", id)
		}
		return WithdrawalRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "load withdrawal request")
	}
	return req, nil
}

// ListByRedeemer returns every request a redeemer has created, oldest
// first.
func (s *Service) ListByRedeemer(ctx context.Context, redeemer domain.AccountID) ([]WithdrawalRequest, error) {
	if redeemer.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "redeemer is required")
	}
	reqs, err := s.store.List(ctx, redeemer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list withdrawal requests")
	}
	return reqs, nil
}

// CustodyBalance reports assets currently held for pending requests.
func (s *Service) CustodyBalance(ctx context.Context) (domain.Sats, error) {
	custody, err := s.store.CustodyBalance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read custody balance")
	}
	return custody, nil
}

// restoreShares undoes a burn for an operation that failed after it. A
// compensation that itself fails only gets an error log; there is nothing
// further to unwind.
func (s *Service) restoreShares(ctx context.Context, owner domain.AccountID, shares domain.Shares) {
	if err := s.port.RestoreShares(ctx, owner, shares); err != nil {
		s.logger.ErrorContext(ctx, "failed to restore burned shares",
			"owner", owner,
			"shares", shares,
			"error", err,
		)
	}
}

func (s *Service) returnToReserve(ctx context.Context, amount domain.Sats) {
	if err := s.port.ReturnToReserve(ctx, amount); err != nil {
		s.logger.ErrorContext(ctx, "failed to return recalled assets to reserve",
			"amount", amount,
			"error", err,
		)
	}
}

// quoteAndCheck converts shares to proceeds and confirms the owner holds
// them, all inside the caller's critical section so the quote and the
// burn see the same state.
func (s *Service) quoteAndCheck(ctx context.Context, owner domain.AccountID, shares domain.Shares) (net, fee domain.Sats, err error) {
	balance, err := s.port.SharesOf(ctx, owner)
	if err != nil {
		return 0, 0, err
	}
	if balance < shares {
		return 0, 0, dErrors.New(dErrors.CodeInsufficientFunds, "insufficient share balance")
	}
	net, fee, err = s.port.QuoteExit(ctx, shares)
	if err != nil {
		return 0, 0, err
	}
	if net.IsZero() {
		return 0, 0, dErrors.New(dErrors.CodeBadRequest, "redemption too small for any payout")
	}
	return net, fee, nil
}

func (s *Service) updateCustodyGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if custody, err := s.store.CustodyBalance(ctx); err == nil {
		s.metrics.SetCustody(uint64(custody))
	}
}
