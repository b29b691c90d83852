// Package ledger owns the share ledger and reserve accounting: share/asset
// conversion, entry/exit fee routing, allocator delegation, and the
// governance and pause surfaces.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"satvault/internal/allocator"
	"satvault/internal/events"
	"satvault/internal/fees"
	ledgermetrics "satvault/internal/ledger/metrics"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/sentinel"
	txcontext "satvault/pkg/platform/tx"
)

// EventSink records append-only ledger events.
type EventSink interface {
	Emit(ctx context.Context, event events.Event) error
}

type Service struct {
	store   Store
	sink    EventSink
	gateway allocator.Gateway
	db      *sql.DB
	logger  *slog.Logger
	metrics *ledgermetrics.Metrics
}

type Option func(*Service)

// WithGateway attaches the external allocator. Without it the vault
// operates on local reserve alone.
func WithGateway(gateway allocator.Gateway) Option {
	return func(s *Service) { s.gateway = gateway }
}

// WithDB makes every mutating operation run inside one SQL transaction,
// carried through the context for the stores.
func WithDB(db *sql.DB) Option {
	return func(s *Service) { s.db = db }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, sink EventSink, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink is required")
	}

	svc := &Service{
		store:  store,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// withTx runs fn inside a SQL transaction when the service is backed by a
// database; otherwise fn runs directly. One public operation is one
// transaction.
func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// TotalAssets is localBalance plus the allocator's valuation of the
// delegated position; localBalance alone when no allocator is configured.
func (s *Service) TotalAssets(ctx context.Context) (domain.Sats, error) {
	local, err := s.store.LocalBalance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read local balance")
	}
	if s.gateway == nil {
		return local, nil
	}
	allocated, err := s.gateway.Valuation(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "allocator valuation unavailable")
	}
	return local + allocated, nil
}

// State returns a consistent accounting snapshot.
func (s *Service) State(ctx context.Context) (State, error) {
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return State{}, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	local, err := s.store.LocalBalance(ctx)
	if err != nil {
		return State{}, dErrors.Wrap(err, dErrors.CodeInternal, "read local balance")
	}
	var allocated domain.Sats
	if s.gateway != nil {
		allocated, err = s.gateway.Valuation(ctx)
		if err != nil {
			return State{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "allocator valuation unavailable")
		}
	}
	return State{
		TotalSupply:    supply,
		LocalBalance:   local,
		AllocatedValue: allocated,
		TotalAssets:    local + allocated,
	}, nil
}

// Config reads are always available, paused or not.
func (s *Service) Config(ctx context.Context) (Config, error) {
	cfg, err := s.store.Config(ctx)
	if err != nil {
		return Config{}, dErrors.Wrap(err, dErrors.CodeInternal, "read vault config")
	}
	return cfg, nil
}

func (s *Service) Balance(ctx context.Context, account domain.AccountID) (domain.Shares, error) {
	bal, err := s.store.Balance(ctx, account)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read balance")
	}
	return bal, nil
}

func (s *Service) Allowance(ctx context.Context, owner, spender domain.AccountID) (domain.Shares, error) {
	a, err := s.store.Allowance(ctx, owner, spender)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read allowance")
	}
	return a, nil
}

// CalculateDepositFee quotes the fee included in a gross deposit, so the
// deposit-intake collaborator can quote costs before submitting.
func (s *Service) CalculateDepositFee(ctx context.Context, assets domain.Sats) (domain.Sats, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return 0, err
	}
	return fees.OnTotal(assets, cfg.EntryFeeBps), nil
}

// CalculateWithdrawalFee quotes the fee added on top of an exact-asset
// withdrawal.
func (s *Service) CalculateWithdrawalFee(ctx context.Context, assets domain.Sats) (domain.Sats, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return 0, err
	}
	return fees.OnRaw(assets, cfg.ExitFeeBps), nil
}

// -----------------------------------------------------------------------------
// Previews
//
// While paused, previews report zero capacity instead of erroring so
// collaborators polling for quotes see "nothing available" rather than
// failures.
// -----------------------------------------------------------------------------

func (s *Service) PreviewDeposit(ctx context.Context, assets domain.Sats) (domain.Shares, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, nil
	}
	total, err := s.TotalAssets(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	fee := fees.OnTotal(assets, cfg.EntryFeeBps)
	return toShares(assets-fee, total, supply)
}

func (s *Service) PreviewMint(ctx context.Context, shares domain.Shares) (domain.Sats, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, nil
	}
	total, err := s.TotalAssets(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	base, err := toAssetsUp(shares, total, supply)
	if err != nil {
		return 0, err
	}
	return base + fees.OnRaw(base, cfg.EntryFeeBps), nil
}

func (s *Service) PreviewWithdraw(ctx context.Context, assets domain.Sats) (domain.Shares, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, nil
	}
	total, err := s.TotalAssets(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	fee := fees.OnRaw(assets, cfg.ExitFeeBps)
	return toSharesUp(assets+fee, total, supply)
}

func (s *Service) PreviewRedeem(ctx context.Context, shares domain.Shares) (domain.Sats, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, nil
	}
	total, err := s.TotalAssets(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
	}
	base, err := toAssets(shares, total, supply)
	if err != nil {
		return 0, err
	}
	return base - fees.OnTotal(base, cfg.ExitFeeBps), nil
}

// -----------------------------------------------------------------------------
// Deposits
// -----------------------------------------------------------------------------

// Deposit takes a gross asset amount, routes the entry fee to the treasury,
// and mints the proportional shares to receiver.
func (s *Service) Deposit(ctx context.Context, actor domain.Actor, assets domain.Sats, receiver domain.AccountID) (DepositResult, error) {
	if actor.IsNil() {
		return DepositResult{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if receiver.IsNil() {
		return DepositResult{}, dErrors.New(dErrors.CodeBadRequest, "receiver is required")
	}

	var res DepositResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return dErrors.New(dErrors.CodeUnavailable, "vault is paused")
		}
		if assets < cfg.MinDeposit {
			return dErrors.Newf(dErrors.CodeBadRequest, "deposit below minimum of %s", cfg.MinDeposit)
		}

		total, err := s.TotalAssets(ctx)
		if err != nil {
			return err
		}
		supply, err := s.store.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}

		fee := fees.OnTotal(assets, cfg.EntryFeeBps)
		net := assets - fee
		shares, err := toShares(net, total, supply)
		if err != nil {
			return err
		}
		if shares.IsZero() {
			return dErrors.New(dErrors.CodeBadRequest, "deposit too small to mint shares")
		}

		// The fee never enters custody: the vault keeps net and the fee
		// portion goes to the treasury at deposit time.
		if err := s.store.CreditReserve(ctx, net); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "credit reserve")
		}
		if err := s.store.Mint(ctx, receiver, shares); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "mint shares")
		}

		res = DepositResult{Assets: assets, Shares: shares, Fee: fee}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionDeposit,
			Actor:   actor.Account,
			Account: receiver,
			Assets:  assets,
			Shares:  shares,
			Fee:     fee,
		})
	})
	if err != nil {
		return DepositResult{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveDeposit(uint64(res.Assets), uint64(res.Shares))
	}
	s.logger.InfoContext(ctx, "deposit accepted",
		"caller", actor.Account,
		"receiver", receiver,
		"assets", res.Assets,
		"shares", res.Shares,
		"fee", res.Fee,
	)
	return res, nil
}

// Mint is the exact-share counterpart of Deposit: the caller states the
// share count and pays base assets plus the entry fee on top.
func (s *Service) Mint(ctx context.Context, actor domain.Actor, shares domain.Shares, receiver domain.AccountID) (DepositResult, error) {
	if actor.IsNil() {
		return DepositResult{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if receiver.IsNil() {
		return DepositResult{}, dErrors.New(dErrors.CodeBadRequest, "receiver is required")
	}
	if shares.IsZero() {
		return DepositResult{}, dErrors.New(dErrors.CodeBadRequest, "share count must be positive")
	}

	var res DepositResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return dErrors.New(dErrors.CodeUnavailable, "vault is paused")
		}

		total, err := s.TotalAssets(ctx)
		if err != nil {
			return err
		}
		supply, err := s.store.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}

		base, err := toAssetsUp(shares, total, supply)
		if err != nil {
			return err
		}
		fee := fees.OnRaw(base, cfg.EntryFeeBps)
		gross := base + fee
		if gross < cfg.MinDeposit {
			return dErrors.Newf(dErrors.CodeBadRequest, "deposit below minimum of %s", cfg.MinDeposit)
		}

		if err := s.store.CreditReserve(ctx, base); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "credit reserve")
		}
		if err := s.store.Mint(ctx, receiver, shares); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "mint shares")
		}

		res = DepositResult{Assets: gross, Shares: shares, Fee: fee}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionMint,
			Actor:   actor.Account,
			Account: receiver,
			Assets:  gross,
			Shares:  shares,
			Fee:     fee,
		})
	})
	if err != nil {
		return DepositResult{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveDeposit(uint64(res.Assets), uint64(res.Shares))
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Withdrawals
// -----------------------------------------------------------------------------

// Withdraw releases an exact asset amount to receiver, burning the covering
// shares from owner plus the exit fee on top. A local reserve shortfall is
// recalled from the allocator; a refused recall aborts the whole operation.
func (s *Service) Withdraw(ctx context.Context, actor domain.Actor, assets domain.Sats, receiver, owner domain.AccountID) (WithdrawResult, error) {
	if actor.IsNil() {
		return WithdrawResult{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if receiver.IsNil() || owner.IsNil() {
		return WithdrawResult{}, dErrors.New(dErrors.CodeBadRequest, "receiver and owner are required")
	}
	if assets.IsZero() {
		return WithdrawResult{}, dErrors.New(dErrors.CodeBadRequest, "asset amount must be positive")
	}

	var res WithdrawResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return dErrors.New(dErrors.CodeUnavailable, "vault is paused")
		}

		total, err := s.TotalAssets(ctx)
		if err != nil {
			return err
		}
		supply, err := s.store.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}

		fee := fees.OnRaw(assets, cfg.ExitFeeBps)
		gross := assets + fee
		shares, err := toSharesUp(gross, total, supply)
		if err != nil {
			return err
		}

		if err := s.spendSharesFrom(ctx, actor, owner, shares); err != nil {
			return err
		}
		if err := s.coverFromReserve(ctx, gross); err != nil {
			return err
		}
		if err := s.store.DebitReserve(ctx, gross); err != nil {
			if errors.Is(err, sentinel.ErrInsufficientFunds) {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient reserve")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit reserve")
		}

		res = WithdrawResult{Assets: assets, Shares: shares, Fee: fee}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionWithdraw,
			Actor:   actor.Account,
			Account: receiver,
			Assets:  assets,
			Shares:  shares,
			Fee:     fee,
		})
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveWithdrawal(uint64(res.Assets), uint64(res.Shares))
	}
	return res, nil
}

// Redeem burns an exact share count from owner and releases the net
// proceeds after the exit fee to receiver.
func (s *Service) Redeem(ctx context.Context, actor domain.Actor, shares domain.Shares, receiver, owner domain.AccountID) (WithdrawResult, error) {
	if actor.IsNil() {
		return WithdrawResult{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if receiver.IsNil() || owner.IsNil() {
		return WithdrawResult{}, dErrors.New(dErrors.CodeBadRequest, "receiver and owner are required")
	}
	if shares.IsZero() {
		return WithdrawResult{}, dErrors.New(dErrors.CodeBadRequest, "share count must be positive")
	}

	var res WithdrawResult
	err := s.withTx(ctx, func(ctx context.Context) error {
		cfg, err := s.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.Paused {
			return dErrors.New(dErrors.CodeUnavailable, "vault is paused")
		}

		total, err := s.TotalAssets(ctx)
		if err != nil {
			return err
		}
		supply, err := s.store.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "read total supply")
		}

		base, err := toAssets(shares, total, supply)
		if err != nil {
			return err
		}
		fee := fees.OnTotal(base, cfg.ExitFeeBps)
		net := base - fee

		if err := s.spendSharesFrom(ctx, actor, owner, shares); err != nil {
			return err
		}
		if err := s.coverFromReserve(ctx, base); err != nil {
			return err
		}
		if err := s.store.DebitReserve(ctx, base); err != nil {
			if errors.Is(err, sentinel.ErrInsufficientFunds) {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient reserve")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "debit reserve")
		}

		res = WithdrawResult{Assets: net, Shares: shares, Fee: fee}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionRedeem,
			Actor:   actor.Account,
			Account: receiver,
			Assets:  net,
			Shares:  shares,
			Fee:     fee,
		})
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveWithdrawal(uint64(res.Assets), uint64(res.Shares))
	}
	return res, nil
}

// Approve lets owner grant spender the right to burn shares on their
// behalf via withdraw/redeem.
func (s *Service) Approve(ctx context.Context, actor domain.Actor, spender domain.AccountID, shares domain.Shares) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if spender.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "spender is required")
	}
	return s.withTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetAllowance(ctx, actor.Account, spender, shares); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "set allowance")
		}
		return s.sink.Emit(ctx, events.Event{
			Action:  events.ActionApproval,
			Actor:   actor.Account,
			Account: spender,
			Shares:  shares,
		})
	})
}

// spendSharesFrom burns shares from owner, consuming allowance when the
// caller is not the owner. Only the withdrawal queue burns without
// allowance, through its own port.
func (s *Service) spendSharesFrom(ctx context.Context, actor domain.Actor, owner domain.AccountID, shares domain.Shares) error {
	if actor.Account != owner {
		if err := s.store.SpendAllowance(ctx, owner, actor.Account, shares); err != nil {
			if errors.Is(err, sentinel.ErrInsufficientFunds) {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient share allowance")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "spend allowance")
		}
	}
	if err := s.store.Burn(ctx, owner, shares); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient share balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "burn shares")
	}
	return nil
}

// coverFromReserve recalls any local shortfall for a payout of amount from
// the allocator. The recall is all-or-nothing; failures abort the caller.
func (s *Service) coverFromReserve(ctx context.Context, amount domain.Sats) error {
	local, err := s.store.LocalBalance(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read local balance")
	}
	if local >= amount {
		return nil
	}
	shortfall := amount - local
	if s.gateway == nil {
		return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient reserve")
	}
	if err := s.gateway.Recall(ctx, shortfall); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientLiquidity) {
			return dErrors.Wrap(err, dErrors.CodeInsufficientLiquidity, "allocator cannot cover withdrawal")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "allocator recall failed")
	}
	if err := s.store.CreditReserve(ctx, shortfall); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "credit recalled reserve")
	}
	return nil
}
