// Package handler exposes the share ledger over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"satvault/internal/ledger"
	"satvault/internal/platform/middleware"
	platformredis "satvault/internal/platform/redis"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/httputil"
	"satvault/pkg/requestcontext"
)

// Handler handles vault ledger endpoints.
type Handler struct {
	ledger    *ledger.Service
	logger    *slog.Logger
	validator middleware.TokenValidator
	cache     *platformredis.Cache
}

func New(svc *ledger.Service, logger *slog.Logger, validator middleware.TokenValidator, cache *platformredis.Cache) *Handler {
	return &Handler{
		ledger:    svc,
		logger:    logger,
		validator: validator,
		cache:     cache,
	}
}

// Register mounts the ledger routes. Reads are public; every mutation
// requires authentication, and admin mutations additionally require a
// role, enforced in the service.
func (h *Handler) Register(r chi.Router) {
	r.Get("/vault/stats", h.handleStats)
	r.Get("/vault/config", h.handleConfig)
	r.Get("/vault/preview/deposit", h.handlePreviewDeposit)
	r.Get("/vault/preview/mint", h.handlePreviewMint)
	r.Get("/vault/preview/withdraw", h.handlePreviewWithdraw)
	r.Get("/vault/preview/redeem", h.handlePreviewRedeem)
	r.Get("/vault/fees/deposit", h.handleDepositFee)
	r.Get("/vault/fees/withdrawal", h.handleWithdrawalFee)
	r.Get("/vault/balances/{account}", h.handleBalance)

	authed := r.With(middleware.RequireAuth(h.validator, h.logger))
	authed.Post("/vault/deposit", h.handleDeposit)
	authed.Post("/vault/mint", h.handleMint)
	authed.Post("/vault/withdraw", h.handleWithdraw)
	authed.Post("/vault/redeem", h.handleRedeem)
	authed.Post("/vault/approve", h.handleApprove)
	authed.Post("/vault/allocate", h.handleAllocate)

	authed.Post("/vault/admin/fees", h.handleSetFees)
	authed.Post("/vault/admin/treasury", h.handleSetTreasury)
	authed.Post("/vault/admin/dispatcher", h.handleSetDispatcher)
	authed.Post("/vault/admin/min-deposit", h.handleSetMinDeposit)
	authed.Post("/vault/admin/pause", h.handlePause)
	authed.Post("/vault/admin/unpause", h.handleUnpause)
}

type depositRequest struct {
	Assets   uint64 `json:"assets"`
	Receiver string `json:"receiver"`
}

type mintRequest struct {
	Shares   uint64 `json:"shares"`
	Receiver string `json:"receiver"`
}

type withdrawRequest struct {
	Assets   uint64 `json:"assets"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

type redeemRequest struct {
	Shares   uint64 `json:"shares"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Shares  uint64 `json:"shares"`
}

type movementResponse struct {
	Assets uint64 `json:"assets"`
	Shares uint64 `json:"shares"`
	Fee    uint64 `json:"fee"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[depositRequest](w, r, h.logger)
	if !ok {
		return
	}
	receiver, err := domain.ParseAccountID(req.Receiver)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid receiver account"))
		return
	}
	res, err := h.ledger.Deposit(ctx, requestcontext.Actor(ctx), domain.Sats(req.Assets), receiver)
	if err != nil {
		h.writeOpError(w, r, "deposit", err)
		return
	}
	h.cache.Invalidate(ctx, statsCacheKey)
	httputil.WriteJSON(w, http.StatusOK, movementResponse{
		Assets: uint64(res.Assets), Shares: uint64(res.Shares), Fee: uint64(res.Fee),
	})
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[mintRequest](w, r, h.logger)
	if !ok {
		return
	}
	receiver, err := domain.ParseAccountID(req.Receiver)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid receiver account"))
		return
	}
	res, err := h.ledger.Mint(ctx, requestcontext.Actor(ctx), domain.Shares(req.Shares), receiver)
	if err != nil {
		h.writeOpError(w, r, "mint", err)
		return
	}
	h.cache.Invalidate(ctx, statsCacheKey)
	httputil.WriteJSON(w, http.StatusOK, movementResponse{
		Assets: uint64(res.Assets), Shares: uint64(res.Shares), Fee: uint64(res.Fee),
	})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[withdrawRequest](w, r, h.logger)
	if !ok {
		return
	}
	receiver, err := domain.ParseAccountID(req.Receiver)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid receiver account"))
		return
	}
	owner, err := domain.ParseAccountID(req.Owner)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid owner account"))
		return
	}
	res, err := h.ledger.Withdraw(ctx, requestcontext.Actor(ctx), domain.Sats(req.Assets), receiver, owner)
	if err != nil {
		h.writeOpError(w, r, "withdraw", err)
		return
	}
	h.cache.Invalidate(ctx, statsCacheKey)
	httputil.WriteJSON(w, http.StatusOK, movementResponse{
		Assets: uint64(res.Assets), Shares: uint64(res.Shares), Fee: uint64(res.Fee),
	})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[redeemRequest](w, r, h.logger)
	if !ok {
		return
	}
	receiver, err := domain.ParseAccountID(req.Receiver)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid receiver account"))
		return
	}
	owner, err := domain.ParseAccountID(req.Owner)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid owner account"))
		return
	}
	res, err := h.ledger.Redeem(ctx, requestcontext.Actor(ctx), domain.Shares(req.Shares), receiver, owner)
	if err != nil {
		h.writeOpError(w, r, "redeem", err)
		return
	}
	h.cache.Invalidate(ctx, statsCacheKey)
	httputil.WriteJSON(w, http.StatusOK, movementResponse{
		Assets: uint64(res.Assets), Shares: uint64(res.Shares), Fee: uint64(res.Fee),
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[approveRequest](w, r, h.logger)
	if !ok {
		return
	}
	spender, err := domain.ParseAccountID(req.Spender)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid spender account"))
		return
	}
	if err := h.ledger.Approve(ctx, requestcontext.Actor(ctx), spender, domain.Shares(req.Shares)); err != nil {
		h.writeOpError(w, r, "approve", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	moved, err := h.ledger.Allocate(ctx, requestcontext.Actor(ctx))
	if err != nil {
		h.writeOpError(w, r, "allocate", err)
		return
	}
	h.cache.Invalidate(ctx, statsCacheKey)
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"allocated": uint64(moved)})
}

func (h *Handler) writeOpError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "vault operation failed",
			"op", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "vault operation rejected",
			"op", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
