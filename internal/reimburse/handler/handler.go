// Package handler exposes the reimbursement pool over HTTP.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"satvault/internal/platform/middleware"
	"satvault/internal/reimburse"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/httputil"
	"satvault/pkg/requestcontext"
)

// Handler handles reimbursement pool endpoints.
type Handler struct {
	pool      *reimburse.Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc *reimburse.Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		pool:      svc,
		logger:    logger,
		validator: validator,
	}
}

// Register mounts the pool routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/pool/balance", h.handleBalance)

	authed := r.With(middleware.RequireAuth(h.validator, h.logger))
	authed.Post("/pool/fund", h.handleFund)
	authed.Post("/pool/reimburse", h.handleReimburse)
	authed.Post("/pool/withdraw", h.handleWithdraw)
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type withdrawRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.pool.Balance(r.Context())
	if err != nil {
		h.writeOpError(w, r, "balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"balance": uint64(balance)})
}

func (h *Handler) handleFund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[amountRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.pool.Fund(ctx, requestcontext.Actor(ctx), domain.Sats(req.Amount)); err != nil {
		h.writeOpError(w, r, "fund", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReimburse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[amountRequest](w, r, h.logger)
	if !ok {
		return
	}
	paid, err := h.pool.Reimburse(ctx, requestcontext.Actor(ctx), domain.Sats(req.Amount))
	if err != nil {
		h.writeOpError(w, r, "reimburse", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"paid": uint64(paid)})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[withdrawRequest](w, r, h.logger)
	if !ok {
		return
	}
	to, err := domain.ParseAccountID(req.To)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid destination account"))
		return
	}
	if err := h.pool.Withdraw(ctx, requestcontext.Actor(ctx), to, domain.Sats(req.Amount)); err != nil {
		h.writeOpError(w, r, "withdraw", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeOpError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "pool operation failed",
			"op", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "pool operation rejected",
			"op", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
