// Package handler exposes the withdrawal queue over HTTP.
package handler

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"satvault/internal/platform/middleware"
	platformredis "satvault/internal/platform/redis"
	"satvault/internal/queue"
	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/httputil"
	"satvault/pkg/requestcontext"
)

// Handler handles withdrawal queue endpoints.
type Handler struct {
	queue     *queue.Service
	logger    *slog.Logger
	validator middleware.TokenValidator
	cache     *platformredis.Cache
}

func New(svc *queue.Service, logger *slog.Logger, validator middleware.TokenValidator, cache *platformredis.Cache) *Handler {
	return &Handler{
		queue:     svc,
		logger:    logger,
		validator: validator,
		cache:     cache,
	}
}

// Register mounts the queue routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/queue/requests/{id}", h.handleLookup)
	r.Get("/queue/custody", h.handleCustody)

	authed := r.With(middleware.RequireAuth(h.validator, h.logger))
	authed.Post("/queue/redeem", h.handleRedeem)
	authed.Post("/queue/redeem-and-bridge", h.handleRedeemAndBridge)
	authed.Get("/queue/requests", h.handleListOwn)

	finalize := r.With(
		middleware.RequireAuth(h.validator, h.logger),
		middleware.RequireRole(domain.RoleMaintainer, h.logger),
	)
	finalize.Post("/queue/requests/{id}/finalize", h.handleFinalize)
}

type redeemRequest struct {
	Shares   uint64 `json:"shares"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
}

type redeemAndBridgeRequest struct {
	Shares            uint64 `json:"shares"`
	Redeemer          string `json:"redeemer"`
	DestinationScript string `json:"destination_script"`
}

type finalizeRequest struct {
	SettlementPayload string `json:"settlement_payload"`
}

type requestResponse struct {
	ID              uint64  `json:"id"`
	Redeemer        string  `json:"redeemer"`
	SharesBurned    uint64  `json:"shares_burned"`
	AssetAmount     uint64  `json:"asset_amount"`
	ExitFee         uint64  `json:"exit_fee"`
	DestinationHash string  `json:"destination_hash"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

func toResponse(req queue.WithdrawalRequest) requestResponse {
	resp := requestResponse{
		ID:              uint64(req.ID),
		Redeemer:        string(req.Redeemer),
		SharesBurned:    uint64(req.SharesBurned),
		AssetAmount:     uint64(req.AssetAmount),
		ExitFee:         uint64(req.ExitFee),
		DestinationHash: req.DestinationHash.String(),
		Status:          string(req.Status()),
		CreatedAt:       req.CreatedAt.UTC().Format(time.RFC3339),
	}
	if req.CompletedAt != nil {
		completed := req.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

func requestCacheKey(id domain.RequestID) string {
	return fmt.Sprintf("queue:request:%d", id)
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
	res, err := h.queue.RequestRedeem(ctx, requestcontext.Actor(ctx), domain.Shares(req.Shares), receiver, owner)
	if err != nil {
		h.writeOpError(w, r, "redeem", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{
		"assets": uint64(res.Assets),
		"fee":    uint64(res.Fee),
		"shares": uint64(res.Shares),
	})
}

func (h *Handler) handleRedeemAndBridge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[redeemAndBridgeRequest](w, r, h.logger)
	if !ok {
		return
	}
	redeemer, err := domain.ParseAccountID(req.Redeemer)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid redeemer account"))
		return
	}
	script, err := hex.DecodeString(req.DestinationScript)
	if err != nil || len(script) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid destination script"))
		return
	}
	created, err := h.queue.RequestRedeemAndBridge(ctx, requestcontext.Actor(ctx), domain.Shares(req.Shares), redeemer, script)
	if err != nil {
		h.writeOpError(w, r, "redeem_and_bridge", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[finalizeRequest](w, r, h.logger)
	if !ok {
		return
	}
	payload, err := hex.DecodeString(req.SettlementPayload)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "settlement payload must be hex encoded"))
		return
	}
	if err := h.queue.FinalizeRedeemAndBridge(ctx, requestcontext.Actor(ctx), id, payload); err != nil {
		h.writeOpError(w, r, "finalize", err)
		return
	}
	h.cache.Invalidate(ctx, requestCacheKey(id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseRequestID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var cached requestResponse
	if h.cache.GetJSON(ctx, requestCacheKey(id), &cached) {
		httputil.WriteJSON(w, http.StatusOK, cached)
		return
	}

	req, err := h.queue.Lookup(ctx, id)
	if err != nil {
		h.writeOpError(w, r, "lookup", err)
		return
	}
	resp := toResponse(req)
	h.cache.SetJSON(ctx, requestCacheKey(id), resp)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	reqs, err := h.queue.ListByRedeemer(ctx, actor.Account)
	if err != nil {
		h.writeOpError(w, r, "list", err)
		return
	}
	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCustody(w http.ResponseWriter, r *http.Request) {
	custody, err := h.queue.CustodyBalance(r.Context())
	if err != nil {
		h.writeOpError(w, r, "custody", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"custody": uint64(custody)})
}

func parseRequestID(r *http.Request) (domain.RequestID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid request id")
	}
	return domain.RequestID(id), nil
}

func (h *Handler) writeOpError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "queue operation failed",
			"op", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, "queue operation rejected",
			"op", op,
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
