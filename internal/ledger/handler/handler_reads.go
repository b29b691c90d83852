package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/httputil"
)

const statsCacheKey = "vault:stats"

type statsResponse struct {
	TotalSupply    uint64 `json:"total_supply"`
	LocalBalance   uint64 `json:"local_balance"`
	AllocatedValue uint64 `json:"allocated_value"`
	TotalAssets    uint64 `json:"total_assets"`
}

type configResponse struct {
	EntryFeeBps uint16 `json:"entry_fee_bps"`
	ExitFeeBps  uint16 `json:"exit_fee_bps"`
	Treasury    string `json:"treasury"`
	Dispatcher  string `json:"dispatcher"`
	MinDeposit  uint64 `json:"min_deposit"`
	Paused      bool   `json:"paused"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cached statsResponse
	if h.cache.GetJSON(ctx, statsCacheKey, &cached) {
		httputil.WriteJSON(w, http.StatusOK, cached)
		return
	}

	state, err := h.ledger.State(ctx)
	if err != nil {
		h.writeOpError(w, r, "stats", err)
		return
	}
	resp := statsResponse{
		TotalSupply:    uint64(state.TotalSupply),
		LocalBalance:   uint64(state.LocalBalance),
		AllocatedValue: uint64(state.AllocatedValue),
		TotalAssets:    uint64(state.TotalAssets),
	}
	h.cache.SetJSON(ctx, statsCacheKey, resp)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ledger.Config(r.Context())
	if err != nil {
		h.writeOpError(w, r, "config", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, configResponse{
		EntryFeeBps: uint16(cfg.EntryFeeBps),
		ExitFeeBps:  uint16(cfg.ExitFeeBps),
		Treasury:    string(cfg.Treasury),
		Dispatcher:  string(cfg.Dispatcher),
		MinDeposit:  uint64(cfg.MinDeposit),
		Paused:      cfg.Paused,
	})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid account"))
		return
	}
	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		h.writeOpError(w, r, "balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"shares": uint64(balance)})
}

// amountQuery parses the single uint64 query parameter previews and fee
// quotes take.
func amountQuery(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s query parameter is required", name)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", name)
	}
	return v, nil
}

func (h *Handler) handlePreviewDeposit(w http.ResponseWriter, r *http.Request) {
	assets, err := amountQuery(r, "assets")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	shares, err := h.ledger.PreviewDeposit(r.Context(), domain.Sats(assets))
	if err != nil {
		h.writeOpError(w, r, "preview_deposit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"shares": uint64(shares)})
}

func (h *Handler) handlePreviewMint(w http.ResponseWriter, r *http.Request) {
	shares, err := amountQuery(r, "shares")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	assets, err := h.ledger.PreviewMint(r.Context(), domain.Shares(shares))
	if err != nil {
		h.writeOpError(w, r, "preview_mint", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"assets": uint64(assets)})
}

func (h *Handler) handlePreviewWithdraw(w http.ResponseWriter, r *http.Request) {
	assets, err := amountQuery(r, "assets")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	shares, err := h.ledger.PreviewWithdraw(r.Context(), domain.Sats(assets))
	if err != nil {
		h.writeOpError(w, r, "preview_withdraw", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"shares": uint64(shares)})
}

func (h *Handler) handlePreviewRedeem(w http.ResponseWriter, r *http.Request) {
	shares, err := amountQuery(r, "shares")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	assets, err := h.ledger.PreviewRedeem(r.Context(), domain.Shares(shares))
	if err != nil {
		h.writeOpError(w, r, "preview_redeem", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"assets": uint64(assets)})
}

func (h *Handler) handleDepositFee(w http.ResponseWriter, r *http.Request) {
	assets, err := amountQuery(r, "assets")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fee, err := h.ledger.CalculateDepositFee(r.Context(), domain.Sats(assets))
	if err != nil {
		h.writeOpError(w, r, "deposit_fee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"fee": uint64(fee)})
}

func (h *Handler) handleWithdrawalFee(w http.ResponseWriter, r *http.Request) {
	assets, err := amountQuery(r, "assets")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fee, err := h.ledger.CalculateWithdrawalFee(r.Context(), domain.Sats(assets))
	if err != nil {
		h.writeOpError(w, r, "withdrawal_fee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"fee": uint64(fee)})
}
