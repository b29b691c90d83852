package handler

import (
	"net/http"

	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"
	"satvault/pkg/platform/httputil"
	"satvault/pkg/requestcontext"
)

type setFeesRequest struct {
	EntryFeeBps uint16 `json:"entry_fee_bps"`
	ExitFeeBps  uint16 `json:"exit_fee_bps"`
}

type setAccountRequest struct {
	Account string `json:"account"`
}

type setMinDepositRequest struct {
	MinDeposit uint64 `json:"min_deposit"`
}

func (h *Handler) handleSetFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[setFeesRequest](w, r, h.logger)
	if !ok {
		return
	}
	entry, err := domain.ParseBasisPoints(uint64(req.EntryFeeBps))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid entry fee rate"))
		return
	}
	exit, err := domain.ParseBasisPoints(uint64(req.ExitFeeBps))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid exit fee rate"))
		return
	}
	if err := h.ledger.SetFees(ctx, requestcontext.Actor(ctx), entry, exit); err != nil {
		h.writeOpError(w, r, "set_fees", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[setAccountRequest](w, r, h.logger)
	if !ok {
		return
	}
	treasury, err := domain.ParseAccountID(req.Account)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid treasury account"))
		return
	}
	if err := h.ledger.SetTreasury(ctx, requestcontext.Actor(ctx), treasury); err != nil {
		h.writeOpError(w, r, "set_treasury", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetDispatcher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[setAccountRequest](w, r, h.logger)
	if !ok {
		return
	}
	dispatcher, err := domain.ParseAccountID(req.Account)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid dispatcher account"))
		return
	}
	if err := h.ledger.SetDispatcher(ctx, requestcontext.Actor(ctx), dispatcher); err != nil {
		h.writeOpError(w, r, "set_dispatcher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetMinDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[setMinDepositRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.ledger.SetMinDeposit(ctx, requestcontext.Actor(ctx), domain.Sats(req.MinDeposit)); err != nil {
		h.writeOpError(w, r, "set_min_deposit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.ledger.Pause(ctx, requestcontext.Actor(ctx)); err != nil {
		h.writeOpError(w, r, "pause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.ledger.Unpause(ctx, requestcontext.Actor(ctx)); err != nil {
		h.writeOpError(w, r, "unpause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
