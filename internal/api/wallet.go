package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/nero-labs/internal/controller"
	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// statusForResult maps a controller result to an HTTP status.
func statusForResult(res controller.Result) int {
	switch res.Status {
	case controller.StatusApplied:
		return http.StatusOK
	case controller.StatusPaymentRequired:
		return http.StatusPaymentRequired
	case controller.StatusLoginRequired:
		return http.StatusUnauthorized
	case controller.StatusFailed:
		return http.StatusBadGateway
	case controller.StatusRejected:
		if res.Code == domain.ErrorCode(domain.ErrInvalidAmount) {
			return http.StatusBadRequest
		}
		if res.Code == domain.ErrorCode(domain.ErrUnknownPlatform) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	default:
		return http.StatusConflict
	}
}

// GetState returns the controller snapshot of the device.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, d.Controller.Snapshot())
}

type activityRequest struct {
	Kind ledger.ActivityKind `json:"kind"`
	Paid bool                `json:"paid"`
}

// ProcessActivity records one query or transaction.
func (h *Handler) ProcessActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = ledger.ActivityQuery
	}
	if !req.Kind.Valid() {
		Error(w, http.StatusBadRequest, "kind must be query or transaction")
		return
	}
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	res := d.Controller.ProcessActivity(r.Context(), req.Kind, req.Paid)
	JSON(w, statusForResult(res.Result), res)
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Token  domain.Token    `json:"token"`
}

// TopUp credits the simulated balance.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = domain.TokenMOVE
	}
	if !req.Token.Valid() {
		Error(w, http.StatusBadRequest, "unsupported token")
		return
	}
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	res := d.Controller.TopUpBalance(r.Context(), req.Amount, req.Token)
	JSON(w, statusForResult(res.Result), res)
}

// MintAgent mints the agent NFT of a platform.
func (h *Handler) MintAgent(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	ctx, cancel := operationContext(r)
	defer cancel()
	res := d.Controller.MintAgent(ctx, chi.URLParam(r, "platformID"))
	JSON(w, statusForResult(res.Result), res)
}

// ConfirmPayment settles the pending payment.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	ctx, cancel := operationContext(r)
	defer cancel()
	res := d.Controller.ConfirmPendingPayment(ctx)
	JSON(w, statusForResult(res.Result), res)
}

// CancelPayment drops the pending payment.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"cancelled": d.Controller.CancelPendingPayment()})
}

type selectPlatformRequest struct {
	PlatformID string `json:"platformId"`
}

// SelectPlatform sets the platform activity is attributed to. An empty id
// clears the selection.
func (h *Handler) SelectPlatform(w http.ResponseWriter, r *http.Request) {
	var req selectPlatformRequest
	if !decode(w, r, &req) {
		return
	}
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	if err := d.Controller.SelectPlatform(req.PlatformID); err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusOK, d.Controller.Snapshot())
}

// OnchainBalance queries the chain balance of the bound wallet.
func (h *Handler) OnchainBalance(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	balance, err := d.Controller.SyncBalance(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	slog.Debug("On-chain balance queried", "device_id", d.ID, "balance", balance.String())
	JSON(w, http.StatusOK, map[string]any{
		"address": d.Controller.Address(),
		"balance": balance,
	})
}
