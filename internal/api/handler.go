// Package api provides HTTP handlers for the Nero API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/nero-labs/internal/auth"
	"github.com/ashureev/nero-labs/internal/chat"
	"github.com/ashureev/nero-labs/internal/device"
	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/identity"
	"github.com/ashureev/nero-labs/internal/middleware"
	"github.com/ashureev/nero-labs/internal/platform"
	"github.com/go-chi/chi/v5"
)

const (
	maxRequestBodySize = 64 << 10
	// Login attempts outlive a dropped client so the session still settles.
	operationTimeout = 30 * time.Second
)

// CodePeeker exposes issued login codes in development.
type CodePeeker interface {
	Peek(email string) (string, bool)
}

// Deps wires a Handler.
type Deps struct {
	Devices    *device.Registry
	Platforms  *platform.Registry
	Chat       *chat.Service
	Codes      CodePeeker
	AdminToken string
}

// Handler serves the session, wallet, platform and chat endpoints.
type Handler struct {
	devices    *device.Registry
	platforms  *platform.Registry
	chat       *chat.Service
	codes      CodePeeker
	adminToken string
}

// NewHandler creates a new Handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		devices:    deps.Devices,
		platforms:  deps.Platforms,
		chat:       deps.Chat,
		codes:      deps.Codes,
		adminToken: deps.AdminToken,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/login", h.Login)
			r.Post("/close", h.CloseLogin)
			r.Post("/back", h.Back)
			r.Post("/logout", h.Logout)
			r.Post("/wallets", h.CreateWallet)
			r.Post("/email/start", h.StartEmail)
			r.Post("/email/submit", h.SubmitEmail)
			r.Post("/code", h.SubmitCode)
			r.Post("/google", h.LoginWithGoogle)
			r.Post("/wallet", h.LoginWithWallet)
		})

		r.Get("/state", h.GetState)
		r.Post("/activity", h.ProcessActivity)
		r.Post("/topup", h.TopUp)
		r.Post("/agents/{platformID}/mint", h.MintAgent)
		r.Post("/payments/confirm", h.ConfirmPayment)
		r.Post("/payments/cancel", h.CancelPayment)
		r.Post("/platform/select", h.SelectPlatform)
		r.Get("/balance/onchain", h.OnchainBalance)

		r.Get("/platforms", h.ListPlatforms)
		r.With(middleware.RequireAdmin(h.adminToken)).Put("/platforms/{id}", h.UpdatePlatform)

		r.Post("/chat", h.Chat)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorBody is the failure payload with a machine readable code.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, err error) {
	code := auth.ErrorCode(err)
	if code == "" {
		code = domain.ErrorCode(err)
	}
	JSON(w, statusForError(err), errorBody{Error: err.Error(), Code: code})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrWalletNotInstalled),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrVerification),
		errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserRejected),
		errors.Is(err, auth.ErrRequestPending),
		errors.Is(err, auth.ErrInvalidTransition),
		errors.Is(err, domain.ErrMintInProgress),
		errors.Is(err, domain.ErrAlreadyMinted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownPlatform):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, auth.ErrExternalAuth),
		errors.Is(err, domain.ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}

// device resolves the caller's device, writing 401 when identity is missing.
func (h *Handler) device(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := identity.DeviceIDFromContext(r.Context())
	if id == "" {
		Error(w, http.StatusUnauthorized, "missing device identity")
		return nil, false
	}
	return h.devices.Get(id), true
}

// operationContext detaches from client cancellation but keeps request values.
func operationContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), operationTimeout)
}
