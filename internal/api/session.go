package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/nero-labs/internal/auth"
	"github.com/ashureev/nero-labs/internal/domain"
)

// sessionResponse is the session view plus development extras.
type sessionResponse struct {
	domain.SessionView
	DevCode string `json:"devCode,omitempty"`
}

func (h *Handler) writeSession(w http.ResponseWriter, view domain.SessionView) {
	JSON(w, http.StatusOK, sessionResponse{SessionView: view})
}

// sessionOp runs a session transition and replies with the resulting view.
func (h *Handler) sessionOp(w http.ResponseWriter, r *http.Request, op func(*auth.Session) error) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	if err := op(d.Session); err != nil {
		slog.Debug("Session transition rejected", "device_id", d.ID, "error", err)
		writeErr(w, err)
		return
	}
	h.writeSession(w, d.Session.View())
}

// GetSession returns the current session view.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	h.writeSession(w, d.Session.View())
}

// Login opens the login flow.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(s *auth.Session) error { return s.Login() })
}

// CloseLogin dismisses the login flow.
func (h *Handler) CloseLogin(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(s *auth.Session) error {
		s.Close()
		return nil
	})
}

// Back returns to the previous login step.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(s *auth.Session) error { return s.Back() })
}

// Logout clears the identity of the device.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := operationContext(r)
	defer cancel()
	h.sessionOp(w, r, func(s *auth.Session) error {
		s.Logout(ctx)
		return nil
	})
}

// StartEmail moves the flow to email entry.
func (h *Handler) StartEmail(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(s *auth.Session) error { return s.StartEmailFlow() })
}

type emailRequest struct {
	Email string `json:"email"`
}

// SubmitEmail sends a verification code to the given address.
func (h *Handler) SubmitEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	d, ok := h.device(w, r)
	if !ok {
		return
	}

	ctx, cancel := operationContext(r)
	defer cancel()
	if err := d.Session.SubmitEmail(ctx, req.Email); err != nil {
		writeErr(w, err)
		return
	}

	resp := sessionResponse{SessionView: d.Session.View()}
	if h.codes != nil {
		if code, ok := h.codes.Peek(strings.TrimSpace(req.Email)); ok {
			resp.DevCode = code
		}
	}
	JSON(w, http.StatusOK, resp)
}

type codeRequest struct {
	Code string `json:"code"`
}

// SubmitCode verifies the emailed code.
func (h *Handler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := operationContext(r)
	defer cancel()
	h.sessionOp(w, r, func(s *auth.Session) error { return s.SubmitCode(ctx, req.Code) })
}

// LoginWithGoogle runs the OAuth login.
func (h *Handler) LoginWithGoogle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := operationContext(r)
	defer cancel()
	h.sessionOp(w, r, func(s *auth.Session) error { return s.LoginWithGoogle(ctx) })
}

// walletRequest relays what the browser extension returned. With Simulated
// set the server plays the extension itself.
type walletRequest struct {
	Accounts  []string `json:"accounts"`
	Signature string   `json:"signature"`
	ErrorCode string   `json:"errorCode"`
	Message   string   `json:"message"`
	Simulated bool     `json:"simulated"`
	Address   string   `json:"address"`
}

func (req walletRequest) provider() auth.WalletProvider {
	if req.Simulated {
		addr := req.Address
		if addr == "" {
			addr = auth.NewAddress()
		}
		return &auth.SimulatedWallet{Address: addr}
	}
	return auth.RelayedWallet{
		Accounts:  req.Accounts,
		Signature: req.Signature,
		ErrorCode: req.ErrorCode,
		Message:   req.Message,
	}
}

// LoginWithWallet signs in with a browser wallet.
func (h *Handler) LoginWithWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := operationContext(r)
	defer cancel()
	h.sessionOp(w, r, func(s *auth.Session) error {
		return s.LoginWithBrowserWallet(ctx, req.provider())
	})
}

// CreateWallet provisions a new embedded wallet.
func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	d, ok := h.device(w, r)
	if !ok {
		return
	}
	ctx, cancel := operationContext(r)
	defer cancel()
	desc, err := d.Session.CreateWallet(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{
		"wallet":  desc,
		"session": d.Session.View(),
	})
}
