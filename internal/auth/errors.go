// Package auth implements the per-device login session: readiness, the
// login sub-flow and its strategies, and the resulting identity.
package auth

import "errors"

var (
	// ErrValidation is returned for malformed user input such as an email
	// without "@" or a code that is not six digits.
	ErrValidation = errors.New("validation failed")
	// ErrVerification is returned when a submitted code does not match.
	ErrVerification = errors.New("verification code does not match")
	// ErrExternalAuth is returned when the OAuth round trip fails.
	ErrExternalAuth = errors.New("external authentication failed")
	// ErrWalletNotInstalled is returned when no browser wallet is present.
	ErrWalletNotInstalled = errors.New("browser wallet not installed")
	// ErrUserRejected is returned when the user declines a wallet request.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrRequestPending is returned while another request is outstanding.
	ErrRequestPending = errors.New("a request is already pending")
	// ErrNotReady is returned before the session finished initializing.
	ErrNotReady = errors.New("session not ready")
	// ErrInvalidTransition is returned when an operation does not apply to
	// the current login step.
	ErrInvalidTransition = errors.New("operation not allowed in current login step")
)

// ErrorCode maps an auth error to the stable code exposed to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrVerification):
		return "verification"
	case errors.Is(err, ErrExternalAuth):
		return "external_auth"
	case errors.Is(err, ErrWalletNotInstalled):
		return "wallet_not_installed"
	case errors.Is(err, ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, ErrRequestPending):
		return "request_pending"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return ""
	}
}
