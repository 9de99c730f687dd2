package domain

import "errors"

// Precondition failures surfaced by the application state controller.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyMinted       = errors.New("agent already minted for platform")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrUnknownPlatform     = errors.New("unknown platform")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrMintInProgress      = errors.New("mint already in progress")
	ErrNoPendingPayment    = errors.New("no pending payment")
	ErrCollaborator        = errors.New("collaborator failure")
	ErrStaleSession        = errors.New("wallet changed while operation was in flight")
)

// ErrorCode maps a taxonomy error to the stable code exposed to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrAlreadyMinted):
		return "already_minted"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrUnknownPlatform):
		return "unknown_platform"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrMintInProgress):
		return "mint_in_progress"
	case errors.Is(err, ErrNoPendingPayment):
		return "no_pending_payment"
	case errors.Is(err, ErrStaleSession):
		return "stale_session"
	case errors.Is(err, ErrCollaborator):
		return "collaborator_failure"
	default:
		return "internal"
	}
}
