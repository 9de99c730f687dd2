package controller

import (
	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/ledger"
)

// Status is the outcome class of a controller operation.
type Status string

const (
	StatusApplied         Status = "applied"
	StatusPaymentRequired Status = "payment_required"
	StatusRejected        Status = "rejected"
	StatusFailed          Status = "failed"
	StatusLoginRequired   Status = "login_required"
	StatusStale           Status = "stale"
)

// Result is embedded in every operation result. Precondition failures and
// collaborator failures are reported here, never returned as errors.
type Result struct {
	Status  Status           `json:"status"`
	Code    string           `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
	State   domain.UserState `json:"state"`
}

// OK reports whether the operation mutated state as requested.
func (r Result) OK() bool { return r.Status == StatusApplied }

// ActivityResult is returned by ProcessActivity.
type ActivityResult struct {
	Result
	Outcome ledger.ActivityOutcome `json:"outcome"`
	Pending *ledger.PendingPayment `json:"pendingPayment,omitempty"`
}

// TopUpResult is returned by TopUpBalance. Record.ID is the transaction id.
type TopUpResult struct {
	Result
	Record *domain.PaymentRecord `json:"record,omitempty"`
}

// MintResult is returned by MintAgent.
type MintResult struct {
	Result
	Agent  *domain.Agent `json:"agent,omitempty"`
	TxHash string        `json:"txHash,omitempty"`
}

// PaymentResult is returned by ConfirmPendingPayment.
type PaymentResult struct {
	Result
	Record *domain.PaymentRecord `json:"record,omitempty"`
}

func failure(status Status, err error, state domain.UserState) Result {
	return Result{
		Status:  status,
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
		State:   state,
	}
}
