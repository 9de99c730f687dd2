package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ErrInvalidPayment is returned for a non-positive payment amount.
var ErrInvalidPayment = errors.New("invalid payment amount")

// PaymentMetadata describes what a payment is for.
type PaymentMetadata struct {
	Type        domain.PaymentType `json:"type"`
	PlatformID  string             `json:"platformId,omitempty"`
	Description string             `json:"description,omitempty"`
}

// PaymentRequest is one micro-payment on the x402 rail.
type PaymentRequest struct {
	QueryID         string          `json:"queryId"`
	Amount          decimal.Decimal `json:"amount"`
	Token           domain.Token    `json:"token"`
	SenderWallet    string          `json:"from"`
	RecipientWallet string          `json:"to"`
	Metadata        PaymentMetadata `json:"metadata"`
}

// PaymentResult is a settled payment.
type PaymentResult struct {
	TransactionHash string          `json:"transactionHash,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Token           domain.Token    `json:"token"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PaymentExecutor settles payments.
type PaymentExecutor interface {
	Execute(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}

func validatePayment(req *PaymentRequest) error {
	if !req.Amount.IsPositive() {
		return ErrInvalidPayment
	}
	if req.SenderWallet == "" || req.RecipientWallet == "" {
		return fmt.Errorf("%w: sender and recipient are both required", ErrWalletRequired)
	}
	if req.QueryID == "" {
		req.QueryID = uuid.NewString()
	}
	return nil
}

// SimulatedExecutor accepts every valid payment.
type SimulatedExecutor struct {
	Now func() time.Time
}

func (e *SimulatedExecutor) Execute(_ context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := validatePayment(&req); err != nil {
		return PaymentResult{}, err
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return PaymentResult{
		TransactionHash: TxHash(),
		Amount:          req.Amount,
		Token:           req.Token,
		Timestamp:       now(),
	}, nil
}

// X402Executor posts payments to an x402 payment rail.
type X402Executor struct {
	endpoint string
	client   *http.Client
}

// NewX402Executor returns an executor for endpoint.
func NewX402Executor(endpoint string, timeout time.Duration) *X402Executor {
	return &X402Executor{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (e *X402Executor) Execute(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := validatePayment(&req); err != nil {
		return PaymentResult{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("encode payment: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return PaymentResult{}, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("post payment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PaymentResult{}, fmt.Errorf("read payment response: %w", err)
	}
	parsed := gjson.ParseBytes(raw)
	if resp.StatusCode/100 != 2 {
		return PaymentResult{}, fmt.Errorf("payment rail returned %d: %s", resp.StatusCode, parsed.Get("error").String())
	}
	if ok := parsed.Get("success"); ok.Exists() && !ok.Bool() {
		return PaymentResult{}, fmt.Errorf("payment rejected: %s", parsed.Get("error").String())
	}

	hash := parsed.Get("transactionHash").String()
	if hash == "" {
		hash = parsed.Get("txHash").String()
	}
	ts := time.Now()
	if ms := parsed.Get("timestamp"); ms.Exists() {
		ts = time.UnixMilli(ms.Int())
	}
	return PaymentResult{
		TransactionHash: hash,
		Amount:          req.Amount,
		Token:           req.Token,
		Timestamp:       ts,
	}, nil
}
