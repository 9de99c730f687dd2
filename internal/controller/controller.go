// Package controller owns a device's wallet record and mediates every
// balance-affecting operation. State transitions come from the ledger
// package; the controller persists snapshots, calls the chain
// collaborators and publishes transaction status.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/nero-labs/internal/chain"
	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/ledger"
	"github.com/ashureev/nero-labs/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultRecipient receives payments made with no platform selected.
const DefaultRecipient = "0x0000000000000000000000000000000000000001"

// StateStore is the key-value persistence the controller needs.
type StateStore interface {
	GetState(ctx context.Context, key string) ([]byte, error)
	PutState(ctx context.Context, key string, payload []byte) error
}

// Platforms resolves platform configs and fees.
type Platforms interface {
	Get(id string) (domain.PlatformConfig, bool)
	Fee(id string) decimal.Decimal
}

// Deps wires a Controller to its collaborators.
type Deps struct {
	Store     StateStore
	Platforms Platforms
	Minter    chain.Minter
	Payments  chain.PaymentExecutor
	Balances  chain.BalanceChecker
	Notifier  Notifier
	IDs       ledger.IDSource
	Now       func() time.Time

	Prefix    string
	Recipient string
	TopUpMin  decimal.Decimal
	TopUpMax  decimal.Decimal
}

// Snapshot is the externally visible controller state.
type Snapshot struct {
	State          domain.UserState       `json:"state"`
	ActivePlatform string                 `json:"activePlatform,omitempty"`
	Pending        *ledger.PendingPayment `json:"pendingPayment,omitempty"`
}

// Controller is safe for concurrent use. Each operation is one atomic
// read-modify-write under mu; collaborator calls run outside it.
type Controller struct {
	deps Deps

	mu       sync.Mutex
	address  string
	state    domain.UserState
	platform string
	pending  *ledger.PendingPayment

	// mintLocks maps lowercased wallet to *sync.Mutex.
	mintLocks sync.Map
}

// New returns a controller holding guest defaults.
func New(deps Deps) *Controller {
	if deps.Prefix == "" {
		deps.Prefix = store.DefaultPrefix
	}
	if deps.Recipient == "" {
		deps.Recipient = DefaultRecipient
	}
	if deps.Notifier == nil {
		deps.Notifier = discardNotifier{}
	}
	if deps.IDs == nil {
		deps.IDs = chain.IDs{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Controller{deps: deps, state: domain.NewUserState("")}
}

// Bind follows the session: an authenticated address loads its record, a
// ready unauthenticated session resets to guest defaults.
func (c *Controller) Bind(ctx context.Context, view domain.SessionView) {
	switch addr := view.Address(); {
	case addr != "":
		c.mu.Lock()
		same := sameAddress(c.address, addr)
		c.mu.Unlock()
		if !same {
			c.Load(ctx, addr)
		}
	case view.Ready && !view.Authenticated:
		c.Reset()
	}
}

// Load switches to address and reads its stored record. The current address
// always wins over the stored copy. An unreadable record falls back to the
// in-memory record when it belongs to the same wallet or is guest defaults,
// and to fresh defaults otherwise.
func (c *Controller) Load(ctx context.Context, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	prevOwned := prev.WalletAddress == "" || sameAddress(prev.WalletAddress, address)
	if !sameAddress(c.address, address) {
		c.pending = nil
	}
	c.address = address

	key := store.StorageKey(c.deps.Prefix, address)
	raw, err := c.deps.Store.GetState(ctx, key)
	switch {
	case err != nil:
		slog.Error("Failed to read wallet state", "wallet", address, "error", err)
		c.state = fallbackState(prev, prevOwned, address)
	case raw == nil:
		c.state = domain.NewUserState(address)
		slog.Info("Initialized wallet state", "wallet", address)
	default:
		var decoded domain.UserState
		if err := json.Unmarshal(raw, &decoded); err != nil {
			slog.Warn("Stored wallet state is corrupt, falling back", "wallet", address, "error", err)
			c.state = fallbackState(prev, prevOwned, address)
			break
		}
		decoded = ledger.Normalize(decoded)
		decoded.WalletAddress = address
		c.state = decoded
		slog.Info("Loaded wallet state", "wallet", address, "xp", decoded.XP, "balance", decoded.Balance.String())
	}
}

func fallbackState(prev domain.UserState, owned bool, address string) domain.UserState {
	if !owned {
		return domain.NewUserState(address)
	}
	s := prev.Clone()
	s.WalletAddress = address
	return s
}

// Reset drops to guest defaults. Nothing is persisted for guests.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.address != "" {
		slog.Info("Wallet state reset", "wallet", c.address)
	}
	c.address = ""
	c.state = domain.NewUserState("")
	c.pending = nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Address returns the wallet the controller is bound to, or "".
func (c *Controller) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// SelectPlatform sets the active platform; "" clears it.
func (c *Controller) SelectPlatform(id string) error {
	if id != "" {
		if _, ok := c.deps.Platforms.Get(id); !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, id)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.platform = id
	return nil
}

// ProcessActivity charges and rewards one query or transaction. A paid
// activity the balance cannot cover records a pending payment instead.
func (c *Controller) ProcessActivity(ctx context.Context, kind ledger.ActivityKind, explicitlyPaid bool) ActivityResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	env := c.envLocked()
	next, out := ledger.ProcessActivity(c.state, kind, explicitlyPaid, env)
	if out.Shortfall != nil {
		c.pending = out.Shortfall
		slog.Info("Payment required", "wallet", c.address, "amount", out.Fee.String(), "platform_id", env.PlatformID)
		res := failure(StatusPaymentRequired, domain.ErrInsufficientBalance, c.state.Clone())
		return ActivityResult{Result: res, Outcome: out, Pending: out.Shortfall}
	}

	c.state = next
	c.persistLocked(ctx)
	if out.LevelUp {
		slog.Info("Agent leveled up", "wallet", c.address, "platform_id", env.PlatformID, "level", out.AgentLevel.String())
	}
	return ActivityResult{
		Result:  Result{Status: StatusApplied, State: c.state.Clone()},
		Outcome: out,
	}
}

// TopUpBalance credits amount of token. A pending payment survives so it
// can be retried.
func (c *Controller) TopUpBalance(ctx context.Context, amount decimal.Decimal, token domain.Token) TopUpResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkTopUp(amount); err != nil {
		slog.Warn("Top-up rejected", "wallet", c.address, "amount", amount.String(), "error", err)
		return TopUpResult{Result: failure(StatusRejected, err, c.state.Clone())}
	}

	next, rec, err := ledger.TopUp(c.state, amount, token, c.envLocked())
	if err != nil {
		slog.Warn("Top-up rejected", "wallet", c.address, "amount", amount.String(), "error", err)
		return TopUpResult{Result: failure(StatusRejected, err, c.state.Clone())}
	}
	c.state = next
	c.persistLocked(ctx)
	slog.Info("Balance topped up", "wallet", c.address, "amount", amount.String(), "token", rec.Token)

	c.deps.Notifier.Notify(TxEvent{
		Status: TxSuccess,
		Kind:   domain.PaymentTopUp,
		TxHash: rec.ID,
		Amount: amount,
		At:     rec.Timestamp,
	})
	return TopUpResult{Result: Result{Status: StatusApplied, State: c.state.Clone()}, Record: &rec}
}

func (c *Controller) checkTopUp(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if !c.deps.TopUpMin.IsZero() && amount.LessThan(c.deps.TopUpMin) {
		return fmt.Errorf("%w: minimum top-up is %s", domain.ErrInvalidAmount, c.deps.TopUpMin)
	}
	if !c.deps.TopUpMax.IsZero() && amount.GreaterThan(c.deps.TopUpMax) {
		return fmt.Errorf("%w: maximum top-up is %s", domain.ErrInvalidAmount, c.deps.TopUpMax)
	}
	return nil
}

// MintAgent mints the wallet's agent for platformID. A second mint for the
// same wallet while one is in flight is rejected.
func (c *Controller) MintAgent(ctx context.Context, platformID string) MintResult {
	c.mu.Lock()
	address := c.address
	state := c.state.Clone()
	c.mu.Unlock()

	if address == "" {
		return MintResult{Result: failure(StatusLoginRequired, domain.ErrNotAuthenticated, state)}
	}
	platform, ok := c.deps.Platforms.Get(platformID)
	if !ok {
		return MintResult{Result: failure(StatusRejected, fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, platformID), state)}
	}
	if _, exists := state.Agent(platformID); exists {
		slog.Debug("Agent already minted", "wallet", address, "platform_id", platformID)
		return MintResult{Result: failure(StatusRejected, domain.ErrAlreadyMinted, state)}
	}

	lockVal, _ := c.mintLocks.LoadOrStore(strings.ToLower(address), &sync.Mutex{})
	lock := lockVal.(*sync.Mutex)
	if !lock.TryLock() {
		return MintResult{Result: failure(StatusRejected, domain.ErrMintInProgress, state)}
	}
	defer lock.Unlock()

	// A mint that finished between the snapshot and TryLock already stored
	// its agent.
	c.mu.Lock()
	current := c.state.Clone()
	bound := sameAddress(c.address, address)
	c.mu.Unlock()
	if !bound {
		return MintResult{Result: failure(StatusStale, domain.ErrStaleSession, current)}
	}
	if _, exists := current.Agent(platformID); exists {
		slog.Debug("Agent already minted", "wallet", address, "platform_id", platformID)
		return MintResult{Result: failure(StatusRejected, domain.ErrAlreadyMinted, current)}
	}

	c.deps.Notifier.Notify(TxEvent{Status: TxPending, Kind: domain.PaymentMint, PlatformID: platformID, At: c.deps.Now()})
	minted, err := c.deps.Minter.Mint(ctx, address, platformID, platform.Name)
	if err != nil {
		slog.Error("Mint failed", "wallet", address, "platform_id", platformID, "error", err)
		c.notifyFailed(domain.PaymentMint, platformID, decimal.Zero, err)
		return MintResult{Result: failure(StatusFailed, fmt.Errorf("%w: mint: %v", domain.ErrCollaborator, err), c.Snapshot().State)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !sameAddress(c.address, address) {
		slog.Warn("Discarding mint for inactive wallet", "wallet", address, "platform_id", platformID)
		return MintResult{Result: failure(StatusStale, domain.ErrStaleSession, c.state.Clone())}
	}
	next, agent, err := ledger.AddAgent(c.state, platformID, minted.TokenID, minted.TxHash, c.envLocked())
	if err != nil {
		return MintResult{Result: failure(StatusRejected, err, c.state.Clone())}
	}
	c.state = next
	c.persistLocked(ctx)
	slog.Info("Agent stored", "wallet", address, "platform_id", platformID, "token_id", agent.TokenID)

	c.deps.Notifier.Notify(TxEvent{
		Status:     TxSuccess,
		Kind:       domain.PaymentMint,
		TxHash:     minted.TxHash,
		Amount:     decimal.Zero,
		PlatformID: platformID,
		At:         agent.MintedAt,
	})
	return MintResult{
		Result: Result{Status: StatusApplied, State: c.state.Clone()},
		Agent:  &agent,
		TxHash: minted.TxHash,
	}
}

// ConfirmPendingPayment settles the pending payment through the payment
// collaborator. The pending payment is cleared whatever the outcome.
func (c *Controller) ConfirmPendingPayment(ctx context.Context) PaymentResult {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	address := c.address
	platformID := c.platform
	state := c.state.Clone()
	c.mu.Unlock()

	if pending == nil {
		return PaymentResult{Result: failure(StatusRejected, domain.ErrNoPendingPayment, state)}
	}
	if address == "" {
		return PaymentResult{Result: failure(StatusLoginRequired, domain.ErrNotAuthenticated, state)}
	}
	if !ledger.CanSettle(state, *pending) {
		slog.Warn("Pending payment exceeds balance", "wallet", address, "amount", pending.Amount.String(), "balance", state.Balance.String())
		return PaymentResult{Result: failure(StatusRejected, domain.ErrInsufficientBalance, state)}
	}

	recipient := c.deps.Recipient
	if pending.PlatformID != "" {
		platformID = pending.PlatformID
	}
	if cfg, ok := c.deps.Platforms.Get(platformID); ok && cfg.TreasuryWallet != "" {
		recipient = cfg.TreasuryWallet
	}

	c.deps.Notifier.Notify(TxEvent{Status: TxPending, Kind: domain.PaymentQuery, Amount: pending.Amount, PlatformID: platformID, At: c.deps.Now()})
	paid, err := c.deps.Payments.Execute(ctx, chain.PaymentRequest{
		Amount:          pending.Amount,
		Token:           domain.TokenMOVE,
		SenderWallet:    address,
		RecipientWallet: recipient,
		Metadata: chain.PaymentMetadata{
			Type:        domain.PaymentQuery,
			PlatformID:  platformID,
			Description: pending.Description,
		},
	})
	if err != nil {
		slog.Error("Payment failed", "wallet", address, "amount", pending.Amount.String(), "error", err)
		c.notifyFailed(domain.PaymentQuery, platformID, pending.Amount, err)
		return PaymentResult{Result: failure(StatusFailed, fmt.Errorf("%w: payment: %v", domain.ErrCollaborator, err), c.Snapshot().State)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !sameAddress(c.address, address) {
		slog.Warn("Discarding payment for inactive wallet", "wallet", address, "tx_hash", paid.TransactionHash)
		return PaymentResult{Result: failure(StatusStale, domain.ErrStaleSession, c.state.Clone())}
	}
	next, rec, err := ledger.SettlePayment(c.state, *pending, paid.TransactionHash, c.envLocked())
	if err != nil {
		slog.Warn("Payment settled but balance no longer covers it", "wallet", address, "tx_hash", paid.TransactionHash)
		return PaymentResult{Result: failure(StatusRejected, err, c.state.Clone())}
	}
	c.state = next
	c.persistLocked(ctx)
	slog.Info("Payment settled", "wallet", address, "amount", pending.Amount.String(), "tx_hash", rec.ID)

	c.deps.Notifier.Notify(TxEvent{
		Status:     TxSuccess,
		Kind:       domain.PaymentQuery,
		TxHash:     rec.ID,
		Amount:     pending.Amount,
		PlatformID: platformID,
		At:         rec.Timestamp,
	})
	return PaymentResult{Result: Result{Status: StatusApplied, State: c.state.Clone()}, Record: &rec}
}

// CancelPendingPayment drops the pending payment and reports whether one
// existed.
func (c *Controller) CancelPendingPayment() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	had := c.pending != nil
	c.pending = nil
	return had
}

// SyncBalance returns the on-chain balance of the bound wallet. The
// simulated balance is left untouched.
func (c *Controller) SyncBalance(ctx context.Context) (decimal.Decimal, error) {
	address := c.Address()
	if address == "" {
		return decimal.Zero, domain.ErrNotAuthenticated
	}
	if c.deps.Balances == nil {
		return decimal.Zero, nil
	}
	return c.deps.Balances.CheckBalance(ctx, address), nil
}

func (c *Controller) envLocked() ledger.Env {
	return ledger.Env{
		Now:        c.deps.Now(),
		IDs:        c.deps.IDs,
		PlatformID: c.platform,
		Fee:        c.deps.Platforms.Fee(c.platform),
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state.Clone(), ActivePlatform: c.platform}
	if c.pending != nil {
		p := *c.pending
		snap.Pending = &p
	}
	return snap
}

// persistLocked writes the full snapshot. Failures are logged; the
// in-memory record stays authoritative.
func (c *Controller) persistLocked(ctx context.Context) {
	if c.address == "" {
		return
	}
	data, err := json.Marshal(c.state)
	if err != nil {
		slog.Error("Failed to encode wallet state", "wallet", c.address, "error", err)
		return
	}
	if err := c.deps.Store.PutState(ctx, store.StorageKey(c.deps.Prefix, c.address), data); err != nil {
		slog.Error("Failed to persist wallet state", "wallet", c.address, "error", err)
	}
}

func (c *Controller) notifyFailed(kind domain.PaymentType, platformID string, amount decimal.Decimal, err error) {
	c.deps.Notifier.Notify(TxEvent{
		Status:     TxFailed,
		Kind:       kind,
		Amount:     amount,
		PlatformID: platformID,
		Message:    err.Error(),
		At:         c.deps.Now(),
	})
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
