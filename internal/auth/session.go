package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/ashureev/nero-labs/internal/shared"
	"github.com/google/uuid"
)

// DeviceStore remembers the finalized identity of a device across restarts.
type DeviceStore interface {
	GetDeviceSession(ctx context.Context, deviceID string) (*domain.User, error)
	UpsertDeviceSession(ctx context.Context, deviceID string, user *domain.User) error
	DeleteDeviceSession(ctx context.Context, deviceID string) error
}

// Options configures a Session. Zero values get working defaults.
type Options struct {
	InitDelay    time.Duration
	EmailLatency time.Duration
	Store        DeviceStore
	Codes        CodeSender
	OAuth        OAuthProvider
	Verifier     *TokenVerifier
	GenerateCode func() (string, error)
	NewAddress   func() string
	Now          func() time.Time
}

type flowState struct {
	open    bool
	step    domain.LoginStep
	email   string
	code    string
	loading bool
	attempt uint64
}

type listener struct {
	id int
	fn func(domain.SessionView)
}

// Session is the authentication state of one device. All methods are safe
// for concurrent use; at most one login attempt is in flight at a time.
type Session struct {
	deviceID string
	opts     Options

	pubMu sync.Mutex // orders listener callbacks

	mu            sync.Mutex
	ready         bool
	stopped       bool
	authenticated bool
	user          *domain.User
	wallets       []domain.WalletDescriptor
	flow          flowState
	loginErr      string
	listeners     []listener
	nextID        int
	timer         *time.Timer
}

// NewSession creates the session of deviceID. It becomes ready after
// opts.InitDelay, restoring a remembered identity if there is one.
func NewSession(deviceID string, opts Options) *Session {
	if opts.Codes == nil {
		opts.Codes = &LogCodeSender{}
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = generateCode
	}
	if opts.NewAddress == nil {
		opts.NewAddress = NewAddress
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		deviceID: deviceID,
		opts:     opts,
		flow:     flowState{step: domain.LoginStepInitial},
	}
	if opts.InitDelay <= 0 {
		s.markReady()
	} else {
		s.mu.Lock()
		s.timer = time.AfterFunc(opts.InitDelay, s.markReady)
		s.mu.Unlock()
	}
	return s
}

// NewAddress returns a random 20-byte hex address for an embedded wallet.
func NewAddress() string {
	return "0x" + shared.RandomHex(20)
}

// UserID derives the stable synthetic user id of a wallet address.
func UserID(address string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(address)))
	return "did:privy:nero-" + id.String()
}

func (s *Session) markReady() {
	var restored *domain.User
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		user, err := s.opts.Store.GetDeviceSession(ctx, s.deviceID)
		cancel()
		if err != nil {
			slog.Warn("Failed to restore device session", "device_id", s.deviceID, "error", err)
		} else {
			restored = user
		}
	}

	s.mu.Lock()
	if s.ready || s.stopped {
		s.mu.Unlock()
		return
	}
	s.ready = true
	if restored != nil && restored.Address() != "" {
		s.authenticated = true
		s.user = restored
		s.wallets = []domain.WalletDescriptor{{
			Address:          restored.Address(),
			WalletClientType: clientForMethod(restored.LoginMethod),
		}}
		slog.Info("Restored device session", "device_id", s.deviceID, "wallet", restored.Address())
	}
	s.mu.Unlock()
	s.publish()
}

// Stop cancels a pending readiness timer. The session stays usable.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// Callbacks run sequentially and must not call mutating Session methods.
func (s *Session) Subscribe(fn func(domain.SessionView)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// View returns a consistent snapshot of the session.
func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Login opens the login flow. It is a no-op when already authenticated or
// when the flow is already open.
func (s *Session) Login() error {
	return s.mutate(func() error {
		if !s.ready {
			return ErrNotReady
		}
		if s.authenticated || s.flow.open {
			return nil
		}
		s.resetFlowLocked(true)
		s.loginErr = ""
		return nil
	})
}

// StartEmailFlow moves the flow from initial to the email step.
func (s *Session) StartEmailFlow() error {
	return s.mutate(func() error {
		if err := s.requireStepLocked(domain.LoginStepInitial); err != nil {
			return err
		}
		s.loginErr = ""
		s.flow.step = domain.LoginStepEmail
		return nil
	})
}

// SubmitEmail validates email, sends it a fresh code and moves to the code step.
func (s *Session) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	var attempt uint64
	err := s.mutate(func() error {
		if err := s.requireStepLocked(domain.LoginStepEmail); err != nil {
			return err
		}
		if !strings.Contains(email, "@") {
			return s.failLocked(fmt.Errorf("%w: email address must contain @", ErrValidation))
		}
		s.loginErr = ""
		s.flow.email = email
		s.flow.loading = true
		attempt = s.flow.attempt
		return nil
	})
	if err != nil {
		return err
	}

	code, err := s.opts.GenerateCode()
	if err == nil {
		err = sleepCtx(ctx, s.opts.EmailLatency)
	}
	if err == nil {
		err = s.opts.Codes.Send(ctx, email, code)
	}

	return s.mutate(func() error {
		if !s.currentLocked(attempt) {
			return fmt.Errorf("%w: login flow was reset", ErrInvalidTransition)
		}
		s.flow.loading = false
		if err != nil {
			return s.failLocked(fmt.Errorf("send verification code: %w", err))
		}
		s.flow.code = code
		s.flow.step = domain.LoginStepCode
		return nil
	})
}

// SubmitCode checks code against the one sent and finalizes an email login.
// A wrong code keeps the flow at the code step for another try.
func (s *Session) SubmitCode(ctx context.Context, code string) error {
	var strategy EmailStrategy
	var attempt uint64
	err := s.mutate(func() error {
		if err := s.requireStepLocked(domain.LoginStepCode); err != nil {
			return err
		}
		s.loginErr = ""
		strategy = EmailStrategy{Email: s.flow.email, Expected: s.flow.code, Submitted: code}
		attempt = s.flow.attempt
		return nil
	})
	if err != nil {
		return err
	}
	id, err := strategy.Attempt(ctx)
	return s.finish(ctx, attempt, id, err)
}

// LoginWithGoogle runs the simulated OAuth round trip.
func (s *Session) LoginWithGoogle(ctx context.Context) error {
	return s.run(ctx, domain.LoginStepGooglePending, GoogleStrategy{
		Provider: s.opts.OAuth,
		Verifier: s.opts.Verifier,
	})
}

// LoginWithBrowserWallet logs in with the account of provider. A nil
// provider means no extension is installed.
func (s *Session) LoginWithBrowserWallet(ctx context.Context, provider WalletProvider) error {
	return s.run(ctx, domain.LoginStepMetaMaskPending, BrowserWalletStrategy{
		Provider: provider,
		Now:      s.opts.Now,
	})
}

// Back returns from the email or code step to initial, discarding the
// pending email and code.
func (s *Session) Back() error {
	return s.mutate(func() error {
		if !s.ready {
			return ErrNotReady
		}
		if !s.flow.open || (s.flow.step != domain.LoginStepEmail && s.flow.step != domain.LoginStepCode) {
			return ErrInvalidTransition
		}
		s.resetFlowLocked(true)
		s.loginErr = ""
		return nil
	})
}

// Close dismisses the login flow without authenticating.
func (s *Session) Close() {
	_ = s.mutate(func() error {
		s.resetFlowLocked(false)
		s.loginErr = ""
		return nil
	})
}

// Logout clears the identity and forgets it for this device. Idempotent.
func (s *Session) Logout(ctx context.Context) {
	_ = s.mutate(func() error {
		s.authenticated = false
		s.user = nil
		s.wallets = nil
		s.resetFlowLocked(false)
		s.loginErr = ""
		return nil
	})
	if s.opts.Store != nil {
		if err := s.opts.Store.DeleteDeviceSession(ctx, s.deviceID); err != nil {
			slog.Warn("Failed to forget device session", "device_id", s.deviceID, "error", err)
		}
	}
}

// CreateWallet provisions a new embedded wallet and makes it primary.
func (s *Session) CreateWallet(ctx context.Context) (domain.WalletDescriptor, error) {
	var desc domain.WalletDescriptor
	var user *domain.User
	err := s.mutate(func() error {
		if !s.ready {
			return ErrNotReady
		}
		if !s.authenticated {
			return domain.ErrNotAuthenticated
		}
		address := s.opts.NewAddress()
		desc = domain.WalletDescriptor{Address: address, WalletClientType: domain.WalletClientEmbedded}
		s.wallets = append(s.wallets, desc)
		u := s.user.Clone()
		u.Wallet = &domain.WalletRef{Address: address, ChainType: domain.ChainTypeEthereum}
		s.user = u
		user = u.Clone()
		return nil
	})
	if err != nil {
		return domain.WalletDescriptor{}, err
	}
	s.remember(ctx, user)
	return desc, nil
}

func (s *Session) run(ctx context.Context, pending domain.LoginStep, strategy Strategy) error {
	var attempt uint64
	err := s.mutate(func() error {
		if err := s.requireStepLocked(domain.LoginStepInitial); err != nil {
			return err
		}
		s.loginErr = ""
		s.flow.step = pending
		s.flow.loading = true
		attempt = s.flow.attempt
		return nil
	})
	if err != nil {
		return err
	}
	id, err := strategy.Attempt(ctx)
	return s.finish(ctx, attempt, id, err)
}

func (s *Session) finish(ctx context.Context, attempt uint64, id Identity, attemptErr error) error {
	var user *domain.User
	err := s.mutate(func() error {
		if !s.currentLocked(attempt) {
			return fmt.Errorf("%w: login flow was reset", ErrInvalidTransition)
		}
		s.flow.loading = false
		if attemptErr != nil {
			if s.flow.step == domain.LoginStepGooglePending || s.flow.step == domain.LoginStepMetaMaskPending {
				s.flow.step = domain.LoginStepInitial
			}
			return s.failLocked(attemptErr)
		}
		user = s.finalizeLocked(id)
		return nil
	})
	if user != nil {
		slog.Info("Login finalized", "device_id", s.deviceID, "method", user.LoginMethod, "wallet", user.Address())
		s.remember(ctx, user)
	}
	return err
}

// finalizeLocked assigns exactly one wallet, authenticates, and closes the
// flow discarding its secrets, all under one lock hold.
func (s *Session) finalizeLocked(id Identity) *domain.User {
	address := id.Address
	client := id.WalletClient
	if address == "" {
		address = s.opts.NewAddress()
		client = domain.WalletClientEmbedded
	}
	if client == "" {
		client = domain.WalletClientEmbedded
	}

	s.user = &domain.User{
		ID:          UserID(address),
		Email:       id.Email,
		Wallet:      &domain.WalletRef{Address: address, ChainType: domain.ChainTypeEthereum},
		LoginMethod: id.Method,
		CreatedAt:   s.opts.Now(),
	}
	s.authenticated = true
	s.wallets = []domain.WalletDescriptor{{Address: address, WalletClientType: client}}
	s.resetFlowLocked(false)
	s.loginErr = ""
	return s.user.Clone()
}

func (s *Session) remember(ctx context.Context, user *domain.User) {
	if s.opts.Store == nil {
		return
	}
	if err := s.opts.Store.UpsertDeviceSession(ctx, s.deviceID, user); err != nil {
		slog.Warn("Failed to remember device session", "device_id", s.deviceID, "error", err)
	}
}

func (s *Session) requireStepLocked(step domain.LoginStep) error {
	switch {
	case !s.ready:
		return ErrNotReady
	case !s.flow.open:
		return fmt.Errorf("%w: login flow is not open", ErrInvalidTransition)
	case s.flow.loading:
		return ErrRequestPending
	case s.flow.step != step:
		return fmt.Errorf("%w: expected step %s, at %s", ErrInvalidTransition, step, s.flow.step)
	}
	return nil
}

func (s *Session) currentLocked(attempt uint64) bool {
	return s.flow.open && s.flow.attempt == attempt
}

func (s *Session) resetFlowLocked(open bool) {
	s.flow = flowState{
		open:    open,
		step:    domain.LoginStepInitial,
		attempt: s.flow.attempt + 1,
	}
}

func (s *Session) failLocked(err error) error {
	s.loginErr = err.Error()
	return err
}

func (s *Session) viewLocked() domain.SessionView {
	view := domain.SessionView{
		Ready:         s.ready,
		Authenticated: s.authenticated,
		User:          s.user.Clone(),
		Wallets:       append([]domain.WalletDescriptor{}, s.wallets...),
		Flow: domain.LoginFlowView{
			Open:    s.flow.open,
			Step:    s.flow.step,
			Loading: s.flow.loading,
		},
		LoginError: s.loginErr,
	}
	if s.flow.step == domain.LoginStepEmail || s.flow.step == domain.LoginStepCode {
		view.Flow.Email = s.flow.email
	}
	return view
}

func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	s.publish()
	return err
}

func (s *Session) publish() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	view := s.viewLocked()
	fns := make([]func(domain.SessionView), len(s.listeners))
	for i, l := range s.listeners {
		fns[i] = l.fn
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
}

func clientForMethod(m domain.LoginMethod) domain.WalletClientType {
	if m == domain.LoginMethodMetaMask {
		return domain.WalletClientMetaMask
	}
	return domain.WalletClientEmbedded
}
