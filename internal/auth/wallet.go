package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Provider error codes relayed by the browser (EIP-1193 plus our own
// marker for a missing extension).
const (
	CodeUserRejected   = "4001"
	CodeRequestPending = "-32002"
	CodeNotInstalled   = "not_installed"
)

// WalletProvider is the account-request and signing capability of a
// browser wallet extension.
type WalletProvider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	SignMessage(ctx context.Context, address, message string) (string, error)
}

// ProviderError maps a relayed provider error code to the auth taxonomy.
func ProviderError(code, message string) error {
	switch code {
	case "":
		return nil
	case CodeUserRejected:
		return ErrUserRejected
	case CodeRequestPending:
		return ErrRequestPending
	case CodeNotInstalled:
		return ErrWalletNotInstalled
	default:
		return fmt.Errorf("%w: provider error %s: %s", ErrExternalAuth, code, message)
	}
}

// RelayedWallet replays the results a browser obtained from its extension.
// Signatures are not checked.
type RelayedWallet struct {
	Accounts  []string
	Signature string
	ErrorCode string
	Message   string
}

func (w RelayedWallet) RequestAccounts(context.Context) ([]string, error) {
	if err := ProviderError(w.ErrorCode, w.Message); err != nil {
		return nil, err
	}
	return w.Accounts, nil
}

func (w RelayedWallet) SignMessage(context.Context, string, string) (string, error) {
	if w.Signature == "" {
		return "", ErrUserRejected
	}
	return w.Signature, nil
}

// SimulatedWallet is an in-process extension with one account. Concurrent
// account requests fail with ErrRequestPending like a real extension.
type SimulatedWallet struct {
	Address string
	Reject  bool

	mu      sync.Mutex
	pending bool
	hold    chan struct{}
}

func (w *SimulatedWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	if w.pending {
		w.mu.Unlock()
		return nil, ErrRequestPending
	}
	w.pending = true
	hold := w.hold
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.pending = false
		w.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.Reject {
		return nil, ErrUserRejected
	}
	return []string{w.Address}, nil
}

func (w *SimulatedWallet) SignMessage(_ context.Context, address, message string) (string, error) {
	if w.Reject {
		return "", ErrUserRejected
	}
	sum := sha256.Sum256([]byte(address + "\n" + message))
	return "0x" + hex.EncodeToString(sum[:]), nil
}
