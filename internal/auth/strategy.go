package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
)

// CodeLength is the number of digits in an email verification code.
const CodeLength = 6

// Identity is what a successful login attempt yields. An empty Address asks
// the session to provision an embedded wallet.
type Identity struct {
	Method       domain.LoginMethod
	Email        string
	Address      string
	WalletClient domain.WalletClientType
}

// Strategy is one login method.
type Strategy interface {
	Attempt(ctx context.Context) (Identity, error)
}

// EmailStrategy verifies a submitted code against the one sent to Email.
type EmailStrategy struct {
	Email     string
	Expected  string
	Submitted string
}

func (s EmailStrategy) Attempt(context.Context) (Identity, error) {
	code := strings.TrimSpace(s.Submitted)
	if !isDigits(code, CodeLength) {
		return Identity{}, fmt.Errorf("%w: code must be %d digits", ErrValidation, CodeLength)
	}
	if s.Expected == "" || subtle.ConstantTimeCompare([]byte(code), []byte(s.Expected)) != 1 {
		return Identity{}, ErrVerification
	}
	return Identity{Method: domain.LoginMethodEmail, Email: s.Email}, nil
}

// GoogleStrategy runs the OAuth round trip and trusts the verified ID token.
type GoogleStrategy struct {
	Provider OAuthProvider
	Verifier *TokenVerifier
}

func (s GoogleStrategy) Attempt(ctx context.Context) (Identity, error) {
	if s.Provider == nil || s.Verifier == nil {
		return Identity{}, fmt.Errorf("%w: oauth not configured", ErrExternalAuth)
	}
	token, err := s.Provider.Authorize(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrExternalAuth, err)
	}
	email, err := s.Verifier.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Method: domain.LoginMethodGoogle, Email: email}, nil
}

// BrowserWalletStrategy connects an extension wallet and has it sign a
// login challenge. The address comes from the wallet, never generated.
type BrowserWalletStrategy struct {
	Provider WalletProvider
	Now      func() time.Time
}

func (s BrowserWalletStrategy) Attempt(ctx context.Context) (Identity, error) {
	if s.Provider == nil {
		return Identity{}, ErrWalletNotInstalled
	}
	accounts, err := s.Provider.RequestAccounts(ctx)
	if err != nil {
		return Identity{}, err
	}
	if len(accounts) == 0 || strings.TrimSpace(accounts[0]) == "" {
		return Identity{}, fmt.Errorf("%w: wallet returned no accounts", ErrExternalAuth)
	}
	address := strings.TrimSpace(accounts[0])

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	signature, err := s.Provider.SignMessage(ctx, address, ChallengeMessage(address, now()))
	if err != nil {
		return Identity{}, err
	}
	if signature == "" {
		return Identity{}, fmt.Errorf("%w: empty signature", ErrExternalAuth)
	}
	return Identity{
		Method:       domain.LoginMethodMetaMask,
		Address:      address,
		WalletClient: domain.WalletClientMetaMask,
	}, nil
}

// ChallengeMessage is the text a browser wallet signs to log in.
func ChallengeMessage(address string, at time.Time) string {
	return fmt.Sprintf("Sign in to Nero\nAddress: %s\nTimestamp: %d", address, at.UnixMilli())
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
