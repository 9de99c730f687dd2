package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "https://accounts.google.com"
	tokenAudience = "nero-companion"
	tokenTTL      = 5 * time.Minute
)

// OAuthProvider performs the consent round trip and returns a signed ID token.
type OAuthProvider interface {
	Authorize(ctx context.Context) (string, error)
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// SimulatedOAuth stands in for the Google consent screen. It waits Latency,
// fails with probability FailureRate, and otherwise issues an HS256 ID token
// for Email.
type SimulatedOAuth struct {
	Secret      []byte
	Email       string
	Latency     time.Duration
	FailureRate float64
	Now         func() time.Time
}

func (p *SimulatedOAuth) Authorize(ctx context.Context) (string, error) {
	if err := sleepCtx(ctx, p.Latency); err != nil {
		return "", err
	}
	if p.FailureRate > 0 && rand.Float64() < p.FailureRate {
		return "", errors.New("consent window closed")
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	issued := now()
	claims := idTokenClaims{
		Email:         p.Email,
		EmailVerified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   p.Email,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.Secret)
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return signed, nil
}

// TokenVerifier checks ID tokens issued by SimulatedOAuth.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier returns a verifier for tokens signed with secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret, now: time.Now}
}

// Verify validates token and returns its verified email.
func (v *TokenVerifier) Verify(token string) (string, error) {
	var claims idTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalAuth, err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return "", fmt.Errorf("%w: token carries no verified email", ErrExternalAuth)
	}
	return claims.Email, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
