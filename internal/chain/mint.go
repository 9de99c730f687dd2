package chain

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrWalletRequired is returned when a collaborator call lacks a wallet.
var ErrWalletRequired = errors.New("wallet address required")

// MintResult identifies a freshly minted agent token.
type MintResult struct {
	TokenID string `json:"tokenId"`
	TxHash  string `json:"txHash"`
}

// Minter mints agent tokens.
type Minter interface {
	Mint(ctx context.Context, wallet, platformID, platformName string) (MintResult, error)
}

// SimulatedMinter mints without touching a chain.
type SimulatedMinter struct {
	Latency time.Duration
	Now     func() time.Time
}

func (m *SimulatedMinter) Mint(ctx context.Context, wallet, platformID, platformName string) (MintResult, error) {
	if wallet == "" {
		return MintResult{}, ErrWalletRequired
	}
	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return MintResult{}, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	res := MintResult{TokenID: TokenID(now()), TxHash: TxHash()}
	slog.Info("Agent minted", "wallet", wallet, "platform_id", platformID, "platform", platformName, "token_id", res.TokenID)
	return res, nil
}
