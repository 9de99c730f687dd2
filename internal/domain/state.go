package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultFreeQuestions is the free query quota of a fresh wallet.
	DefaultFreeQuestions = 10
	// MaxPaymentHistory bounds the stored payment history per wallet.
	MaxPaymentHistory = 30
	// DefaultNetwork is the network label stored with every record.
	DefaultNetwork = "Movement M2"
	// AmountPlaces is the number of decimal places kept on balances.
	AmountPlaces = 6
)

// StartingBalance is the simulated MOVE balance granted to a fresh wallet.
var StartingBalance = decimal.RequireFromString("0.15")

// PaymentType classifies a payment history entry.
type PaymentType string

const (
	PaymentQuery     PaymentType = "query"
	PaymentTopUp     PaymentType = "topup"
	PaymentEvolution PaymentType = "evolution"
	PaymentMint      PaymentType = "mint"
)

// Token is a fungible unit accepted by the payment rail.
type Token string

const (
	TokenMOVE Token = "MOVE"
	TokenUSDC Token = "USDC"
	TokenUSDT Token = "USDT"
)

// Valid reports whether t is a supported token.
func (t Token) Valid() bool {
	switch t {
	case TokenMOVE, TokenUSDC, TokenUSDT:
		return true
	}
	return false
}

// PaymentRecord is an immutable audit entry.
type PaymentRecord struct {
	ID        string          `json:"id"`
	Type      PaymentType     `json:"type"`
	Token     Token           `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Agent is a platform-scoped progression token owned by a wallet.
type Agent struct {
	PlatformID string    `json:"platformId"`
	TokenID    string    `json:"tokenId"`
	Level      Level     `json:"level"`
	XP         int64     `json:"xp"`
	MintedAt   time.Time `json:"mintedAt"`
}

// UserState is the per-wallet economic and progression record.
type UserState struct {
	WalletAddress          string           `json:"walletAddress"`
	FreeQuestionsRemaining int              `json:"freeQuestionsRemaining"`
	XP                     int64            `json:"xp"`
	Level                  Level            `json:"level"`
	Balance                decimal.Decimal  `json:"balance"`
	Network                string           `json:"network"`
	TransactionsCount      int              `json:"transactionsCount"`
	UnlockedSkills         []string         `json:"unlockedSkills"`
	PaymentHistory         []PaymentRecord  `json:"paymentHistory"`
	Agents                 map[string]Agent `json:"agents"`
}

// NewUserState returns the fresh defaults for address ("" for a guest).
func NewUserState(address string) UserState {
	return UserState{
		WalletAddress:          address,
		FreeQuestionsRemaining: DefaultFreeQuestions,
		Level:                  LevelNewbie,
		Balance:                StartingBalance,
		Network:                DefaultNetwork,
		UnlockedSkills:         []string{},
		PaymentHistory:         []PaymentRecord{},
		Agents:                 map[string]Agent{},
	}
}

// Clone returns a deep copy so transitions never alias the input record.
func (s UserState) Clone() UserState {
	c := s
	c.UnlockedSkills = slices.Clone(s.UnlockedSkills)
	c.PaymentHistory = slices.Clone(s.PaymentHistory)
	c.Agents = maps.Clone(s.Agents)
	if c.UnlockedSkills == nil {
		c.UnlockedSkills = []string{}
	}
	if c.PaymentHistory == nil {
		c.PaymentHistory = []PaymentRecord{}
	}
	if c.Agents == nil {
		c.Agents = map[string]Agent{}
	}
	return c
}

// Agent returns the agent minted for platformID, if any.
func (s UserState) Agent(platformID string) (Agent, bool) {
	a, ok := s.Agents[platformID]
	return a, ok
}

// PlatformConfig describes an integrated platform's branding and fees.
type PlatformConfig struct {
	Name           string          `json:"name"`
	Logo           string          `json:"logo"`
	PrimaryColor   string          `json:"primaryColor"`
	NFTImage       string          `json:"nftImage"`
	TreasuryWallet string          `json:"treasuryWallet"`
	FeePerQuery    decimal.Decimal `json:"feePerQuery"`
	SystemPrompt   string          `json:"systemPrompt"`
}
