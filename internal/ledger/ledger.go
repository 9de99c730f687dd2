// Package ledger holds the pure state transitions of a wallet's economic and
// progression record. Functions take a record plus an event and return the
// next record and an outcome; they never perform I/O.
package ledger

import (
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/shopspring/decimal"
)

// ActivityKind is the type of user activity that earns XP.
type ActivityKind string

const (
	ActivityQuery       ActivityKind = "query"
	ActivityTransaction ActivityKind = "transaction"
)

// Valid reports whether k is a known activity kind.
func (k ActivityKind) Valid() bool {
	return k == ActivityQuery || k == ActivityTransaction
}

// XP awarded per activity.
const (
	XPTransaction int64 = 150
	XPPaidQuery   int64 = 80
	XPFreeQuery   int64 = 30
)

// IDSource produces identifiers for payment records.
type IDSource interface {
	// PaymentID returns a short record id such as "TX-7KQ2ZP".
	PaymentID(prefix string) string
}

// Env carries the inputs a transition needs besides the record itself.
type Env struct {
	Now        time.Time
	IDs        IDSource
	PlatformID string
	Fee        decimal.Decimal
}

// PendingPayment records a shortfall awaiting explicit confirmation.
type PendingPayment struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	PlatformID  string          `json:"platformId,omitempty"`
}

// ActivityOutcome describes the effect of ProcessActivity.
type ActivityOutcome struct {
	Applied    bool                  `json:"applied"`
	Paid       bool                  `json:"paid"`
	Fee        decimal.Decimal       `json:"fee"`
	XPGained   int64                 `json:"xpGained"`
	Record     *domain.PaymentRecord `json:"record,omitempty"`
	Shortfall  *PendingPayment       `json:"shortfall,omitempty"`
	AgentLevel domain.Level          `json:"agentLevel,omitempty"`
	LevelUp    bool                  `json:"levelUp"`
}

// ProcessActivity applies a query or transaction to s.
//
// A query is paid only once the free quota is exhausted; a transaction is
// paid iff explicitlyPaid. A paid activity the balance cannot cover leaves s
// untouched and reports a shortfall for env.Fee.
func ProcessActivity(s domain.UserState, kind ActivityKind, explicitlyPaid bool, env Env) (domain.UserState, ActivityOutcome) {
	paid := explicitlyPaid
	if kind == ActivityQuery {
		paid = s.FreeQuestionsRemaining <= 0
	}
	cost := decimal.Zero
	if paid {
		cost = env.Fee
	}

	if paid && s.Balance.LessThan(cost) {
		return s, ActivityOutcome{
			Paid: true,
			Fee:  cost,
			Shortfall: &PendingPayment{
				Amount:      cost,
				Description: "Query Payment",
				PlatformID:  env.PlatformID,
			},
		}
	}

	var xp int64
	switch {
	case kind == ActivityTransaction:
		xp = XPTransaction
	case paid:
		xp = XPPaidQuery
	default:
		xp = XPFreeQuery
	}

	next := s.Clone()
	out := ActivityOutcome{Applied: true, Paid: paid, Fee: cost, XPGained: xp}

	if env.PlatformID != "" {
		if agent, ok := next.Agents[env.PlatformID]; ok {
			before := agent.Level
			agent.XP += xp
			agent.Level = max(before, domain.LevelForXP(agent.XP))
			next.Agents[env.PlatformID] = agent
			out.AgentLevel = agent.Level
			out.LevelUp = agent.Level > before
		}
	}

	next.Balance = next.Balance.Sub(cost).Round(domain.AmountPlaces)
	if kind == ActivityQuery && !paid {
		next.FreeQuestionsRemaining = max(0, next.FreeQuestionsRemaining-1)
	}

	recordType := domain.PaymentQuery
	if kind == ActivityTransaction {
		recordType = domain.PaymentEvolution
	}
	rec := domain.PaymentRecord{
		ID:        env.IDs.PaymentID("TX"),
		Type:      recordType,
		Token:     domain.TokenMOVE,
		Amount:    cost,
		Timestamp: env.Now,
	}
	next = appendPayment(next, rec)
	next = addAccountXP(next, xp)
	out.Record = &rec
	return next, out
}

// TopUp credits amount of token to the balance.
func TopUp(s domain.UserState, amount decimal.Decimal, token domain.Token, env Env) (domain.UserState, domain.PaymentRecord, error) {
	if !amount.IsPositive() {
		return s, domain.PaymentRecord{}, domain.ErrInvalidAmount
	}
	if !token.Valid() {
		token = domain.TokenMOVE
	}
	next := s.Clone()
	next.Balance = next.Balance.Add(amount).Round(domain.AmountPlaces)
	rec := domain.PaymentRecord{
		ID:        env.IDs.PaymentID("TOP"),
		Type:      domain.PaymentTopUp,
		Token:     token,
		Amount:    amount,
		Timestamp: env.Now,
	}
	return appendPayment(next, rec), rec, nil
}

// AddAgent stores a freshly minted agent for platformID.
// recordID is the mint transaction hash; an id is generated when empty.
func AddAgent(s domain.UserState, platformID, tokenID, recordID string, env Env) (domain.UserState, domain.Agent, error) {
	if _, ok := s.Agents[platformID]; ok {
		return s, domain.Agent{}, domain.ErrAlreadyMinted
	}
	agent := domain.Agent{
		PlatformID: platformID,
		TokenID:    tokenID,
		Level:      domain.LevelNewbie,
		XP:         0,
		MintedAt:   env.Now,
	}
	if recordID == "" {
		recordID = env.IDs.PaymentID("TX")
	}
	next := s.Clone()
	next.Agents[platformID] = agent
	next = appendPayment(next, domain.PaymentRecord{
		ID:        recordID,
		Type:      domain.PaymentMint,
		Token:     domain.TokenMOVE,
		Amount:    decimal.Zero,
		Timestamp: env.Now,
	})
	return next, agent, nil
}

// CanSettle reports whether the balance covers a pending payment.
func CanSettle(s domain.UserState, p PendingPayment) bool {
	return !s.Balance.LessThan(p.Amount)
}

// SettlePayment deducts a confirmed pending payment.
// txID is the collaborator's transaction hash; an id is generated when empty.
func SettlePayment(s domain.UserState, p PendingPayment, txID string, env Env) (domain.UserState, domain.PaymentRecord, error) {
	if !CanSettle(s, p) {
		return s, domain.PaymentRecord{}, domain.ErrInsufficientBalance
	}
	if txID == "" {
		txID = env.IDs.PaymentID("TX")
	}
	next := s.Clone()
	next.Balance = next.Balance.Sub(p.Amount).Round(domain.AmountPlaces)
	rec := domain.PaymentRecord{
		ID:        txID,
		Type:      domain.PaymentQuery,
		Token:     domain.TokenMOVE,
		Amount:    p.Amount,
		Timestamp: env.Now,
	}
	return appendPayment(next, rec), rec, nil
}

// Normalize repairs a decoded record so derived fields agree with xp and the
// collections are non-nil. It never lowers xp or agent levels.
func Normalize(s domain.UserState) domain.UserState {
	next := s.Clone()
	if next.Balance.IsNegative() {
		next.Balance = decimal.Zero
	}
	if next.FreeQuestionsRemaining < 0 {
		next.FreeQuestionsRemaining = 0
	}
	if next.Network == "" {
		next.Network = domain.DefaultNetwork
	}
	next.Level = domain.LevelForXP(next.XP)
	next.UnlockedSkills = domain.SkillsForLevel(next.Level)
	for id, a := range next.Agents {
		a.Level = max(a.Level, domain.LevelForXP(a.XP))
		next.Agents[id] = a
	}
	if len(next.PaymentHistory) > domain.MaxPaymentHistory {
		next.PaymentHistory = next.PaymentHistory[:domain.MaxPaymentHistory]
	}
	return next
}

func appendPayment(s domain.UserState, rec domain.PaymentRecord) domain.UserState {
	history := make([]domain.PaymentRecord, 0, min(len(s.PaymentHistory)+1, domain.MaxPaymentHistory))
	history = append(history, rec)
	for _, r := range s.PaymentHistory {
		if len(history) == domain.MaxPaymentHistory {
			break
		}
		history = append(history, r)
	}
	s.PaymentHistory = history
	s.TransactionsCount++
	return s
}

func addAccountXP(s domain.UserState, xp int64) domain.UserState {
	s.XP += xp
	s.Level = domain.LevelForXP(s.XP)
	s.UnlockedSkills = domain.SkillsForLevel(s.Level)
	return s
}
