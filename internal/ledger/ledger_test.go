package ledger

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/shopspring/decimal"
)

type seqIDs struct{ n int }

func (s *seqIDs) PaymentID(prefix string) string {
	s.n++
	return fmt.Sprintf("%s-%06d", prefix, s.n)
}

var fee = decimal.RequireFromString("0.005")

func testEnv() Env {
	return Env{
		Now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IDs: &seqIDs{},
		Fee: fee,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFreeQueriesThenPaidQuery(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xABC")

	for i := 0; i < domain.DefaultFreeQuestions; i++ {
		var out ActivityOutcome
		s, out = ProcessActivity(s, ActivityQuery, false, env)
		if !out.Applied || out.Paid || out.XPGained != XPFreeQuery {
			t.Fatalf("query %d: unexpected outcome %+v", i, out)
		}
	}
	if !s.Balance.Equal(dec("0.15")) {
		t.Fatalf("balance after free queries = %s, want 0.15", s.Balance)
	}
	if s.FreeQuestionsRemaining != 0 {
		t.Fatalf("free questions = %d, want 0", s.FreeQuestionsRemaining)
	}

	xpBefore := s.XP
	s, out := ProcessActivity(s, ActivityQuery, false, env)
	if !out.Applied || !out.Paid || out.XPGained != XPPaidQuery {
		t.Fatalf("paid query outcome = %+v", out)
	}
	if !s.Balance.Equal(dec("0.145")) {
		t.Fatalf("balance = %s, want 0.145", s.Balance)
	}
	if s.XP-xpBefore != 80 {
		t.Fatalf("xp gained = %d, want 80", s.XP-xpBefore)
	}
}

func TestFreeQueryNeverChangesBalance(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")
	s.FreeQuestionsRemaining = 3
	next, _ := ProcessActivity(s, ActivityQuery, true, env)
	if !next.Balance.Equal(s.Balance) {
		t.Fatalf("balance changed: %s -> %s", s.Balance, next.Balance)
	}
	if next.FreeQuestionsRemaining != 2 {
		t.Fatalf("free questions = %d, want 2", next.FreeQuestionsRemaining)
	}
}

func TestInsufficientBalanceProducesShortfall(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xABC")
	s.FreeQuestionsRemaining = 0
	s.Balance = dec("0.003")

	next, out := ProcessActivity(s, ActivityQuery, false, env)
	if out.Applied {
		t.Fatal("activity should not apply")
	}
	if out.Shortfall == nil || !out.Shortfall.Amount.Equal(fee) {
		t.Fatalf("shortfall = %+v, want amount %s", out.Shortfall, fee)
	}
	if !next.Balance.Equal(dec("0.003")) || next.XP != 0 || next.FreeQuestionsRemaining != 0 {
		t.Fatalf("state mutated: %+v", next)
	}
	if len(next.PaymentHistory) != 0 {
		t.Fatal("history should be untouched")
	}
}

func TestTransactionPaidOnlyWhenExplicit(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")

	s, out := ProcessActivity(s, ActivityTransaction, false, env)
	if out.Paid || !s.Balance.Equal(dec("0.15")) || out.XPGained != XPTransaction {
		t.Fatalf("unpaid transaction outcome = %+v balance %s", out, s.Balance)
	}
	if s.FreeQuestionsRemaining != domain.DefaultFreeQuestions {
		t.Fatal("transactions must not consume the free quota")
	}
	if s.PaymentHistory[0].Type != domain.PaymentEvolution {
		t.Fatalf("record type = %s, want evolution", s.PaymentHistory[0].Type)
	}

	s, out = ProcessActivity(s, ActivityTransaction, true, env)
	if !out.Paid || !s.Balance.Equal(dec("0.145")) {
		t.Fatalf("paid transaction outcome = %+v balance %s", out, s.Balance)
	}
}

func TestAgentXPAndLevel(t *testing.T) {
	env := testEnv()
	env.PlatformID = "Aave"
	s := domain.NewUserState("0xabc")
	s, _, err := AddAgent(s, "Aave", "nero_1", "", env)
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	levelUps := 0
	for i := 0; i < 4; i++ {
		var out ActivityOutcome
		s, out = ProcessActivity(s, ActivityTransaction, false, env)
		if out.LevelUp {
			levelUps++
		}
	}
	agent := s.Agents["Aave"]
	if agent.XP != 600 || agent.Level != domain.LevelExplorer {
		t.Fatalf("agent = %+v, want xp 600 Explorer", agent)
	}
	if levelUps != 1 {
		t.Fatalf("level ups = %d, want 1", levelUps)
	}
	if s.Level != domain.LevelExplorer || len(s.UnlockedSkills) != 1 {
		t.Fatalf("account level %v skills %v", s.Level, s.UnlockedSkills)
	}
}

func TestAgentWithoutActivePlatformUntouched(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")
	s, _, _ = AddAgent(s, "Aave", "nero_1", "", env)
	s, _ = ProcessActivity(s, ActivityTransaction, false, env)
	if s.Agents["Aave"].XP != 0 {
		t.Fatal("agent xp should only grow on its own platform")
	}
	if s.XP != XPTransaction {
		t.Fatalf("account xp = %d", s.XP)
	}
}

func TestAddAgentTwiceRejected(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")
	s, _, err := AddAgent(s, "Uniswap", "nero_1", "0xhash", env)
	if err != nil {
		t.Fatalf("first mint: %v", err)
	}
	again, _, err := AddAgent(s, "Uniswap", "nero_2", "", env)
	if !errors.Is(err, domain.ErrAlreadyMinted) {
		t.Fatalf("err = %v, want ErrAlreadyMinted", err)
	}
	if again.Agents["Uniswap"].TokenID != "nero_1" || len(again.PaymentHistory) != 1 {
		t.Fatal("second mint mutated state")
	}
	if s.PaymentHistory[0].ID != "0xhash" || !s.PaymentHistory[0].Amount.IsZero() {
		t.Fatalf("mint record = %+v", s.PaymentHistory[0])
	}
}

func TestTopUp(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")

	same, _, err := TopUp(s, decimal.Zero, domain.TokenMOVE, env)
	if !errors.Is(err, domain.ErrInvalidAmount) || len(same.PaymentHistory) != 0 {
		t.Fatalf("zero top-up: err %v", err)
	}
	_, _, err = TopUp(s, dec("-1"), domain.TokenMOVE, env)
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("negative top-up: err %v", err)
	}

	s, rec, err := TopUp(s, dec("0.5"), domain.TokenUSDC, env)
	if err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	if !s.Balance.Equal(dec("0.65")) || rec.Type != domain.PaymentTopUp || rec.Token != domain.TokenUSDC {
		t.Fatalf("balance %s record %+v", s.Balance, rec)
	}
}

func TestSettlePayment(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")
	s.Balance = dec("0.003")
	p := PendingPayment{Amount: fee}

	if _, _, err := SettlePayment(s, p, "0xtx", env); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	s, _, _ = TopUp(s, dec("0.5"), domain.TokenMOVE, env)
	s, rec, err := SettlePayment(s, p, "", env)
	if err != nil {
		t.Fatalf("SettlePayment: %v", err)
	}
	if !s.Balance.Equal(dec("0.498")) || rec.Type != domain.PaymentQuery || rec.ID == "" {
		t.Fatalf("balance %s record %+v", s.Balance, rec)
	}
}

func TestHistoryCappedNewestFirst(t *testing.T) {
	env := testEnv()
	s := domain.NewUserState("0xabc")
	var last domain.PaymentRecord
	for i := 0; i < 45; i++ {
		s, last, _ = TopUp(s, dec("0.01"), domain.TokenMOVE, env)
		if len(s.PaymentHistory) > domain.MaxPaymentHistory {
			t.Fatalf("history length %d exceeds cap", len(s.PaymentHistory))
		}
		if s.PaymentHistory[0].ID != last.ID {
			t.Fatalf("newest record not at index 0")
		}
	}
	if len(s.PaymentHistory) != domain.MaxPaymentHistory {
		t.Fatalf("history length = %d", len(s.PaymentHistory))
	}
	if s.TransactionsCount != 45 {
		t.Fatalf("transactions count = %d", s.TransactionsCount)
	}
}

func TestBalanceNeverNegative(t *testing.T) {
	env := testEnv()
	env.Fee = dec("0.037")
	rng := rand.New(rand.NewPCG(1, 2))
	s := domain.NewUserState("0xabc")
	for i := 0; i < 2000; i++ {
		switch rng.IntN(3) {
		case 0:
			s, _ = ProcessActivity(s, ActivityQuery, false, env)
		case 1:
			s, _ = ProcessActivity(s, ActivityTransaction, rng.IntN(2) == 0, env)
		default:
			amount := decimal.NewFromInt(int64(rng.IntN(5) - 1)).Div(decimal.NewFromInt(100))
			s, _, _ = TopUp(s, amount, domain.TokenMOVE, env)
		}
		if s.Balance.IsNegative() {
			t.Fatalf("step %d: balance went negative: %s", i, s.Balance)
		}
	}
}

func TestNormalizeRecomputesDerivedFields(t *testing.T) {
	s := domain.NewUserState("0xabc")
	s.XP = 4200
	s.Level = domain.LevelNewbie
	s.Agents["Aave"] = domain.Agent{PlatformID: "Aave", XP: 1600, Level: domain.LevelNewbie}
	s.Network = ""

	n := Normalize(s)
	if n.Level != domain.LevelExpert || len(n.UnlockedSkills) != 3 {
		t.Fatalf("level %v skills %v", n.Level, n.UnlockedSkills)
	}
	if n.Agents["Aave"].Level != domain.LevelStrategist {
		t.Fatalf("agent level = %v", n.Agents["Aave"].Level)
	}
	if n.Network != domain.DefaultNetwork {
		t.Fatalf("network = %q", n.Network)
	}
}
