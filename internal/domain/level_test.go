package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want Level
	}{
		{0, LevelNewbie},
		{499, LevelNewbie},
		{500, LevelExplorer},
		{1499, LevelExplorer},
		{1500, LevelStrategist},
		{3999, LevelStrategist},
		{4000, LevelExpert},
		{9999, LevelExpert},
		{10000, LevelMaster},
		{250000, LevelMaster},
	}
	for _, tt := range tests {
		if got := LevelForXP(tt.xp); got != tt.want {
			t.Errorf("LevelForXP(%d) = %v, want %v", tt.xp, got, tt.want)
		}
	}
}

func TestLevelNextAndThreshold(t *testing.T) {
	next, ok := LevelExpert.Next()
	if !ok || next != LevelMaster {
		t.Fatalf("Expert.Next() = %v, %v", next, ok)
	}
	if _, ok := LevelMaster.Next(); ok {
		t.Fatal("Master should have no next level")
	}
	if LevelStrategist.Threshold() != 1500 {
		t.Fatalf("Strategist threshold = %d", LevelStrategist.Threshold())
	}
	if Level(9).String() != "Unknown" {
		t.Fatalf("unexpected name for invalid level: %s", Level(9))
	}
}

func TestSkillsForLevel(t *testing.T) {
	if got := SkillsForLevel(LevelNewbie); len(got) != 0 {
		t.Fatalf("Newbie skills = %v", got)
	}
	want := []string{"analytics", "defi", "mev"}
	if diff := cmp.Diff(want, SkillsForLevel(LevelExpert)); diff != "" {
		t.Fatalf("Expert skills mismatch (-want +got):\n%s", diff)
	}
}

func TestUserStateJSONRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	state := NewUserState("0xabc")
	state.XP = 610
	state.Level = LevelExplorer
	state.Balance = decimal.RequireFromString("0.145")
	state.PaymentHistory = []PaymentRecord{{
		ID: "TX-AB12CD", Type: PaymentQuery, Token: TokenMOVE,
		Amount: decimal.RequireFromString("0.005"), Timestamp: now,
	}}
	state.Agents["Aave"] = Agent{PlatformID: "Aave", TokenID: "nero_1", Level: LevelExplorer, XP: 530, MintedAt: now}

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got UserState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	state := NewUserState("0xabc")
	state.Agents["Aave"] = Agent{PlatformID: "Aave", XP: 10}
	c := state.Clone()
	c.Agents["Uniswap"] = Agent{PlatformID: "Uniswap"}
	c.PaymentHistory = append(c.PaymentHistory, PaymentRecord{ID: "x"})
	if len(state.Agents) != 1 || len(state.PaymentHistory) != 0 {
		t.Fatal("clone mutated original state")
	}
}
