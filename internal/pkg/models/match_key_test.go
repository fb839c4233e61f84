package models

import (
	"testing"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
)

func TestCanonicalFixtureID_Normalization(t *testing.T) {
	kickoff := time.Date(2026, 2, 13, 19, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		home1 string
		away1 string
		home2 string
		away2 string
	}{
		{"Case", "Arsenal", "Chelsea", "ARSENAL", "chelsea"},
		{"Whitespace", "  Manchester   United ", "Leeds", "Manchester United", "Leeds"},
		{"Separators", "Brighton/Hove", "Wolves", "Brighton Hove", "Wolves"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := CanonicalFixtureID(tt.home1, tt.away1, "Premier League", kickoff)
			id2 := CanonicalFixtureID(tt.home2, tt.away2, "premier league", kickoff)
			if id1 != id2 {
				t.Errorf("IDs should match: %q vs %q", id1, id2)
			}
		})
	}
}

func TestCanonicalFixtureID_TimeZoneIndependent(t *testing.T) {
	utc := time.Date(2026, 2, 13, 19, 30, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("CET", 3600))
	if CanonicalFixtureID("A", "B", "L", utc) != CanonicalFixtureID("A", "B", "L", local) {
		t.Errorf("same instant in different zones should give the same ID")
	}
	if got := CanonicalFixtureID("A", "B", "L", time.Time{}); got != "a|b|l|unknown-time" {
		t.Errorf("CanonicalFixtureID with zero time = %q", got)
	}
}

func TestNewHistoricalRecord(t *testing.T) {
	tests := []struct {
		home, away int
		outcome    string
		total      int
		btts       bool
	}{
		{2, 1, enums.LabelHome, 3, true},
		{0, 0, enums.LabelDraw, 0, false},
		{0, 3, enums.LabelAway, 3, false},
	}
	for _, tt := range tests {
		f := Fixture{HomeTeam: "A", AwayTeam: "B", Status: StatusFinished, Score: &Score{Home: tt.home, Away: tt.away}}
		r, ok := NewHistoricalRecord(f)
		if !ok {
			t.Fatalf("NewHistoricalRecord(%d-%d) not ok", tt.home, tt.away)
		}
		if r.Labels.Outcome != tt.outcome || r.Labels.TotalGoals != tt.total || r.Labels.BTTS != tt.btts {
			t.Errorf("NewHistoricalRecord(%d-%d) labels = %+v", tt.home, tt.away, r.Labels)
		}
	}

	if _, ok := NewHistoricalRecord(Fixture{Status: StatusScheduled}); ok {
		t.Errorf("scheduled fixture should not produce a record")
	}
}

func TestClassOf(t *testing.T) {
	f := Fixture{Status: StatusFinished, Score: &Score{Home: 1, Away: 2}}
	r, _ := NewHistoricalRecord(f)

	if got := r.ClassOf(enums.Outcome, 2.5); got != 2 {
		t.Errorf("outcome class = %d, want 2", got)
	}
	if got := r.ClassOf(enums.GoalsThreshold, 2.5); got != 0 {
		t.Errorf("goals class at 2.5 = %d, want 0 (over)", got)
	}
	if got := r.ClassOf(enums.GoalsThreshold, 3.5); got != 1 {
		t.Errorf("goals class at 3.5 = %d, want 1 (under)", got)
	}
	if got := r.ClassOf(enums.BothTeamsScore, 2.5); got != 0 {
		t.Errorf("btts class = %d, want 0 (yes)", got)
	}
}

func TestOddsQuoteMarket(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := OddsQuote{
		Timestamp: now.Add(-5 * time.Minute),
		Markets: map[enums.Target]map[string]float64{
			enums.Outcome:        {enums.LabelHome: 2.1, enums.LabelDraw: 3.4, enums.LabelAway: 3.6},
			enums.BothTeamsScore: {enums.LabelYes: 1.8},
		},
	}

	prices, ok := q.Market(enums.Outcome)
	if !ok || len(prices) != 3 || prices[0] != 2.1 || prices[2] != 3.6 {
		t.Errorf("Market(outcome) = %v, %v", prices, ok)
	}
	if _, ok := q.Market(enums.BothTeamsScore); ok {
		t.Errorf("incomplete market should not be ok")
	}
	if _, ok := q.Market(enums.GoalsThreshold); ok {
		t.Errorf("missing market should not be ok")
	}
	if q.IsStale(now, 10*time.Minute) {
		t.Errorf("5 minute old quote should be fresh with a 10 minute bound")
	}
	if !q.IsStale(now, time.Minute) {
		t.Errorf("5 minute old quote should be stale with a 1 minute bound")
	}
}
