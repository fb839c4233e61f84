package models

import (
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
)

// FixtureStatus is the lifecycle state of a fixture
type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "scheduled"
	StatusLive      FixtureStatus = "live"
	StatusFinished  FixtureStatus = "finished"
)

// Score is the final score of a finished fixture
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Fixture represents a football match between two teams
type Fixture struct {
	ID          string        `json:"id"`
	HomeTeam    string        `json:"home_team"`
	AwayTeam    string        `json:"away_team"`
	Competition string        `json:"competition"`
	Kickoff     time.Time     `json:"kickoff"`
	Status      FixtureStatus `json:"status"`
	Score       *Score        `json:"score,omitempty"`
	Source      string        `json:"source"`
}

// Key returns the canonical identity of the fixture
func (f Fixture) Key() string {
	return CanonicalFixtureID(f.HomeTeam, f.AwayTeam, f.Competition, f.Kickoff)
}

// Name returns "Home vs Away"
func (f Fixture) Name() string {
	return f.HomeTeam + " vs " + f.AwayTeam
}

// IsFinished reports whether the fixture has a final score
func (f Fixture) IsFinished() bool {
	return f.Status == StatusFinished && f.Score != nil
}

// Involves reports whether team plays in the fixture
func (f Fixture) Involves(team string) bool {
	return SameTeam(f.HomeTeam, team) || SameTeam(f.AwayTeam, team)
}

// Labels are the training labels derived from a final score
type Labels struct {
	Outcome    string `json:"outcome"`
	TotalGoals int    `json:"total_goals"`
	BTTS       bool   `json:"btts"`
}

// HistoricalRecord is a finished fixture plus its labels. Odds is the last
// pre-kickoff quote when the source keeps one.
type HistoricalRecord struct {
	Fixture Fixture    `json:"fixture"`
	Labels  Labels     `json:"labels"`
	Odds    *OddsQuote `json:"odds,omitempty"`
}

// NewHistoricalRecord derives labels from a finished fixture.
// ok is false when the fixture has no final score.
func NewHistoricalRecord(f Fixture) (HistoricalRecord, bool) {
	if !f.IsFinished() {
		return HistoricalRecord{}, false
	}
	s := f.Score
	outcome := enums.LabelDraw
	switch {
	case s.Home > s.Away:
		outcome = enums.LabelHome
	case s.Away > s.Home:
		outcome = enums.LabelAway
	}
	return HistoricalRecord{
		Fixture: f,
		Labels: Labels{
			Outcome:    outcome,
			TotalGoals: s.Home + s.Away,
			BTTS:       s.Home > 0 && s.Away > 0,
		},
	}, true
}

// ClassOf returns the class index of the record for target, following the
// order of target.Outcomes(). goalsLine is used by GoalsThreshold only.
func (r HistoricalRecord) ClassOf(target enums.Target, goalsLine float64) int {
	switch target {
	case enums.Outcome:
		switch r.Labels.Outcome {
		case enums.LabelHome:
			return 0
		case enums.LabelDraw:
			return 1
		default:
			return 2
		}
	case enums.GoalsThreshold:
		if float64(r.Labels.TotalGoals) > goalsLine {
			return 0
		}
		return 1
	case enums.BothTeamsScore:
		if r.Labels.BTTS {
			return 0
		}
		return 1
	default:
		return -1
	}
}

// RecordsFromFixtures keeps finished fixtures and converts them to records
func RecordsFromFixtures(fixtures []Fixture) []HistoricalRecord {
	out := make([]HistoricalRecord, 0, len(fixtures))
	for _, f := range fixtures {
		if r, ok := NewHistoricalRecord(f); ok {
			out = append(out, r)
		}
	}
	return out
}
