package models

import (
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
)

// Prediction is a probability distribution over the outcomes of one target
type Prediction struct {
	ID            string       `json:"id"`
	FixtureID     string       `json:"fixture_id"`
	FixtureKey    string       `json:"fixture_key"`
	FixtureName   string       `json:"fixture_name"`
	Kickoff       time.Time    `json:"kickoff"`
	Target        enums.Target `json:"target"`
	Outcomes      []string     `json:"outcomes"`
	Probabilities []float64    `json:"probabilities"`
	ModelVersion  string       `json:"model_version"`
	SchemaVersion string       `json:"schema_version"`
	AsOf          time.Time    `json:"as_of"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Tier is the confidence tier of a value bet
type Tier string

const (
	TierStrong Tier = "strong"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Rank orders tiers, higher is stronger
func (t Tier) Rank() int {
	switch t {
	case TierStrong:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Recommendation labels
const (
	RecommendStrongBet = "STRONG_BET"
	RecommendBet       = "BET"
	RecommendConsider  = "CONSIDER"
	RecommendAvoid     = "AVOID"
)

// ValueBet is a prediction outcome priced favourably by the market
type ValueBet struct {
	FixtureID   string       `json:"fixture_id"`
	FixtureName string       `json:"fixture_name"`
	Kickoff     time.Time    `json:"kickoff"`
	Target      enums.Target `json:"target"`
	Outcome     string       `json:"outcome"`

	ModelProbability   float64 `json:"model_probability"`
	ImpliedProbability float64 `json:"implied_probability"`
	Odds               float64 `json:"odds"`
	Edge               float64 `json:"edge"`
	ExpectedValue      float64 `json:"expected_value"`
	Confidence         float64 `json:"confidence"`

	Tier           Tier    `json:"tier"`
	Recommendation string  `json:"recommendation"`
	StakeFraction  float64 `json:"stake_fraction"`
	Stake          float64 `json:"stake,omitempty"`

	ModelVersion  string    `json:"model_version"`
	Provider      string    `json:"provider"`
	OddsTimestamp time.Time `json:"odds_timestamp"`
	FoundAt       time.Time `json:"found_at"`
}
