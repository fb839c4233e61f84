// Package value compares model probabilities with market prices and reports
// outcomes the market underprices.
package value

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// ErrStaleOdds means the quote is older than the freshness bound. It is a
// skip signal: callers report no value bets rather than a failure.
var ErrStaleOdds = errors.New("stale odds")

// edgeTolerance absorbs float noise so an edge exactly at the threshold qualifies
const edgeTolerance = 1e-12

// Config holds evaluation thresholds and staking parameters
type Config struct {
	MinEdge       float64
	MinConfidence float64
	OddsFreshness time.Duration
	KellyFraction float64
	MaxStakePct   float64
	Bankroll      float64
}

// ConfigFrom takes the evaluator settings out of the service config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MinEdge:       cfg.Engine.MinEdge,
		MinConfidence: cfg.Engine.MinConfidence,
		OddsFreshness: cfg.Engine.OddsFreshness,
		KellyFraction: cfg.Value.KellyFraction,
		MaxStakePct:   cfg.Value.MaxStakePct,
		Bankroll:      cfg.Value.Bankroll,
	}
}

// Evaluator turns a prediction and a quote into value bets
type Evaluator struct {
	cfg Config
	now func() time.Time
}

// NewEvaluator creates an evaluator. A nil clock means time.Now.
func NewEvaluator(cfg Config, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{cfg: cfg, now: now}
}

// Evaluate returns every outcome whose edge reaches MinEdge while the
// prediction's confidence reaches MinConfidence, best edge first. A missing
// quote or market yields no bets and no error; a stale quote yields ErrStaleOdds.
func (e *Evaluator) Evaluate(pred models.Prediction, odds *models.OddsQuote) ([]models.ValueBet, error) {
	if odds == nil {
		return nil, nil
	}
	now := e.now()
	if e.cfg.OddsFreshness > 0 && odds.IsStale(now, e.cfg.OddsFreshness) {
		return nil, fmt.Errorf("%w: quote for %s is %s old", ErrStaleOdds, odds.FixtureID, now.Sub(odds.Timestamp).Round(time.Second))
	}

	prices, ok := odds.Market(pred.Target)
	if !ok {
		return nil, nil
	}
	if len(prices) != len(pred.Probabilities) || len(pred.Outcomes) != len(pred.Probabilities) {
		return nil, fmt.Errorf("prediction for %s has %d probabilities, market has %d prices",
			pred.Target, len(pred.Probabilities), len(prices))
	}

	confidence := Confidence(pred.Probabilities)
	if confidence < e.cfg.MinConfidence {
		return nil, nil
	}

	implied := ImpliedProbabilities(prices)
	var bets []models.ValueBet
	for i, p := range pred.Probabilities {
		edge := p - implied[i]
		if edge+edgeTolerance < e.cfg.MinEdge {
			continue
		}

		tier := ClassifyTier(edge, confidence, e.cfg.MinEdge, e.cfg.MinConfidence)
		ev := ExpectedValue(p, prices[i])
		bet := models.ValueBet{
			FixtureID:          pred.FixtureID,
			FixtureName:        pred.FixtureName,
			Kickoff:            pred.Kickoff,
			Target:             pred.Target,
			Outcome:            pred.Outcomes[i],
			ModelProbability:   p,
			ImpliedProbability: implied[i],
			Odds:               prices[i],
			Edge:               edge,
			ExpectedValue:      ev,
			Confidence:         confidence,
			Tier:               tier,
			Recommendation:     Recommendation(tier, ev),
			ModelVersion:       pred.ModelVersion,
			Provider:           odds.Provider,
			OddsTimestamp:      odds.Timestamp,
			FoundAt:            now,
		}
		if ev > 0 {
			fraction := KellyFraction(p, prices[i], e.cfg.KellyFraction, e.cfg.MaxStakePct)
			bet.StakeFraction = fraction.InexactFloat64()
			if e.cfg.Bankroll > 0 {
				bet.Stake = fraction.Mul(decimal.NewFromFloat(e.cfg.Bankroll)).Round(2).InexactFloat64()
			}
		}
		bets = append(bets, bet)
	}

	sort.SliceStable(bets, func(i, j int) bool { return bets[i].Edge > bets[j].Edge })
	return bets, nil
}

// OddsStale reports whether odds stamped at ts are past the freshness bound now
func (e *Evaluator) OddsStale(ts time.Time) bool {
	if e.cfg.OddsFreshness <= 0 {
		return false
	}
	return models.OddsQuote{Timestamp: ts}.IsStale(e.now(), e.cfg.OddsFreshness)
}

// ImpliedProbabilities inverts decimal prices and removes the bookmaker margin
// so the result sums to 1
func ImpliedProbabilities(prices []float64) []float64 {
	out := make([]float64, len(prices))
	var sum float64
	for i, p := range prices {
		if p > 0 {
			out[i] = 1 / p
			sum += out[i]
		}
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Confidence is the probability of the most likely outcome
func Confidence(probs []float64) float64 {
	var best float64
	for _, p := range probs {
		if p > best {
			best = p
		}
	}
	return best
}

// ExpectedValue is the return per unit staked at decimal odds
func ExpectedValue(p, odds float64) float64 {
	return p*odds - 1
}

// ClassifyTier grades a qualifying bet. Strong needs twice the minimum edge
// and a confident model, medium one and a half times the minimum edge.
func ClassifyTier(edge, confidence, minEdge, minConfidence float64) models.Tier {
	strongConfidence := 0.6
	if minConfidence > strongConfidence {
		strongConfidence = minConfidence
	}
	switch {
	case edge+edgeTolerance >= 2*minEdge && confidence >= strongConfidence:
		return models.TierStrong
	case edge+edgeTolerance >= 1.5*minEdge:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// Recommendation maps a tier to an action. Negative expected value is never a bet.
func Recommendation(tier models.Tier, ev float64) string {
	if ev <= 0 {
		return models.RecommendAvoid
	}
	switch tier {
	case models.TierStrong:
		return models.RecommendStrongBet
	case models.TierMedium:
		return models.RecommendBet
	default:
		return models.RecommendConsider
	}
}

// KellyFraction returns fraction * (b*p - q) / b capped at maxStake, where b is
// the net decimal odds. Non-positive Kelly values return zero.
func KellyFraction(p, odds, fraction, maxStake float64) decimal.Decimal {
	b := decimal.NewFromFloat(odds).Sub(decimal.NewFromInt(1))
	if !b.IsPositive() {
		return decimal.Zero
	}
	prob := decimal.NewFromFloat(p)
	q := decimal.NewFromInt(1).Sub(prob)

	kelly := b.Mul(prob).Sub(q).Div(b)
	if !kelly.IsPositive() {
		return decimal.Zero
	}
	adjusted := kelly.Mul(decimal.NewFromFloat(fraction))

	// Cap at max stake percentage
	if maxStake > 0 {
		if limit := decimal.NewFromFloat(maxStake); adjusted.GreaterThan(limit) {
			adjusted = limit
		}
	}
	return adjusted.Round(6)
}
