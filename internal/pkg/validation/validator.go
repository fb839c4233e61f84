package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// probabilityTolerance bounds how far a distribution may sum from 1
const probabilityTolerance = 1e-6

var (
	// ErrInvalidPrediction is returned for distributions that are not probabilities
	ErrInvalidPrediction = errors.New("invalid prediction")
	// ErrInvalidOdds is returned for malformed quotes
	ErrInvalidOdds = errors.New("invalid odds")
)

// ValidatePrediction checks that p is a distribution over its target's outcomes
func ValidatePrediction(p models.Prediction) error {
	if !p.Target.IsValid() {
		return fmt.Errorf("%w: unknown target %q", ErrInvalidPrediction, p.Target)
	}

	want := p.Target.Outcomes()
	if len(p.Outcomes) != len(want) || len(p.Probabilities) != len(want) {
		return fmt.Errorf("%w: %s needs %d outcomes, got %d labels and %d probabilities",
			ErrInvalidPrediction, p.Target, len(want), len(p.Outcomes), len(p.Probabilities))
	}

	sum := 0.0
	for i, prob := range p.Probabilities {
		if p.Outcomes[i] != want[i] {
			return fmt.Errorf("%w: outcome %d is %q, want %q", ErrInvalidPrediction, i, p.Outcomes[i], want[i])
		}
		if math.IsNaN(prob) || prob < 0 || prob > 1 {
			return fmt.Errorf("%w: probability of %s is %v", ErrInvalidPrediction, want[i], prob)
		}
		sum += prob
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInvalidPrediction, sum)
	}
	return nil
}

// ValidateOddsQuote checks that every market in q is a known target with valid prices
func ValidateOddsQuote(q *models.OddsQuote) error {
	if q == nil {
		return fmt.Errorf("%w: nil quote", ErrInvalidOdds)
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("%w: quote for %s has no timestamp", ErrInvalidOdds, q.FixtureID)
	}

	for target, prices := range q.Markets {
		if !target.IsValid() {
			return fmt.Errorf("%w: unknown market %q", ErrInvalidOdds, target)
		}
		labels := make(map[string]bool)
		for _, l := range target.Outcomes() {
			labels[l] = true
		}
		for label, price := range prices {
			if !labels[label] {
				return fmt.Errorf("%w: %s has unknown outcome %q", ErrInvalidOdds, target, label)
			}
			if !ValidPrice(price) {
				return fmt.Errorf("%w: %s %s priced %v", ErrInvalidOdds, target, label, price)
			}
		}
	}
	return nil
}
