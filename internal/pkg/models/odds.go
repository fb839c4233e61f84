package models

import (
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
)

// OddsQuote holds decimal prices for a fixture, per target and outcome label
type OddsQuote struct {
	FixtureID string                              `json:"fixture_id"`
	Provider  string                              `json:"provider"`
	Timestamp time.Time                           `json:"timestamp"`
	Markets   map[enums.Target]map[string]float64 `json:"markets"`
}

// Market returns prices for target ordered like target.Outcomes().
// ok is false when any outcome is missing or not a valid price.
func (q OddsQuote) Market(target enums.Target) ([]float64, bool) {
	m, exists := q.Markets[target]
	if !exists {
		return nil, false
	}
	labels := target.Outcomes()
	prices := make([]float64, len(labels))
	for i, label := range labels {
		p, ok := m[label]
		if !ok || p <= 1 {
			return nil, false
		}
		prices[i] = p
	}
	return prices, len(prices) > 0
}

// IsStale reports whether the quote is older than maxAge at now
func (q OddsQuote) IsStale(now time.Time, maxAge time.Duration) bool {
	if q.Timestamp.IsZero() {
		return true
	}
	return now.Sub(q.Timestamp) > maxAge
}
