// Package source normalizes fixtures, historical results and odds from a live
// provider or from a deterministic synthetic generator.
package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

var (
	// ErrSourceUnavailable means neither the provider nor the generator could answer
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrOddsUnavailable means the provider answered but has no usable odds for the fixture
	ErrOddsUnavailable = errors.New("odds unavailable")
)

// Window is a half-open time range [From, To)
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Valid reports whether the window is non-empty
func (w Window) Valid() bool {
	return !w.From.IsZero() && w.To.After(w.From)
}

// HistoryQuery selects finished fixtures for a team or a whole competition.
// An empty Team returns every fixture of the competition.
type HistoryQuery struct {
	Team        string
	Competition string
	Until       time.Time
	Lookback    time.Duration
}

// Adapter is the one interface the rest of the pipeline reads data through
type Adapter interface {
	// Name identifies the active mode: "live" or "synthetic"
	Name() string

	// FetchFixtures returns fixtures with kickoff inside the window
	FetchFixtures(ctx context.Context, w Window) ([]models.Fixture, error)

	// FetchHistory returns finished fixtures, oldest first
	FetchHistory(ctx context.Context, q HistoryQuery) ([]models.Fixture, error)

	// FetchOdds returns the latest quote or ErrOddsUnavailable
	FetchOdds(ctx context.Context, f models.Fixture) (*models.OddsQuote, error)
}

// FallbackCounter is implemented by adapters that can answer from a fallback
type FallbackCounter interface {
	Fallbacks() int64
}

// ClosingOddsProvider is implemented by adapters that can price a finished
// fixture as of its kickoff without a provider request
type ClosingOddsProvider interface {
	ClosingOdds(f models.Fixture) (*models.OddsQuote, bool)
}

// Records converts finished fixtures to training records and attaches closing
// odds when a can provide them
func Records(a Adapter, fixtures []models.Fixture) []models.HistoricalRecord {
	records := models.RecordsFromFixtures(fixtures)
	cp, ok := a.(ClosingOddsProvider)
	if !ok {
		return records
	}
	for i := range records {
		if q, ok := cp.ClosingOdds(records[i].Fixture); ok {
			records[i].Odds = q
		}
	}
	return records
}

// New builds the adapter for cfg. Without an API key the synthetic generator is
// the whole source; with one the live provider is wrapped with synthetic fallback.
func New(cfg *config.Config, cache ResponseCache, m *metrics.Metrics, logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	synthetic := NewSyntheticAdapter(nil)
	if cfg.Source.APIKey == "" {
		logger.Info("No provider credential configured, using synthetic data")
		return synthetic
	}
	live := NewLiveAdapter(&cfg.Source, cfg.Engine.GoalsLine, cache, logger)
	return NewFallbackAdapter(live, synthetic, cfg.Source.Timeout, m, logger)
}
