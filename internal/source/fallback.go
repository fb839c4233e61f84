package source

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// Ensure adapters implement Adapter
var (
	_ Adapter         = (*LiveAdapter)(nil)
	_ Adapter         = (*SyntheticAdapter)(nil)
	_ Adapter         = (*FallbackAdapter)(nil)
	_ FallbackCounter = (*FallbackAdapter)(nil)

	_ ClosingOddsProvider = (*SyntheticAdapter)(nil)
	_ ClosingOddsProvider = (*FallbackAdapter)(nil)
)

// FallbackAdapter answers from primary and switches to fallback whenever the
// primary times out or is unavailable. Callers never see ErrSourceUnavailable
// unless the fallback fails too.
type FallbackAdapter struct {
	primary   Adapter
	fallback  Adapter
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	fallbacks atomic.Int64
}

func NewFallbackAdapter(primary, fallback Adapter, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *FallbackAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FallbackAdapter{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		metrics:  m,
		logger:   logger,
	}
}

func (a *FallbackAdapter) Name() string { return a.primary.Name() }

// Fallbacks returns how many calls were answered by the fallback
func (a *FallbackAdapter) Fallbacks() int64 { return a.fallbacks.Load() }

func (a *FallbackAdapter) FetchFixtures(ctx context.Context, w Window) ([]models.Fixture, error) {
	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	fixtures, err := a.primary.FetchFixtures(pctx, w)
	if err == nil {
		return fixtures, nil
	}
	if !a.shouldFallback(ctx, "fixtures", err) {
		return nil, err
	}
	return a.fallback.FetchFixtures(ctx, w)
}

func (a *FallbackAdapter) FetchHistory(ctx context.Context, q HistoryQuery) ([]models.Fixture, error) {
	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	history, err := a.primary.FetchHistory(pctx, q)
	if err == nil {
		return history, nil
	}
	if !a.shouldFallback(ctx, "history", err) {
		return nil, err
	}
	return a.fallback.FetchHistory(ctx, q)
}

// FetchOdds prices fallback fixtures from the fallback directly
func (a *FallbackAdapter) FetchOdds(ctx context.Context, f models.Fixture) (*models.OddsQuote, error) {
	if f.Source == syntheticSourceName {
		return a.fallback.FetchOdds(ctx, f)
	}
	pctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	quote, err := a.primary.FetchOdds(pctx, f)
	if err == nil {
		return quote, nil
	}
	if !a.shouldFallback(ctx, "odds", err) {
		return nil, err
	}
	return a.fallback.FetchOdds(ctx, f)
}

// ClosingOdds prices fixtures the fallback generated; live history has no
// closing odds without a request per fixture
func (a *FallbackAdapter) ClosingOdds(f models.Fixture) (*models.OddsQuote, bool) {
	if cp, ok := a.primary.(ClosingOddsProvider); ok {
		return cp.ClosingOdds(f)
	}
	if cp, ok := a.fallback.(ClosingOddsProvider); ok && f.Source == a.fallback.Name() {
		return cp.ClosingOdds(f)
	}
	return nil, false
}

// shouldFallback decides whether err from the primary is recovered locally.
// A missing market is an answer, and a cancelled caller gets its own error back.
func (a *FallbackAdapter) shouldFallback(ctx context.Context, op string, err error) bool {
	if errors.Is(err, ErrOddsUnavailable) || ctx.Err() != nil {
		return false
	}
	a.fallbacks.Add(1)
	if a.metrics != nil {
		a.metrics.SourceFallbacks.WithLabelValues(op).Inc()
	}
	a.logger.Warn("Live source unavailable, falling back to synthetic data",
		"op", op,
		"error", err,
	)
	return true
}
