package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Vodeneev/footpredict/internal/cache"
	"github.com/Vodeneev/footpredict/internal/features"
	"github.com/Vodeneev/footpredict/internal/model"
	"github.com/Vodeneev/footpredict/internal/notify"
	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
	"github.com/Vodeneev/footpredict/internal/pkg/storage"
	"github.com/Vodeneev/footpredict/internal/pkg/validation"
	"github.com/Vodeneev/footpredict/internal/source"
	"github.com/Vodeneev/footpredict/internal/value"
)

var (
	// ErrModelUnavailable means no model is loaded for any requested target yet
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrFixtureNotFound means the fixture id is not in the current fixture window
	ErrFixtureNotFound = errors.New("fixture not found")
	// ErrInvalidFixture is returned by Predict for fixtures failing validation
	ErrInvalidFixture = validation.ErrInvalidFixture
)

const (
	recentPredictionsInStatus = 10
	valueBetWorkers           = 4
)

// Options holds the engine settings taken from config
type Options struct {
	CacheTTL        time.Duration
	SweepInterval   time.Duration
	FixtureWindow   time.Duration
	HistoryLookback time.Duration
	FormWindow      int
	GoalsLine       float64
}

// OptionsFrom extracts engine options from cfg
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		CacheTTL:        cfg.Engine.CacheTTL,
		SweepInterval:   cfg.Engine.SweepInterval,
		FixtureWindow:   cfg.Engine.FixtureWindow,
		HistoryLookback: cfg.Source.Lookback,
		FormWindow:      cfg.Engine.FormWindow,
		GoalsLine:       cfg.Engine.GoalsLine,
	}
}

// Deps are the collaborators of an Engine. Notifier, Metrics, Logger and Now may be nil.
type Deps struct {
	Source    source.Adapter
	Store     storage.Store
	Evaluator *value.Evaluator
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// PredictionSet is the engine's answer for one fixture
type PredictionSet struct {
	Fixture     models.Fixture          `json:"fixture"`
	Predictions []models.Prediction     `json:"predictions"`
	Unavailable map[enums.Target]string `json:"unavailable,omitempty"`
	Cached      bool                    `json:"cached"`
	Stale       bool                    `json:"stale,omitempty"`
}

// only returns a copy of s restricted to target
func (s *PredictionSet) only(target enums.Target) *PredictionSet {
	out := *s
	out.Predictions = []models.Prediction{}
	for _, p := range s.Predictions {
		if p.Target == target {
			out.Predictions = append(out.Predictions, p)
		}
	}
	out.Unavailable = nil
	if reason, ok := s.Unavailable[target]; ok {
		out.Unavailable = map[enums.Target]string{target: reason}
	}
	return &out
}

// ValueBetSet is the evaluated value bets for one fixture
type ValueBetSet struct {
	Fixture       models.Fixture    `json:"fixture"`
	Bets          []models.ValueBet `json:"bets"`
	OddsProvider  string            `json:"odds_provider,omitempty"`
	OddsTimestamp time.Time         `json:"odds_timestamp,omitempty"`
	OddsStale     bool              `json:"odds_stale,omitempty"`
	Note          string            `json:"note,omitempty"`
	Cached        bool              `json:"cached"`
}

// Engine owns the loaded models, result caches and fixture index.
// It is safe for concurrent use.
type Engine struct {
	opts      Options
	source    source.Adapter
	store     storage.Store
	builder   *features.Builder
	evaluator *value.Evaluator
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	models map[enums.Target]*atomic.Pointer[model.Model]

	predictions *cache.Cache[models.Prediction]
	valueBets   *cache.Cache[*ValueBetSet]

	fixturesMu  sync.RWMutex
	fixtures    map[string]models.Fixture
	refreshedAt time.Time

	retrain chan string
}

// New creates an engine with no models loaded
func New(opts Options, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Evaluator == nil {
		deps.Evaluator = value.NewEvaluator(value.Config{}, deps.Now)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.FixtureWindow <= 0 {
		opts.FixtureWindow = 7 * 24 * time.Hour
	}
	if opts.HistoryLookback <= 0 {
		opts.HistoryLookback = 365 * 24 * time.Hour
	}

	e := &Engine{
		opts:      opts,
		source:    deps.Source,
		store:     deps.Store,
		builder:   features.NewBuilder(opts.FormWindow, opts.GoalsLine),
		evaluator: deps.Evaluator,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		models:    make(map[enums.Target]*atomic.Pointer[model.Model]),
		fixtures:  make(map[string]models.Fixture),
		retrain:   make(chan string, 1),
	}
	for _, target := range enums.GetAllTargets() {
		e.models[target] = new(atomic.Pointer[model.Model])
	}

	cacheOpts := []cache.Option{cache.WithClock(deps.Now), cache.WithLogger(deps.Logger)}
	if m := deps.Metrics; m != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(
			func(result string) { m.CacheRequests.WithLabelValues(result).Inc() },
			func(n int) { m.CacheEvictions.Add(float64(n)) },
		))
	}
	e.predictions = cache.New[models.Prediction](opts.CacheTTL, cacheOpts...)
	e.valueBets = cache.New[*ValueBetSet](opts.CacheTTL, cacheOpts...)
	return e
}

// Predict returns one prediction per target with a loaded model. A zero asOf
// means now. Targets without a usable model are listed in Unavailable; when
// none is usable the error is ErrModelUnavailable.
func (e *Engine) Predict(ctx context.Context, f models.Fixture, asOf time.Time) (*PredictionSet, error) {
	if err := validation.CheckFixture(f); err != nil {
		return nil, err
	}

	suffix := ""
	effective := asOf
	if asOf.IsZero() {
		effective = e.now()
	} else {
		suffix = "@" + asOf.UTC().Format(time.RFC3339)
	}

	hctx := context.WithoutCancel(ctx)
	history := sync.OnceValues(func() ([]models.HistoricalRecord, error) {
		return e.history(hctx, f, effective)
	})
	odds := sync.OnceValue(func() *models.OddsQuote {
		if !asOf.IsZero() && asOf.Before(e.now()) {
			// a current quote postdates asOf and would be ignored
			return nil
		}
		return e.featureOdds(hctx, f)
	})

	set := &PredictionSet{Fixture: f, Cached: true}
	var fresh []models.Prediction
	for _, target := range enums.GetAllTargets() {
		m := e.models[target].Load()
		if m == nil {
			set.markUnavailable(target, "no model loaded")
			continue
		}

		key := f.Key() + "#" + string(target) + suffix
		pred, cached, err := e.predictions.GetOrCompute(ctx, key, func(context.Context) (models.Prediction, error) {
			records, err := history()
			if err != nil {
				return models.Prediction{}, err
			}
			return e.predictTarget(m, f, effective, records, odds())
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			stale, _, ok := e.predictions.Stale(key)
			if !ok || errors.Is(err, model.ErrSchemaMismatch) {
				set.markUnavailable(target, err.Error())
				continue
			}
			e.logger.Warn("Serving stale prediction", "fixture", f.Name(), "target", target, "error", err)
			pred, cached, set.Stale = stale, true, true
		}
		if !cached {
			fresh = append(fresh, pred)
		}
		set.Cached = set.Cached && cached
		set.Predictions = append(set.Predictions, pred)
	}

	if len(set.Predictions) == 0 {
		return set, fmt.Errorf("%w: %s", ErrModelUnavailable, f.Name())
	}
	if len(fresh) > 0 && e.store != nil {
		if err := e.store.AppendPredictions(hctx, fresh); err != nil {
			e.logger.Warn("Failed to record predictions", "fixture", f.Name(), "error", err)
		}
	}
	return set, nil
}

func (s *PredictionSet) markUnavailable(target enums.Target, reason string) {
	if s.Unavailable == nil {
		s.Unavailable = make(map[enums.Target]string)
	}
	s.Unavailable[target] = reason
}

// featureOdds is the quote behind the market prior features. Without a usable
// fresh quote the prior stays neutral, as it does for training records
// without closing odds.
func (e *Engine) featureOdds(ctx context.Context, f models.Fixture) *models.OddsQuote {
	q, err := e.source.FetchOdds(ctx, f)
	if err != nil {
		if !errors.Is(err, source.ErrOddsUnavailable) {
			e.logger.Debug("No odds for prediction features", "fixture", f.Name(), "error", err)
		}
		return nil
	}
	if validation.ValidateOddsQuote(q) != nil || e.evaluator.OddsStale(q.Timestamp) {
		return nil
	}
	return q
}

func (e *Engine) predictTarget(m *model.Model, f models.Fixture, asOf time.Time, records []models.HistoricalRecord, odds *models.OddsQuote) (models.Prediction, error) {
	v := e.builder.Build(f, asOf, records, odds)
	probs, err := m.Predict(v)
	if err != nil {
		if errors.Is(err, model.ErrSchemaMismatch) {
			e.unloadMismatched(m, err)
		}
		return models.Prediction{}, err
	}
	pred := models.Prediction{
		ID:            uuid.NewString(),
		FixtureID:     f.ID,
		FixtureKey:    f.Key(),
		FixtureName:   f.Name(),
		Kickoff:       f.Kickoff,
		Target:        m.Target,
		Outcomes:      append([]string(nil), m.Classes...),
		Probabilities: probs,
		ModelVersion:  m.Version,
		SchemaVersion: m.SchemaVersion,
		AsOf:          asOf,
		CreatedAt:     e.now(),
	}
	if err := validation.ValidatePrediction(pred); err != nil {
		return models.Prediction{}, fmt.Errorf("model %s: %w", m.Version, err)
	}
	if e.metrics != nil {
		e.metrics.Predictions.WithLabelValues(string(m.Target)).Inc()
	}
	return pred, nil
}

// unloadMismatched takes m out of service unless it was already replaced
func (e *Engine) unloadMismatched(m *model.Model, err error) {
	if !e.models[m.Target].CompareAndSwap(m, nil) {
		return
	}
	e.logger.Error("Model unloaded on schema mismatch", "target", m.Target, "version", m.Version, "error", err)
	if e.metrics != nil {
		e.metrics.SchemaMismatches.WithLabelValues(string(m.Target)).Inc()
		e.metrics.ModelsLoaded.Set(float64(e.ModelCount()))
	}
	e.RequestRetrain("schema mismatch: " + string(m.Target))
}

// history collects both teams' finished matches before asOf. When the source
// fails for both teams the record store is used instead.
func (e *Engine) history(ctx context.Context, f models.Fixture, asOf time.Time) ([]models.HistoricalRecord, error) {
	seen := make(map[string]bool)
	var fixtures []models.Fixture
	var errs []error
	for _, team := range []string{f.HomeTeam, f.AwayTeam} {
		got, err := e.source.FetchHistory(ctx, source.HistoryQuery{
			Team:        team,
			Competition: f.Competition,
			Until:       asOf,
			Lookback:    e.opts.HistoryLookback,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, h := range got {
			if !seen[h.Key()] {
				seen[h.Key()] = true
				fixtures = append(fixtures, h)
			}
		}
	}
	if len(errs) < 2 {
		return models.RecordsFromFixtures(fixtures), nil
	}

	if e.store == nil {
		return nil, errors.Join(errs...)
	}
	e.logger.Warn("History unavailable from source, using stored records", "fixture", f.Name(), "error", errors.Join(errs...))
	records, err := e.store.Records(ctx, asOf.Add(-e.opts.HistoryLookback))
	if err != nil {
		return nil, errors.Join(append(errs, err)...)
	}
	return records, nil
}

// PredictFixture resolves id in the fixture window and predicts it
func (e *Engine) PredictFixture(ctx context.Context, id string) (*PredictionSet, error) {
	f, err := e.Fixture(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Predict(ctx, f, time.Time{})
}

// ValueBets predicts the fixture and compares it with the current odds
func (e *Engine) ValueBets(ctx context.Context, id string) (*ValueBetSet, error) {
	f, err := e.Fixture(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.valueBetsFor(ctx, f)
}

func (e *Engine) valueBetsFor(ctx context.Context, f models.Fixture) (*ValueBetSet, error) {
	preds, err := e.Predict(ctx, f, time.Time{})
	if err != nil {
		return nil, err
	}

	set, cached, err := e.valueBets.GetOrCompute(ctx, f.Key(), func(cctx context.Context) (*ValueBetSet, error) {
		return e.evaluate(cctx, f, preds.Predictions)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Transient odds failures are not cached.
		return &ValueBetSet{Fixture: f, Bets: []models.ValueBet{}, Note: "odds unavailable"}, nil
	}

	if !cached {
		e.publish(ctx, set.Bets)
	}
	out := *set
	out.Cached = cached
	if cached && len(set.Bets) > 0 && e.evaluator.OddsStale(set.OddsTimestamp) {
		// priced odds aged out while cached; the next request refetches
		e.valueBets.Invalidate(f.Key())
		out.Bets = []models.ValueBet{}
		out.OddsStale = true
		out.Note = "odds are stale"
	}
	return &out, nil
}

func (e *Engine) evaluate(ctx context.Context, f models.Fixture, preds []models.Prediction) (*ValueBetSet, error) {
	set := &ValueBetSet{Fixture: f, Bets: []models.ValueBet{}}
	odds, err := e.source.FetchOdds(ctx, f)
	switch {
	case errors.Is(err, source.ErrOddsUnavailable):
		set.Note = "no odds for fixture"
		return set, nil
	case err != nil:
		e.logger.Warn("Failed to fetch odds", "fixture", f.Name(), "error", err)
		return nil, err
	}
	if err := validation.ValidateOddsQuote(odds); err != nil {
		e.logger.Warn("Discarding malformed odds", "fixture", f.Name(), "error", err)
		set.Note = "malformed odds"
		return set, nil
	}
	set.OddsProvider = odds.Provider
	set.OddsTimestamp = odds.Timestamp

	for _, p := range preds {
		bets, err := e.evaluator.Evaluate(p, odds)
		if errors.Is(err, value.ErrStaleOdds) {
			e.logger.Debug("Skipping stale odds", "fixture", f.Name(), "timestamp", odds.Timestamp)
			set.OddsStale = true
			set.Note = "odds are stale"
			set.Bets = set.Bets[:0]
			break
		}
		if err != nil {
			e.logger.Warn("Failed to evaluate prediction", "fixture", f.Name(), "target", p.Target, "error", err)
			continue
		}
		set.Bets = append(set.Bets, bets...)
	}
	sort.SliceStable(set.Bets, func(i, j int) bool { return set.Bets[i].Edge > set.Bets[j].Edge })
	return set, nil
}

// publish counts and alerts on freshly computed bets
func (e *Engine) publish(ctx context.Context, bets []models.ValueBet) {
	if len(bets) == 0 {
		return
	}
	if e.metrics != nil {
		for _, b := range bets {
			e.metrics.ValueBets.WithLabelValues(string(b.Target), string(b.Tier)).Inc()
		}
	}
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyValueBets(context.WithoutCancel(ctx), bets); err != nil {
		e.logger.Warn("Failed to send value bet alerts", "count", len(bets), "error", err)
	}
}

// TopValueBets evaluates every upcoming fixture and returns the best bets by
// edge. limit <= 0 returns all of them.
func (e *Engine) TopValueBets(ctx context.Context, limit int) ([]models.ValueBet, error) {
	fixtures, err := e.Fixtures(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var (
		mu        sync.Mutex
		bets      []models.ValueBet
		evaluated int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(valueBetWorkers)
	for _, f := range fixtures {
		if f.Status != models.StatusScheduled || !f.Kickoff.After(now) {
			continue
		}
		g.Go(func() error {
			set, err := e.valueBetsFor(gctx, f)
			if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrInvalidFixture) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			evaluated++
			bets = append(bets, set.Bets...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if evaluated == 0 && e.ModelCount() == 0 {
		return nil, ErrModelUnavailable
	}

	sort.SliceStable(bets, func(i, j int) bool {
		if bets[i].Edge != bets[j].Edge {
			return bets[i].Edge > bets[j].Edge
		}
		return bets[i].Kickoff.Before(bets[j].Kickoff)
	})
	if limit > 0 && len(bets) > limit {
		bets = bets[:limit]
	}
	if bets == nil {
		bets = []models.ValueBet{}
	}
	return bets, nil
}

// Fixture looks id up in the fixture window, refreshing it at most once per sweep interval
func (e *Engine) Fixture(ctx context.Context, id string) (models.Fixture, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Fixture{}, fmt.Errorf("%w: empty fixture id", ErrFixtureNotFound)
	}
	if f, ok := e.lookupFixture(id); ok {
		return f, nil
	}
	if e.fixturesFresh() {
		return models.Fixture{}, fmt.Errorf("%w: %s", ErrFixtureNotFound, id)
	}
	if err := e.RefreshFixtures(ctx); err != nil {
		return models.Fixture{}, err
	}
	if f, ok := e.lookupFixture(id); ok {
		return f, nil
	}
	return models.Fixture{}, fmt.Errorf("%w: %s", ErrFixtureNotFound, id)
}

// Fixtures returns the fixture window ordered by kickoff
func (e *Engine) Fixtures(ctx context.Context) ([]models.Fixture, error) {
	if !e.fixturesFresh() {
		if err := e.RefreshFixtures(ctx); err != nil {
			return nil, err
		}
	}
	e.fixturesMu.RLock()
	out := make([]models.Fixture, 0, len(e.fixtures))
	for id, f := range e.fixtures {
		if id == f.ID {
			out = append(out, f)
		}
	}
	e.fixturesMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Kickoff.Equal(out[j].Kickoff) {
			return out[i].Kickoff.Before(out[j].Kickoff)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RefreshFixtures reloads fixtures from one day ago to the end of the fixture window
func (e *Engine) RefreshFixtures(ctx context.Context) error {
	now := e.now()
	w := source.Window{From: now.Add(-24 * time.Hour), To: now.Add(e.opts.FixtureWindow)}
	fixtures, err := e.source.FetchFixtures(ctx, w)
	if err != nil {
		return fmt.Errorf("refresh fixtures: %w", err)
	}

	index := make(map[string]models.Fixture, 2*len(fixtures))
	for _, f := range fixtures {
		index[f.Key()] = f
		index[f.ID] = f
	}
	e.fixturesMu.Lock()
	e.fixtures = index
	e.refreshedAt = now
	e.fixturesMu.Unlock()

	e.logger.Debug("Fixtures refreshed", "count", len(fixtures), "source", e.source.Name())
	return nil
}

func (e *Engine) lookupFixture(id string) (models.Fixture, bool) {
	e.fixturesMu.RLock()
	defer e.fixturesMu.RUnlock()
	f, ok := e.fixtures[id]
	return f, ok
}

func (e *Engine) fixturesFresh() bool {
	e.fixturesMu.RLock()
	defer e.fixturesMu.RUnlock()
	return !e.refreshedAt.IsZero() && e.now().Sub(e.refreshedAt) < e.opts.SweepInterval
}

// InstallModel atomically replaces the model for its target and drops cached results
func (e *Engine) InstallModel(m *model.Model) error {
	if m == nil {
		return errors.New("install model: nil model")
	}
	slot, ok := e.models[m.Target]
	if !ok {
		return fmt.Errorf("install model: unknown target %q", m.Target)
	}
	if m.SchemaVersion != features.SchemaVersion || len(m.FeatureNames) != features.Len() {
		return fmt.Errorf("%w: model %s has schema %s with %d features, engine builds %s with %d",
			model.ErrSchemaMismatch, m.Version, m.SchemaVersion, len(m.FeatureNames), features.SchemaVersion, features.Len())
	}

	slot.Store(m)
	e.predictions.Clear()
	e.valueBets.Clear()
	if e.metrics != nil {
		e.metrics.ModelsLoaded.Set(float64(e.ModelCount()))
	}
	e.logger.Info("Model installed", "target", m.Target, "version", m.Version, "samples", m.Samples)
	return nil
}

// LoadModels installs the latest stored model per target. Models with an
// outdated schema are skipped and a retrain is requested.
func (e *Engine) LoadModels(ctx context.Context) (int, error) {
	latest, err := e.store.LatestModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("load models: %w", err)
	}
	loaded := 0
	for _, target := range enums.GetAllTargets() {
		m, ok := latest[target]
		if !ok {
			continue
		}
		if err := e.InstallModel(m); err != nil {
			e.logger.Warn("Stored model not installed", "target", target, "version", m.Version, "error", err)
			if errors.Is(err, model.ErrSchemaMismatch) {
				e.RequestRetrain("stored model schema outdated")
			}
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Model returns the model serving target, or nil
func (e *Engine) Model(target enums.Target) *model.Model {
	slot, ok := e.models[target]
	if !ok {
		return nil
	}
	return slot.Load()
}

// ModelCount returns how many targets have a model loaded
func (e *Engine) ModelCount() int {
	n := 0
	for _, slot := range e.models {
		if slot.Load() != nil {
			n++
		}
	}
	return n
}

// RequestRetrain signals the scheduler without blocking. It reports false when
// a request is already pending.
func (e *Engine) RequestRetrain(reason string) bool {
	select {
	case e.retrain <- reason:
		e.logger.Info("Retrain requested", "reason", reason)
		return true
	default:
		return false
	}
}

// RetrainRequests delivers retrain reasons to the scheduler
func (e *Engine) RetrainRequests() <-chan string {
	return e.retrain
}

// RunSweeper removes expired cache entries until ctx is done
func (e *Engine) RunSweeper(ctx context.Context) {
	go e.predictions.Run(ctx, e.opts.SweepInterval)
	e.valueBets.Run(ctx, e.opts.SweepInterval)
}

// ModelStatus describes one loaded model
type ModelStatus struct {
	Version       string             `json:"version"`
	SchemaVersion string             `json:"schema_version"`
	TrainedAt     time.Time          `json:"trained_at"`
	Samples       int                `json:"samples"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// Status is an operational snapshot of the engine
type Status struct {
	ModelsLoaded      int                           `json:"models_loaded"`
	Models            map[enums.Target]*ModelStatus `json:"models"`
	LastTrainedAt     *time.Time                    `json:"last_trained_at"`
	PredictionCache   cache.Stats                   `json:"prediction_cache"`
	ValueBetCache     cache.Stats                   `json:"value_bet_cache"`
	SourceMode        string                        `json:"source_mode"`
	SourceFallbacks   int64                         `json:"source_fallbacks"`
	RetrainPending    bool                          `json:"retrain_pending"`
	AlertQueue        int                           `json:"alert_queue"`
	Records           int                           `json:"records"`
	RecentPredictions []models.Prediction           `json:"recent_predictions"`
}

// Status reports loaded models and cache statistics. Store failures are
// logged and leave the related fields empty.
func (e *Engine) Status(ctx context.Context) *Status {
	st := &Status{
		Models:            make(map[enums.Target]*ModelStatus),
		PredictionCache:   e.predictions.Stats(),
		ValueBetCache:     e.valueBets.Stats(),
		SourceMode:        e.source.Name(),
		RetrainPending:    len(e.retrain) > 0,
		RecentPredictions: []models.Prediction{},
	}
	if fc, ok := e.source.(source.FallbackCounter); ok {
		st.SourceFallbacks = fc.Fallbacks()
	}
	if qr, ok := e.notifier.(notify.QueueReporter); ok {
		st.AlertQueue = qr.QueueLen()
	}

	for _, target := range enums.GetAllTargets() {
		m := e.models[target].Load()
		if m == nil {
			st.Models[target] = nil
			continue
		}
		st.ModelsLoaded++
		st.Models[target] = &ModelStatus{
			Version:       m.Version,
			SchemaVersion: m.SchemaVersion,
			TrainedAt:     m.TrainedAt,
			Samples:       m.Samples,
			Metrics:       m.Metrics,
		}
		if st.LastTrainedAt == nil || m.TrainedAt.After(*st.LastTrainedAt) {
			t := m.TrainedAt
			st.LastTrainedAt = &t
		}
	}

	if e.store == nil {
		return st
	}
	if n, err := e.store.RecordCount(ctx); err != nil {
		e.logger.Warn("Failed to count records", "error", err)
	} else {
		st.Records = n
	}
	if recent, err := e.store.RecentPredictions(ctx, recentPredictionsInStatus); err != nil {
		e.logger.Warn("Failed to read recent predictions", "error", err)
	} else if recent != nil {
		st.RecentPredictions = recent
	}
	return st
}
