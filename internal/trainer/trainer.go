// Package trainer fits one model per target from historical records.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Vodeneev/footpredict/internal/features"
	"github.com/Vodeneev/footpredict/internal/model"
	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
	"github.com/Vodeneev/footpredict/internal/pkg/storage"
)

// ErrInsufficientData means there are fewer records than the minimum sample size.
// Nothing is persisted and any model already in service stays.
var ErrInsufficientData = errors.New("insufficient data")

// Options controls dataset preparation and fitting
type Options struct {
	MinSamples         int
	ValidationFraction float64
	Seed               int64
	Epochs             int
	LearningRate       float64
	L2                 float64
	FormWindow         int
	GoalsLine          float64
}

// OptionsFrom takes trainer settings out of the service config
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		MinSamples:         cfg.Trainer.MinSamples,
		ValidationFraction: cfg.Trainer.ValidationFraction,
		Seed:               cfg.Trainer.Seed,
		Epochs:             cfg.Trainer.Epochs,
		LearningRate:       cfg.Trainer.LearningRate,
		L2:                 cfg.Trainer.L2,
		FormWindow:         cfg.Engine.FormWindow,
		GoalsLine:          cfg.Engine.GoalsLine,
	}
}

// Trainer builds datasets and fits models. Store and metrics may be nil.
type Trainer struct {
	opts    Options
	builder *features.Builder
	store   storage.ModelStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(opts Options, store storage.ModelStore, m *metrics.Metrics, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 50
	}
	return &Trainer{
		opts:    opts,
		builder: features.NewBuilder(opts.FormWindow, opts.GoalsLine),
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Result describes one target's training run
type Result struct {
	Target             enums.Target  `json:"target"`
	Model              *model.Model  `json:"-"`
	Version            string        `json:"version,omitempty"`
	Samples            int           `json:"samples"`
	TrainSamples       int           `json:"train_samples"`
	ValidationSamples  int           `json:"validation_samples"`
	CalibrationSamples int           `json:"calibration_samples"` // leading validation rows, temperature only
	Metrics            Metrics       `json:"metrics"`
	Duration           time.Duration `json:"duration"`
	Error              string        `json:"error,omitempty"`
}

// dataset is the chronologically ordered feature matrix shared by every target
type dataset struct {
	records []models.HistoricalRecord
	x       [][]float64
}

// prepare sorts records by kickoff and builds each row from the records that
// kicked off before it, with no odds, as of its own kickoff
func (t *Trainer) prepare(ctx context.Context, records []models.HistoricalRecord) (*dataset, error) {
	sorted := make([]models.HistoricalRecord, 0, len(records))
	for _, r := range records {
		if r.Fixture.Score != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := sorted[i].Fixture.Kickoff, sorted[j].Fixture.Kickoff
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return sorted[i].Fixture.Key() < sorted[j].Fixture.Key()
	})

	x := make([][]float64, len(sorted))
	for i, r := range sorted {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// records at the same kickoff are filtered out by Build
		x[i] = t.builder.Build(r.Fixture, r.Fixture.Kickoff, sorted[:i+1], r.Odds).Values
	}
	return &dataset{records: sorted, x: x}, nil
}

// Train fits and persists a model for target
func (t *Trainer) Train(ctx context.Context, target enums.Target, records []models.HistoricalRecord) (*Result, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	if err := t.checkSize(target, len(records)); err != nil {
		return &Result{Target: target, Samples: len(records), Error: err.Error()}, err
	}
	ds, err := t.prepare(ctx, records)
	if err != nil {
		return nil, err
	}
	return t.train(ctx, target, ds)
}

func (t *Trainer) checkSize(target enums.Target, n int) error {
	if n >= t.opts.MinSamples {
		return nil
	}
	if t.metrics != nil {
		t.metrics.TrainingFailures.WithLabelValues(string(target), "insufficient_data").Inc()
	}
	t.logger.Warn("Not enough records to train",
		"target", target,
		"records", n,
		"min_samples", t.opts.MinSamples,
	)
	return fmt.Errorf("%w: %s has %d records, need %d", ErrInsufficientData, target, n, t.opts.MinSamples)
}

func (t *Trainer) train(ctx context.Context, target enums.Target, ds *dataset) (*Result, error) {
	started := time.Now()
	n := len(ds.records)
	res := &Result{Target: target, Samples: n}
	if err := t.checkSize(target, n); err != nil {
		res.Error = err.Error()
		return res, err
	}

	y := make([]int, n)
	for i, r := range ds.records {
		y[i] = r.ClassOf(target, t.opts.GoalsLine)
	}

	nVal := int(math.Round(float64(n) * t.opts.ValidationFraction))
	if t.opts.ValidationFraction > 0 && nVal == 0 {
		nVal = 1
	}
	if nVal >= n {
		nVal = n - 1
	}
	nTrain := n - nVal
	res.TrainSamples, res.ValidationSamples = nTrain, nVal

	scaler := model.FitScaler(ds.x[:nTrain])
	scaled := make([][]float64, n)
	for i, row := range ds.x {
		scaled[i] = scaler.Transform(row)
	}

	classes := target.Outcomes()
	weights, err := model.Fit(ctx, scaled[:nTrain], y[:nTrain], len(classes), model.FitOptions{
		Epochs:       t.opts.Epochs,
		LearningRate: t.opts.LearningRate,
		L2:           t.opts.L2,
		Seed:         t.opts.Seed,
	})
	if err != nil {
		t.countFailure(target, err)
		res.Error = err.Error()
		return res, fmt.Errorf("fit %s: %w", target, err)
	}

	nCal := nVal / 2
	res.CalibrationSamples = nCal
	temperature := model.FitTemperature(weights, scaled[nTrain:nTrain+nCal], y[nTrain:nTrain+nCal])
	evalX, evalY := scaled[nTrain+nCal:], y[nTrain+nCal:]
	if len(evalX) == 0 {
		evalX, evalY = scaled[:nTrain], y[:nTrain]
	}

	trainedAt := t.now().UTC()
	m := &model.Model{
		Target:        target,
		Version:       fmt.Sprintf("%s-%s-%s", target, trainedAt.Format("20060102T150405Z"), uuid.NewString()[:8]),
		SchemaVersion: features.SchemaVersion,
		FeatureNames:  features.Names(),
		Classes:       classes,
		Weights:       weights,
		Scaler:        scaler,
		Temperature:   temperature,
		TrainedAt:     trainedAt,
		Samples:       n,
	}
	res.Metrics = Evaluate(m, evalX, evalY)
	m.Metrics = res.Metrics.Map()

	if t.store != nil {
		if err := t.store.SaveModel(ctx, m); err != nil {
			t.countFailure(target, err)
			res.Error = err.Error()
			return res, fmt.Errorf("save %s model: %w", target, err)
		}
	}

	res.Model = m
	res.Version = m.Version
	res.Duration = time.Since(started)
	if t.metrics != nil {
		t.metrics.TrainingDuration.WithLabelValues(string(target)).Observe(res.Duration.Seconds())
	}
	t.logger.Info("Model trained",
		"target", target,
		"version", m.Version,
		"samples", n,
		"validation", nVal,
		"accuracy", res.Metrics.Accuracy,
		"log_loss", res.Metrics.LogLoss,
		"temperature", temperature,
		"duration", res.Duration,
	)
	return res, nil
}

func (t *Trainer) countFailure(target enums.Target, err error) {
	if t.metrics == nil {
		return
	}
	reason := "error"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		reason = "canceled"
	}
	t.metrics.TrainingFailures.WithLabelValues(string(target), reason).Inc()
}

// TrainAll trains every target on the same dataset. Cancellation is checked
// between targets; the report then holds the targets finished so far.
// Per-target failures are recorded in the report, not returned.
func (t *Trainer) TrainAll(ctx context.Context, records []models.HistoricalRecord) (*Report, error) {
	report := &Report{StartedAt: t.now().UTC(), Records: len(records)}
	defer func() { report.FinishedAt = t.now().UTC() }()

	ds, err := t.prepare(ctx, records)
	if err != nil {
		return report, err
	}

	for _, target := range enums.GetAllTargets() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := t.train(ctx, target, ds)
		if res != nil {
			report.Results = append(report.Results, res)
		}
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return report, err
		}
	}
	return report, nil
}
