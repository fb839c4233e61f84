package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/storage"
	"github.com/Vodeneev/footpredict/internal/source"
	"github.com/Vodeneev/footpredict/internal/trainer"
)

// SchedulerOptions configures the background retrain loop
type SchedulerOptions struct {
	RetrainInterval time.Duration
	Lookback        time.Duration
	Competition     string
}

// Scheduler retrains models on an interval and on engine requests, and sweeps
// the engine caches while it runs.
type Scheduler struct {
	engine  *Engine
	trainer *trainer.Trainer
	source  source.Adapter
	records storage.RecordStore
	opts    SchedulerOptions
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// serializes retrains started by the loop and by RetrainNow
	trainMu    sync.Mutex
	lastReport atomic.Pointer[trainer.Report]
}

// NewScheduler wires a scheduler for e
func NewScheduler(e *Engine, t *trainer.Trainer, src source.Adapter, records storage.RecordStore, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetrainInterval <= 0 {
		opts.RetrainInterval = 2 * time.Hour
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 365 * 24 * time.Hour
	}
	return &Scheduler{
		engine:  e,
		trainer: t,
		source:  src,
		records: records,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Start launches the loop. Without loaded models it trains immediately.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Debug("Scheduler is already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("Starting scheduler", "retrain_interval", s.opts.RetrainInterval)
	go s.run(runCtx, s.done)
}

// Stop cancels the loop and waits for an in-flight retrain to observe it
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()
	<-done
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.engine.RunSweeper(ctx)
	}()
	defer wg.Wait()

	if s.engine.ModelCount() == 0 {
		s.retrain(ctx, "bootstrap")
	}

	ticker := time.NewTicker(s.opts.RetrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return
		case <-ticker.C:
			s.retrain(ctx, "scheduled")
		case reason := <-s.engine.RetrainRequests():
			s.retrain(ctx, reason)
		}
	}
}

func (s *Scheduler) retrain(ctx context.Context, reason string) {
	if _, err := s.RetrainNow(ctx, reason); err != nil && ctx.Err() == nil {
		s.logger.Error("Retrain failed", "reason", reason, "error", err)
	}
}

// RetrainNow pulls recent history into the record store, trains every target on
// the stored window and installs the models that trained. Targets that fail
// keep their previous model.
func (s *Scheduler) RetrainNow(ctx context.Context, reason string) (*trainer.Report, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	until := s.now()
	since := until.Add(-s.opts.Lookback)
	s.logger.Info("Retraining models", "reason", reason, "since", since)

	fixtures, err := s.source.FetchHistory(ctx, source.HistoryQuery{
		Competition: s.opts.Competition,
		Until:       until,
		Lookback:    s.opts.Lookback,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("History fetch failed, training on stored records", "error", err)
	} else {
		added, err := s.records.AppendRecords(ctx, source.Records(s.source, fixtures))
		if err != nil {
			s.logger.Warn("Failed to store history", "error", err)
		} else {
			s.logger.Debug("History stored", "fetched", len(fixtures), "added", added)
		}
	}

	records, err := s.records.Records(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	report, err := s.trainer.TrainAll(ctx, records)
	if report != nil {
		s.install(report)
		s.lastReport.Store(report)
	}
	if err != nil {
		return report, err
	}

	var failed []error
	for _, res := range report.Results {
		if res.Error != "" {
			failed = append(failed, fmt.Errorf("%s: %s", res.Target, res.Error))
		}
	}
	if len(report.Results) == 0 {
		return report, errors.New("no targets trained")
	}
	if len(failed) == len(report.Results) {
		return report, errors.Join(failed...)
	}
	return report, nil
}

func (s *Scheduler) install(report *trainer.Report) {
	for _, m := range report.Models() {
		if err := s.engine.InstallModel(m); err != nil {
			s.logger.Error("Failed to install trained model", "target", m.Target, "version", m.Version, "error", err)
		}
	}
}

// LastReport returns the most recent training report, or nil
func (s *Scheduler) LastReport() *trainer.Report {
	return s.lastReport.Load()
}
