package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/logging"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/storage"
	"github.com/Vodeneev/footpredict/internal/source"
	"github.com/Vodeneev/footpredict/internal/trainer"
)

const defaultConfigPath = "configs/local.yaml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run returns the process exit code: 1 when training fails, 2 when some targets did not train
func run(args []string, stdout io.Writer) int {
	var (
		configPath string
		reportPath string
		jsonOut    bool
		lookback   time.Duration
		skipFetch  bool
	)

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	fs.StringVar(&reportPath, "report", "", "Write the training report to this file instead of stdout")
	fs.BoolVar(&jsonOut, "json", false, "Write the report as JSON instead of markdown")
	fs.DurationVar(&lookback, "lookback", 0, "History window to train on, overrides source.lookback")
	fs.BoolVar(&skipFetch, "skip-fetch", false, "Train on stored records only")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if lookback > 0 {
		cfg.Source.Lookback = lookback
	}

	logger, logCloser, err := logging.SetupLogger(&cfg.Logging, "trainer")
	if err != nil {
		log.Printf("Warning: failed to setup logging: %v, continuing with default logger", err)
		logger = slog.Default()
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := train(ctx, cfg, skipFetch, logger)
	if report != nil {
		if werr := writeReport(stdout, report, reportPath, jsonOut); werr != nil {
			logger.Error("Failed to write report", "error", werr)
		}
	}
	if err != nil {
		logger.Error("Training failed", "error", err)
		return 1
	}
	if len(report.Models()) < len(report.Results) {
		logger.Warn("Some targets did not train", "trained", len(report.Models()), "targets", len(report.Results))
		return 2
	}
	return 0
}

func train(ctx context.Context, cfg *config.Config, skipFetch bool, logger *slog.Logger) (*trainer.Report, error) {
	store, err := storage.Open(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	until := time.Now().UTC()
	since := until.Add(-cfg.Source.Lookback)

	if !skipFetch {
		src := source.New(cfg, source.NewMemoryResponseCache(nil), nil, logger)
		fixtures, err := src.FetchHistory(ctx, source.HistoryQuery{
			Competition: cfg.Source.Competition,
			Until:       until,
			Lookback:    cfg.Source.Lookback,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch history from %s: %w", src.Name(), err)
		}
		added, err := store.AppendRecords(ctx, source.Records(src, fixtures))
		if err != nil {
			return nil, fmt.Errorf("store history: %w", err)
		}
		logger.Info("History fetched", "source", src.Name(), "fixtures", len(fixtures), "added", added)
	}

	records, err := store.Records(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	logger.Info("Training", "records", len(records), "since", since.Format(time.RFC3339))

	tr := trainer.New(trainer.OptionsFrom(cfg), store, metrics.New(), logger)
	return tr.TrainAll(ctx, records)
}

func writeReport(stdout io.Writer, report *trainer.Report, path string, asJSON bool) error {
	var out []byte
	if asJSON {
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		out = append(b, '\n')
	} else {
		out = []byte(report.Markdown())
	}

	if path == "" {
		_, err := stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
