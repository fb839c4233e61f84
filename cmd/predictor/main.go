package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vodeneev/footpredict/internal/engine"
	"github.com/Vodeneev/footpredict/internal/notify"
	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/health"
	"github.com/Vodeneev/footpredict/internal/pkg/logging"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/storage"
	"github.com/Vodeneev/footpredict/internal/source"
	"github.com/Vodeneev/footpredict/internal/trainer"
	"github.com/Vodeneev/footpredict/internal/value"
)

const (
	defaultConfigPath = "configs/production.yaml"
	serviceName       = "predictor"
)

func main() {
	var configPath string
	var addr string

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.StringVar(&addr, "addr", "", "HTTP listen address, overrides server.addr (e.g. :8080)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, logCloser, err := logging.SetupLogger(&cfg.Logging, serviceName)
	if err != nil {
		log.Printf("Warning: failed to setup logging: %v, continuing with default logger", err)
		logger = slog.Default()
	}
	defer logCloser.Close()
	logger.Info("Config loaded", "path", configPath)

	if err := run(cfg, logger); err != nil {
		logger.Error("Predictor failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Predictor stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal, stopping predictor...")
		cancel()
	}()

	m := metrics.New()

	store, err := storage.Open(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Error closing storage", "error", err)
		}
	}()
	logger.Info("Storage ready", "driver", cfg.Storage.Driver)

	responses, closeResponses := responseCache(cfg, logger)
	defer closeResponses()

	src := source.New(cfg, responses, m, logger)
	logger.Info("Data source selected", "mode", src.Name())

	var notifier notify.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegramNotifier(&cfg.Telegram, m, logger)
		if err != nil {
			logger.Warn("Telegram alerts disabled", "error", err)
		} else {
			notifier = tg
			defer tg.Stop()
		}
	}

	eng := engine.New(engine.OptionsFrom(cfg), engine.Deps{
		Source:    src,
		Store:     store,
		Evaluator: value.NewEvaluator(value.ConfigFrom(cfg), nil),
		Notifier:  notifier,
		Metrics:   m,
		Logger:    logger,
	})

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	loaded, err := eng.LoadModels(loadCtx)
	loadCancel()
	if err != nil {
		logger.Warn("Failed to load stored models", "error", err)
	} else {
		logger.Info("Stored models loaded", "count", loaded)
	}

	tr := trainer.New(trainer.OptionsFrom(cfg), store, m, logger)
	scheduler := engine.NewScheduler(eng, tr, src, store, engine.SchedulerOptions{
		RetrainInterval: cfg.Trainer.RetrainInterval,
		Lookback:        cfg.Source.Lookback,
		Competition:     cfg.Source.Competition,
	}, logger)

	done, err := health.Run(ctx, health.Options{
		Addr:              cfg.Server.Addr,
		Service:           serviceName,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Metrics:           m.Handler(),
		Ready: func() error {
			if eng.ModelCount() == 0 {
				return engine.ErrModelUnavailable
			}
			return nil
		},
		Register: eng.RegisterHTTP,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	scheduler.Start(ctx)
	logger.Info("Predictor started", "addr", cfg.Server.Addr)

	<-ctx.Done()
	scheduler.Stop()
	<-done
	return nil
}

// responseCache caches provider responses in Redis when configured, in memory otherwise
func responseCache(cfg *config.Config, logger *slog.Logger) (source.ResponseCache, func()) {
	if cfg.Redis.Addr == "" {
		return source.NewMemoryResponseCache(nil), func() {}
	}
	rc, err := source.NewRedisResponseCache(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, caching provider responses in memory", "addr", cfg.Redis.Addr, "error", err)
		return source.NewMemoryResponseCache(nil), func() {}
	}
	logger.Info("Caching provider responses in Redis", "addr", cfg.Redis.Addr)
	return rc, func() {
		if err := rc.Close(); err != nil {
			logger.Warn("Error closing Redis", "error", err)
		}
	}
}
