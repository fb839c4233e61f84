package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/health/handlers"
)

// Options configures the service HTTP server
type Options struct {
	Addr              string
	Service           string
	ReadHeaderTimeout time.Duration
	// Metrics is mounted on /metrics when set
	Metrics http.Handler
	// Ready backs /ready; nil means always ready
	Ready handlers.ReadyFunc
	// Register mounts the service's own endpoints
	Register func(mux *http.ServeMux)
	Logger   *slog.Logger
}

// NewMux builds the mux with /ping, /health, /ready, /metrics and the service routes
func NewMux(opts Options) *http.ServeMux {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/ping", handlers.HandlePing)
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/ready", handlers.HandleReady(opts.Ready))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if opts.Register != nil {
		opts.Register(mux)
	}
	return mux
}

// Run serves until ctx is done, then shuts down gracefully. It returns once
// the listener is bound so callers see address errors immediately; done is
// closed when the server has stopped.
func Run(ctx context.Context, opts Options) (done <-chan struct{}, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReadHeaderTimeout <= 0 {
		return nil, errors.New("read_header_timeout must be specified in config")
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", opts.Addr, err)
	}

	srv := &http.Server{
		Handler:           NewMux(opts),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}

	stopped := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		defer close(stopped)
		logger.Info("HTTP server listening", "service", opts.Service, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "service", opts.Service, "error", err)
		}
	}()
	return stopped, nil
}
