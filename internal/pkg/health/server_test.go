package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/footpredict/internal/pkg/logging"
)

func TestNewMux(t *testing.T) {
	ready := errors.New("models loading")
	mux := NewMux(Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("metric 1\n"))
		}),
		Ready: func() error { return ready },
		Register: func(mux *http.ServeMux) {
			mux.HandleFunc("/extra", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		},
	})

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/ping", wantStatus: http.StatusOK, wantBody: "pong\n"},
		{path: "/health", wantStatus: http.StatusOK, wantBody: "ok\n"},
		{path: "/ready", wantStatus: http.StatusServiceUnavailable, wantBody: "not ready: models loading\n"},
		{path: "/metrics", wantStatus: http.StatusOK, wantBody: "metric 1\n"},
		{path: "/extra", wantStatus: http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}

	ready = nil
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done, err := Run(ctx, Options{
		Addr:              "127.0.0.1:0",
		Service:           "test",
		ReadHeaderTimeout: time.Second,
		Logger:            logging.Discard(),
	})
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_RequiresReadHeaderTimeout(t *testing.T) {
	_, err := Run(context.Background(), Options{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestRun_Serves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// reserve a port, then hand it to Run
	probe := httptest.NewServer(http.NotFoundHandler())
	addr := probe.Listener.Addr().String()
	probe.Close()

	_, err := Run(ctx, Options{Addr: addr, ReadHeaderTimeout: time.Second, Logger: logging.Discard()})
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong\n", string(body))
}
