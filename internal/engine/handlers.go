package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

const defaultValueBetLimit = 20

// RegisterHTTP mounts the engine endpoints on mux
func (e *Engine) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/predict", e.handlePredict)
	mux.HandleFunc("/value-bets", e.handleValueBets)
	mux.HandleFunc("/fixtures", e.handleFixtures)
	mux.HandleFunc("/status", e.handleStatus)
	mux.HandleFunc("/train", e.handleTrain)
}

// handlePredict handles GET /predict?fixture_id=...[&as_of=RFC3339][&target=...]
func (e *Engine) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("fixture_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "fixture_id is required")
		return
	}

	var target enums.Target
	if raw := r.URL.Query().Get("target"); raw != "" {
		parsed, ok := enums.ParseTarget(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown target %q", raw))
			return
		}
		target = parsed
	}

	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of: %v", err))
			return
		}
		asOf = t
	}

	f, err := e.Fixture(r.Context(), id)
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	set, err := e.Predict(r.Context(), f, asOf)
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	if target != "" {
		set = set.only(target)
	}
	writeJSON(w, http.StatusOK, set)
}

// handleValueBets handles GET /value-bets?fixture_id=... and, without an id,
// the best bets across upcoming fixtures (?limit=N)
func (e *Engine) handleValueBets(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("fixture_id")); id != "" {
		set, err := e.ValueBets(r.Context(), id)
		if err != nil {
			e.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, set)
		return
	}

	limit := defaultValueBetLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	bets, err := e.TopValueBets(r.Context(), limit)
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"value_bets": bets,
		"count":      len(bets),
	})
}

// handleFixtures handles GET /fixtures
func (e *Engine) handleFixtures(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	fixtures, err := e.Fixtures(r.Context())
	if err != nil {
		e.writeEngineError(w, err)
		return
	}
	if fixtures == nil {
		fixtures = []models.Fixture{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fixtures": fixtures,
		"count":    len(fixtures),
	})
}

// handleStatus handles GET /status
func (e *Engine) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, e.Status(r.Context()))
}

// handleTrain handles POST /train by signalling the scheduler
func (e *Engine) handleTrain(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	reason := "manual"
	if by := strings.TrimSpace(r.URL.Query().Get("reason")); by != "" {
		reason = "manual: " + by
	}
	queued := e.RequestRetrain(reason)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":  queued,
		"pending": true,
	})
}

func (e *Engine) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "not ready: "+err.Error())
	case errors.Is(err, ErrFixtureNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidFixture):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		e.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
