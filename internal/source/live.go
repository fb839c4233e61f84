package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/Vodeneev/footpredict/internal/pkg/config"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
	"github.com/Vodeneev/footpredict/internal/pkg/validation"
)

const liveSourceName = "api-football"

// LiveAdapter reads fixtures and odds from API-Football
type LiveAdapter struct {
	cfg       *config.SourceConfig
	goalsLine float64
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	cache     ResponseCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewLiveAdapter creates the provider client. cache may be nil.
func NewLiveAdapter(cfg *config.SourceConfig, goalsLine float64, cache ResponseCache, logger *slog.Logger) *LiveAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logger.With("component", "api-football")

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 10
	}

	return &LiveAdapter{
		cfg:       cfg,
		goalsLine: goalsLine,
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

func (a *LiveAdapter) Name() string { return "live" }

// apiEnvelope is the common API-Football response wrapper
type apiEnvelope struct {
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response json.RawMessage `json:"response"`
}

type apiFixture struct {
	Fixture struct {
		ID     int    `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short string `json:"short"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Season int    `json:"season"`
	} `json:"league"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

type apiOdds struct {
	Update     string `json:"update"`
	Bookmakers []struct {
		Name string `json:"name"`
		Bets []struct {
			Name   string `json:"name"`
			Values []struct {
				Value string          `json:"value"`
				Odd   json.RawMessage `json:"odd"`
			} `json:"values"`
		} `json:"bets"`
	} `json:"bookmakers"`
}

// get performs a rate limited, retried and cached GET and decodes the response array into out
func (a *LiveAdapter) get(ctx context.Context, path string, params url.Values, out any) error {
	key := path + "?" + params.Encode()

	body, cached := []byte(nil), false
	if a.cache != nil {
		body, cached = a.cache.Get(ctx, key)
	}

	if !cached {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %v", ErrSourceUnavailable, err)
		}

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(a.cfg.BaseURL, "/")+key, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-apisports-key", a.cfg.APIKey)
		if a.cfg.Host != "" {
			req.Header.Set("x-apisports-host", a.cfg.Host)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, truncate(string(body), 200))
		}
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrSourceUnavailable, err)
	}
	if hasAPIErrors(env.Errors) {
		return fmt.Errorf("%w: provider errors: %s", ErrSourceUnavailable, string(env.Errors))
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}

	if !cached && a.cache != nil {
		a.cache.Set(ctx, key, body, a.cfg.RequestCacheTTL)
	}
	return nil
}

// hasAPIErrors reports a non-empty errors field. The provider sends [] or {} when fine.
func hasAPIErrors(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "[]" && s != "{}" && s != "null"
}

// FetchFixtures returns league fixtures with kickoff inside the window
func (a *LiveAdapter) FetchFixtures(ctx context.Context, w Window) ([]models.Fixture, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: invalid window %v..%v", ErrSourceUnavailable, w.From, w.To)
	}
	raw, err := a.fetchRange(ctx, w.From, w.To, "")
	if err != nil {
		return nil, err
	}
	fixtures := make([]models.Fixture, 0, len(raw))
	for _, f := range raw {
		if w.Contains(f.Kickoff) {
			fixtures = append(fixtures, f)
		}
	}
	return fixtures, nil
}

// FetchHistory returns finished league fixtures in [Until-Lookback, Until), oldest first
func (a *LiveAdapter) FetchHistory(ctx context.Context, q HistoryQuery) ([]models.Fixture, error) {
	until := q.Until
	if until.IsZero() {
		until = a.now()
	}
	lookback := q.Lookback
	if lookback <= 0 {
		lookback = a.cfg.Lookback
	}
	from := until.Add(-lookback)

	raw, err := a.fetchRange(ctx, from, until, "FT-AET-PEN")
	if err != nil {
		return nil, err
	}

	var out []models.Fixture
	for _, f := range raw {
		if !f.IsFinished() || !f.Kickoff.Before(until) || f.Kickoff.Before(from) {
			continue
		}
		if q.Team != "" && !f.Involves(q.Team) {
			continue
		}
		if q.Competition != "" && !models.SameTeam(f.Competition, q.Competition) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kickoff.Before(out[j].Kickoff) })
	return out, nil
}

// fetchRange queries every season touched by [from, to]
func (a *LiveAdapter) fetchRange(ctx context.Context, from, to time.Time, status string) ([]models.Fixture, error) {
	seasons := []int{a.cfg.Season}
	if a.cfg.Season == 0 {
		seasons = seasons[:0]
		for s := seasonOf(from); s <= seasonOf(to); s++ {
			seasons = append(seasons, s)
		}
	}

	var out []models.Fixture
	for _, season := range seasons {
		params := url.Values{}
		params.Set("league", strconv.Itoa(a.cfg.League))
		params.Set("season", strconv.Itoa(season))
		params.Set("from", from.UTC().Format("2006-01-02"))
		params.Set("to", to.UTC().Format("2006-01-02"))
		params.Set("timezone", "UTC")
		if status != "" {
			params.Set("status", status)
		}

		var items []apiFixture
		if err := a.get(ctx, "/fixtures", params, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			f, ok := a.toFixture(item)
			if !ok {
				a.logger.Debug("Skipping malformed provider fixture", "fixture_id", item.Fixture.ID)
				continue
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func (a *LiveAdapter) toFixture(item apiFixture) (models.Fixture, bool) {
	kickoff, err := time.Parse(time.RFC3339, item.Fixture.Date)
	if err != nil || item.Teams.Home.Name == "" || item.Teams.Away.Name == "" {
		return models.Fixture{}, false
	}
	competition := item.League.Name
	if competition == "" {
		competition = a.cfg.Competition
	}
	f := models.Fixture{
		ID:          strconv.Itoa(item.Fixture.ID),
		HomeTeam:    item.Teams.Home.Name,
		AwayTeam:    item.Teams.Away.Name,
		Competition: competition,
		Kickoff:     kickoff.UTC(),
		Status:      mapStatus(item.Fixture.Status.Short),
		Source:      liveSourceName,
	}
	if f.Status == models.StatusFinished {
		if item.Goals.Home == nil || item.Goals.Away == nil {
			return models.Fixture{}, false
		}
		f.Score = &models.Score{Home: *item.Goals.Home, Away: *item.Goals.Away}
	}
	if err := validation.SanitizeFixture(&f); err != nil {
		return models.Fixture{}, false
	}
	return f, true
}

func mapStatus(short string) models.FixtureStatus {
	switch short {
	case "FT", "AET", "PEN":
		return models.StatusFinished
	case "1H", "HT", "2H", "ET", "BT", "P", "LIVE", "INT", "SUSP":
		return models.StatusLive
	default:
		return models.StatusScheduled
	}
}

// seasonOf returns the API-Football season year. Seasons start in July.
func seasonOf(t time.Time) int {
	t = t.UTC()
	if t.Month() < time.July {
		return t.Year() - 1
	}
	return t.Year()
}

// FetchOdds returns the first bookmaker price found for each market
func (a *LiveAdapter) FetchOdds(ctx context.Context, f models.Fixture) (*models.OddsQuote, error) {
	if f.Source != liveSourceName {
		return nil, fmt.Errorf("%w: fixture %s is not a provider fixture", ErrOddsUnavailable, f.ID)
	}
	if _, err := strconv.Atoi(f.ID); err != nil {
		return nil, fmt.Errorf("%w: fixture id %q", ErrSourceUnavailable, f.ID)
	}

	params := url.Values{}
	params.Set("fixture", f.ID)

	var items []apiOdds
	if err := a.get(ctx, "/odds", params, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no odds for fixture %s", ErrOddsUnavailable, f.ID)
	}

	quote := a.parseOdds(f.ID, items[0])
	if len(quote.Markets) == 0 {
		return nil, fmt.Errorf("%w: no supported markets for fixture %s", ErrOddsUnavailable, f.ID)
	}
	return quote, nil
}

func (a *LiveAdapter) parseOdds(fixtureID string, item apiOdds) *models.OddsQuote {
	ts, err := time.Parse(time.RFC3339, item.Update)
	if err != nil {
		ts = a.now()
	}
	quote := &models.OddsQuote{
		FixtureID: fixtureID,
		Timestamp: ts.UTC(),
		Markets:   make(map[enums.Target]map[string]float64),
	}

	line := strconv.FormatFloat(a.goalsLine, 'f', 1, 64)
	var providers []string

	for _, bm := range item.Bookmakers {
		used := false
		for _, bet := range bm.Bets {
			var target enums.Target
			var labels map[string]string
			switch bet.Name {
			case "Match Winner":
				target = enums.Outcome
				labels = map[string]string{"Home": enums.LabelHome, "Draw": enums.LabelDraw, "Away": enums.LabelAway}
			case "Goals Over/Under":
				target = enums.GoalsThreshold
				labels = map[string]string{"Over " + line: enums.LabelOver, "Under " + line: enums.LabelUnder}
			case "Both Teams Score":
				target = enums.BothTeamsScore
				labels = map[string]string{"Yes": enums.LabelYes, "No": enums.LabelNo}
			default:
				continue
			}
			if _, done := quote.Markets[target]; done {
				continue
			}

			prices := make(map[string]float64, len(labels))
			for _, v := range bet.Values {
				label, ok := labels[v.Value]
				if !ok {
					continue
				}
				if p, ok := parseOdd(v.Odd); ok {
					prices[label] = p
				}
			}
			if len(prices) != len(labels) {
				continue
			}
			quote.Markets[target] = prices
			used = true
		}
		if used {
			providers = append(providers, validation.SanitizeBookmaker(bm.Name))
		}
	}

	quote.Provider = liveSourceName
	if len(providers) > 0 {
		quote.Provider += "/" + strings.Join(providers, ",")
	}
	return quote
}

// parseOdd accepts the provider's string prices as well as plain numbers
func parseOdd(raw json.RawMessage) (float64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || !validation.ValidPrice(p) {
		return 0, false
	}
	return p, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
