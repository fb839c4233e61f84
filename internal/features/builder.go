package features

import (
	"math"
	"sort"
	"time"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// FeatureVector is an ordered numeric vector tagged with the schema it was built for
type FeatureVector struct {
	Schema string    `json:"schema"`
	Values []float64 `json:"values"`
}

// Get returns the value of a named feature
func (v FeatureVector) Get(name string) (float64, bool) {
	if v.Schema != SchemaVersion {
		return 0, false
	}
	for i, n := range names {
		if n == name && i < len(v.Values) {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Builder turns a fixture and its history into a FeatureVector.
// It holds configuration only, so Build is safe for concurrent use.
type Builder struct {
	formWindow int
	goalsLine  float64
}

func NewBuilder(formWindow int, goalsLine float64) *Builder {
	if formWindow <= 0 {
		formWindow = 10
	}
	if goalsLine <= 0 {
		goalsLine = 2.5
	}
	return &Builder{formWindow: formWindow, goalsLine: goalsLine}
}

// Build computes the feature vector of fixture as seen at asOf.
// Only records that kicked off before both asOf and the fixture itself are used,
// so the same call serves training labels and live inference. odds may be nil;
// a quote timestamped after asOf is ignored.
func (b *Builder) Build(fixture models.Fixture, asOf time.Time, history []models.HistoricalRecord, odds *models.OddsQuote) FeatureVector {
	cutoff := fixture.Kickoff
	if !asOf.IsZero() && (cutoff.IsZero() || asOf.Before(cutoff)) {
		cutoff = asOf
	}
	prior := make([]models.HistoricalRecord, 0, len(history))
	for _, r := range history {
		if r.Fixture.Score == nil || !r.Fixture.Kickoff.Before(cutoff) {
			continue
		}
		prior = append(prior, r)
	}
	// newest first, key as tie-break
	sort.SliceStable(prior, func(i, j int) bool {
		ki, kj := prior[i].Fixture.Kickoff, prior[j].Fixture.Kickoff
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return prior[i].Fixture.Key() < prior[j].Fixture.Key()
	})

	home := b.teamForm(fixture.HomeTeam, fixture.Kickoff, prior)
	away := b.teamForm(fixture.AwayTeam, fixture.Kickoff, prior)
	h2h := b.headToHead(fixture.HomeTeam, fixture.AwayTeam, prior)
	pHome, pDraw, pAway := marketPrior(odds, asOf)

	kickoff := fixture.Kickoff.UTC()
	weekday := float64((int(kickoff.Weekday()) + 6) % 7) // Monday = 0
	weekend := 0.0
	if weekday >= 5 {
		weekend = 1
	}

	values := []float64{
		weekday,
		float64(kickoff.Month()),
		weekend,

		float64(home.games),
		home.goalsFor,
		home.goalsAgainst,
		home.winRate,
		home.drawRate,
		home.lossRate,
		home.bttsRate,
		home.overRate,
		home.restDays,

		float64(away.games),
		away.goalsFor,
		away.goalsAgainst,
		away.winRate,
		away.drawRate,
		away.lossRate,
		away.bttsRate,
		away.overRate,
		away.restDays,

		float64(h2h.games),
		h2h.homeWinRate,
		h2h.avgGoals,

		(home.goalsFor - home.goalsAgainst) - (away.goalsFor - away.goalsAgainst),
		away.goalsAgainst - home.goalsAgainst,
		home.winRate - away.winRate,

		1,

		pHome,
		pDraw,
		pAway,
	}
	return FeatureVector{Schema: SchemaVersion, Values: values}
}

type form struct {
	games        int
	goalsFor     float64
	goalsAgainst float64
	winRate      float64
	drawRate     float64
	lossRate     float64
	bttsRate     float64
	overRate     float64
	restDays     float64
}

func neutralForm() form {
	return form{
		goalsFor:     neutralGoals,
		goalsAgainst: neutralGoals,
		winRate:      neutralWinRate,
		drawRate:     neutralDrawRate,
		lossRate:     neutralLossRate,
		bttsRate:     neutralBTTSRate,
		overRate:     neutralOverRate,
		restDays:     neutralRestDays,
	}
}

// teamForm aggregates the last formWindow matches of team; prior is newest first
func (b *Builder) teamForm(team string, kickoff time.Time, prior []models.HistoricalRecord) form {
	f := neutralForm()
	var gf, ga, wins, draws, losses, btts, over int
	var last time.Time
	n := 0
	for _, r := range prior {
		if n >= b.formWindow {
			break
		}
		fx := r.Fixture
		if !fx.Involves(team) {
			continue
		}
		scored, conceded := fx.Score.Home, fx.Score.Away
		if !models.SameTeam(fx.HomeTeam, team) {
			scored, conceded = conceded, scored
		}
		if n == 0 {
			last = fx.Kickoff
		}
		n++
		gf += scored
		ga += conceded
		switch {
		case scored > conceded:
			wins++
		case scored == conceded:
			draws++
		default:
			losses++
		}
		if r.Labels.BTTS {
			btts++
		}
		if float64(r.Labels.TotalGoals) > b.goalsLine {
			over++
		}
	}
	if n == 0 {
		return f
	}
	fn := float64(n)
	f.games = n
	f.goalsFor = float64(gf) / fn
	f.goalsAgainst = float64(ga) / fn
	f.winRate = float64(wins) / fn
	f.drawRate = float64(draws) / fn
	f.lossRate = float64(losses) / fn
	f.bttsRate = float64(btts) / fn
	f.overRate = float64(over) / fn
	if !kickoff.IsZero() {
		f.restDays = math.Min(maxRestDays, math.Max(0, kickoff.Sub(last).Hours()/24))
	}
	return f
}

type h2hStats struct {
	games       int
	homeWinRate float64
	avgGoals    float64
}

// headToHead covers meetings at either venue; wins are counted for the fixture's home side
func (b *Builder) headToHead(homeTeam, awayTeam string, prior []models.HistoricalRecord) h2hStats {
	s := h2hStats{homeWinRate: neutralH2HHomeWinRate, avgGoals: neutralH2HGoals}
	var wins, goals, n int
	for _, r := range prior {
		if n >= b.formWindow {
			break
		}
		fx := r.Fixture
		if !fx.Involves(homeTeam) || !fx.Involves(awayTeam) {
			continue
		}
		n++
		goals += r.Labels.TotalGoals
		switch r.Labels.Outcome {
		case enums.LabelHome:
			if models.SameTeam(fx.HomeTeam, homeTeam) {
				wins++
			}
		case enums.LabelAway:
			if models.SameTeam(fx.AwayTeam, homeTeam) {
				wins++
			}
		}
	}
	if n == 0 {
		return s
	}
	s.games = n
	s.homeWinRate = float64(wins) / float64(n)
	s.avgGoals = float64(goals) / float64(n)
	return s
}

// marketPrior returns margin-free 1X2 probabilities from odds, or neutral values
func marketPrior(odds *models.OddsQuote, asOf time.Time) (float64, float64, float64) {
	if odds == nil || (!asOf.IsZero() && odds.Timestamp.After(asOf)) {
		return neutralPriorHome, neutralPriorDraw, neutralPriorAway
	}
	prices, ok := odds.Market(enums.Outcome)
	if !ok {
		return neutralPriorHome, neutralPriorDraw, neutralPriorAway
	}
	raw := [3]float64{1 / prices[0], 1 / prices[1], 1 / prices[2]}
	total := raw[0] + raw[1] + raw[2]
	return raw[0] / total, raw[1] / total, raw[2] / total
}
