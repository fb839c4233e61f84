package trainer

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vodeneev/footpredict/internal/features"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/logging"
	"github.com/Vodeneev/footpredict/internal/pkg/metrics"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
	"github.com/Vodeneev/footpredict/internal/pkg/storage"
	"github.com/Vodeneev/footpredict/internal/source"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		MinSamples:         50,
		ValidationFraction: 0.2,
		Seed:               42,
		Epochs:             60,
		LearningRate:       0.1,
		L2:                 0.001,
		FormWindow:         10,
		GoalsLine:          2.5,
	}
}

func syntheticRecords(t *testing.T, days int) []models.HistoricalRecord {
	t.Helper()
	a := source.NewSyntheticAdapter(func() time.Time { return now })
	fixtures, err := a.FetchHistory(context.Background(), source.HistoryQuery{
		Until:    now,
		Lookback: time.Duration(days) * 24 * time.Hour,
	})
	require.NoError(t, err)
	return source.Records(a, fixtures)
}

func newTrainer(store storage.ModelStore) *Trainer {
	tr := New(testOptions(), store, metrics.New(), logging.Discard())
	tr.now = func() time.Time { return now }
	return tr
}

func TestTrain_InsufficientData(t *testing.T) {
	store := storage.NewMemoryStore(0)
	tr := newTrainer(store)
	records := syntheticRecords(t, 120)[:10]

	res, err := tr.Train(context.Background(), enums.Outcome, records)
	assert.ErrorIs(t, err, ErrInsufficientData)
	require.NotNil(t, res)
	assert.Nil(t, res.Model)
	assert.Zero(t, store.ModelCount())
}

func TestTrain_UnknownTarget(t *testing.T) {
	_, err := newTrainer(nil).Train(context.Background(), enums.Target("corners"), nil)
	assert.Error(t, err)
}

func TestTrainAll(t *testing.T) {
	store := storage.NewMemoryStore(0)
	tr := newTrainer(store)
	records := syntheticRecords(t, 120)
	require.GreaterOrEqual(t, len(records), 500)

	report, err := tr.TrainAll(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Len(t, report.Models(), 3)
	assert.Equal(t, 3, store.ModelCount())

	latest, err := store.LatestModels(context.Background())
	require.NoError(t, err)

	for _, res := range report.Results {
		t.Run(string(res.Target), func(t *testing.T) {
			m := res.Model
			require.NotNil(t, m)
			assert.Empty(t, res.Error)
			assert.True(t, strings.HasPrefix(m.Version, string(res.Target)+"-20260301T120000Z-"))
			assert.Equal(t, features.SchemaVersion, m.SchemaVersion)
			assert.Equal(t, res.Target.Outcomes(), m.Classes)
			assert.Equal(t, len(records), res.TrainSamples+res.ValidationSamples)
			assert.InDelta(t, 0.2*float64(len(records)), float64(res.ValidationSamples), 1)
			assert.Equal(t, res.ValidationSamples/2, res.CalibrationSamples)
			assert.Equal(t, m.Version, latest[res.Target].Version)

			assert.Greater(t, res.Metrics.Accuracy, 0.0)
			assert.Greater(t, res.Metrics.LogLoss, 0.0)
			assert.Equal(t, res.Target != enums.Outcome, res.Metrics.HasAUC)

			// a brand-new fixture gets a proper distribution
			fixture := models.Fixture{HomeTeam: "Ashford Rovers", AwayTeam: "Bramley Town", Kickoff: now.Add(24 * time.Hour)}
			v := features.NewBuilder(10, 2.5).Build(fixture, now, records, nil)
			p, err := m.Predict(v)
			require.NoError(t, err)
			var sum float64
			for _, pk := range p {
				assert.GreaterOrEqual(t, pk, 0.0)
				sum += pk
			}
			assert.InDelta(t, 1.0, sum, 1e-6)
		})
	}

	md := report.Markdown()
	assert.Contains(t, md, "# Training report")
	assert.Contains(t, md, "| outcome |")
	assert.Contains(t, md, "| btts |")
}

func TestTrainAll_Deterministic(t *testing.T) {
	records := syntheticRecords(t, 90)
	first, err := newTrainer(nil).TrainAll(context.Background(), records)
	require.NoError(t, err)
	second, err := newTrainer(nil).TrainAll(context.Background(), records)
	require.NoError(t, err)

	for i := range first.Results {
		assert.Equal(t, first.Results[i].Model.Weights, second.Results[i].Model.Weights)
		assert.Equal(t, first.Results[i].Metrics, second.Results[i].Metrics)
	}
}

func TestTrainAll_Canceled(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTrainer(store).TrainAll(ctx, syntheticRecords(t, 60))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.ModelCount())
}

func TestTrainAll_InsufficientDataIsReported(t *testing.T) {
	report, err := newTrainer(nil).TrainAll(context.Background(), syntheticRecords(t, 120)[:20])
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	for _, res := range report.Results {
		assert.Nil(t, res.Model)
		assert.Contains(t, res.Error, "insufficient data")
	}
	assert.Empty(t, report.Models())
}

func TestPrepare_NoFutureLeakage(t *testing.T) {
	tr := newTrainer(nil)
	records := syntheticRecords(t, 60)

	full, err := tr.prepare(context.Background(), records)
	require.NoError(t, err)
	half := len(full.records) / 2
	partial, err := tr.prepare(context.Background(), full.records[:half])
	require.NoError(t, err)

	for i := 0; i < half; i++ {
		assert.Equal(t, partial.x[i], full.x[i], "row %d changed when later records were added", i)
	}
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		positive []bool
		want     float64
		wantOK   bool
	}{
		{"perfect", []float64{0.9, 0.8, 0.2, 0.1}, []bool{true, true, false, false}, 1, true},
		{"reversed", []float64{0.1, 0.2, 0.8, 0.9}, []bool{true, true, false, false}, 0, true},
		{"all tied", []float64{0.5, 0.5, 0.5, 0.5}, []bool{true, false, true, false}, 0.5, true},
		{"one class", []float64{0.3, 0.6}, []bool{true, true}, 0, false},
	}
	for _, tt := range tests {
		got, ok := AUC(tt.scores, tt.positive)
		if ok != tt.wantOK || math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%s: AUC() = %v, %v, want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestScore(t *testing.T) {
	m := Score([][]float64{{1, 0}, {0.5, 0.5}}, []int{0, 1})
	assert.InDelta(t, 0.5, m.Accuracy, 1e-12, "ties resolve to the first class")
	assert.InDelta(t, math.Log(2)/2, m.LogLoss, 1e-9)
	assert.InDelta(t, 0.25, m.Brier, 1e-12)
	assert.True(t, m.HasAUC)
}

func TestPrepare_MarketPriorFromClosingOdds(t *testing.T) {
	ds, err := newTrainer(nil).prepare(context.Background(), syntheticRecords(t, 60))
	require.NoError(t, err)

	col := -1
	for i, name := range features.Names() {
		if name == "prior_home" {
			col = i
		}
	}
	require.GreaterOrEqual(t, col, 0)
	distinct := make(map[float64]bool)
	for _, row := range ds.x {
		distinct[row[col]] = true
	}
	assert.Greater(t, len(distinct), 10, "closing odds should drive the market prior")
}
