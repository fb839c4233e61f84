package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Vodeneev/footpredict/internal/pkg/enums"
	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

func TestValidatePrediction(t *testing.T) {
	outcome := func(probs ...float64) models.Prediction {
		return models.Prediction{
			Target:        enums.Outcome,
			Outcomes:      enums.Outcome.Outcomes(),
			Probabilities: probs,
		}
	}
	swapped := outcome(0.5, 0.3, 0.2)
	swapped.Outcomes = []string{enums.LabelAway, enums.LabelDraw, enums.LabelHome}

	tests := []struct {
		name    string
		pred    models.Prediction
		wantErr bool
	}{
		{name: "valid", pred: outcome(0.5, 0.3, 0.2)},
		{name: "within tolerance", pred: outcome(0.5, 0.3, 0.2+5e-7)},
		{name: "sum off", pred: outcome(0.5, 0.3, 0.3), wantErr: true},
		{name: "negative", pred: outcome(1.1, -0.1, 0), wantErr: true},
		{name: "nan", pred: outcome(math.NaN(), 0.5, 0.5), wantErr: true},
		{name: "too few", pred: outcome(0.5, 0.5), wantErr: true},
		{name: "wrong order", pred: swapped, wantErr: true},
		{name: "unknown target", pred: models.Prediction{Target: "corners"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrediction(tt.pred)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPrediction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOddsQuote(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	quote := func(markets map[enums.Target]map[string]float64) *models.OddsQuote {
		return &models.OddsQuote{FixtureID: "1", Timestamp: ts, Markets: markets}
	}

	tests := []struct {
		name    string
		quote   *models.OddsQuote
		wantErr bool
	}{
		{name: "valid", quote: quote(map[enums.Target]map[string]float64{
			enums.Outcome:        {enums.LabelHome: 2.1, enums.LabelDraw: 3.4, enums.LabelAway: 3.6},
			enums.BothTeamsScore: {enums.LabelYes: 1.8, enums.LabelNo: 2.0},
		})},
		{name: "empty markets", quote: quote(nil)},
		{name: "nil", quote: nil, wantErr: true},
		{name: "no timestamp", quote: &models.OddsQuote{FixtureID: "1"}, wantErr: true},
		{name: "unknown market", quote: quote(map[enums.Target]map[string]float64{"corners": {"over": 1.9}}), wantErr: true},
		{name: "unknown label", quote: quote(map[enums.Target]map[string]float64{enums.GoalsThreshold: {"maybe": 1.9}}), wantErr: true},
		{name: "bad price", quote: quote(map[enums.Target]map[string]float64{enums.GoalsThreshold: {enums.LabelOver: 0.9}}), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOddsQuote(tt.quote)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOdds)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
