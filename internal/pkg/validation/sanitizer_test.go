package validation

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

var kickoff = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func TestSanitizeFixture(t *testing.T) {
	f := models.Fixture{
		ID:          " 12345\n",
		HomeTeam:    "  Manchester \t United\x00 ",
		AwayTeam:    "Chelsea",
		Competition: " Premier League\x7F",
		Kickoff:     kickoff,
	}
	assert.NoError(t, SanitizeFixture(&f))
	assert.Equal(t, "12345", f.ID)
	assert.Equal(t, "Manchester United", f.HomeTeam)
	assert.Equal(t, "Premier League", f.Competition)
}

func TestCheckFixture(t *testing.T) {
	tests := []struct {
		name    string
		fixture models.Fixture
		wantErr bool
	}{
		{name: "valid", fixture: models.Fixture{HomeTeam: "A", AwayTeam: "B", Kickoff: kickoff}},
		{name: "blank away", fixture: models.Fixture{HomeTeam: "A", AwayTeam: " ", Kickoff: kickoff}, wantErr: true},
		{name: "same team", fixture: models.Fixture{HomeTeam: "Leeds", AwayTeam: " leeds ", Kickoff: kickoff}, wantErr: true},
		{name: "no kickoff", fixture: models.Fixture{HomeTeam: "A", AwayTeam: "B"}, wantErr: true},
		{name: "finished without score", fixture: models.Fixture{HomeTeam: "A", AwayTeam: "B", Kickoff: kickoff, Status: models.StatusFinished}, wantErr: true},
		{name: "negative score", fixture: models.Fixture{HomeTeam: "A", AwayTeam: "B", Kickoff: kickoff, Score: &models.Score{Home: -1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFixture(tt.fixture)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFixture)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeTeamName_Truncates(t *testing.T) {
	assert.Len(t, SanitizeTeamName(strings.Repeat("x", 150)), maxNameLen)
}

func TestSanitizeBookmaker(t *testing.T) {
	assert.Equal(t, "Bet365", SanitizeBookmaker(" bet365 "))
	assert.Equal(t, "WilliamHill", SanitizeBookmaker("William Hill"))
	assert.Equal(t, "Local Books", SanitizeBookmaker("Local Books"))
}

func TestValidPrice(t *testing.T) {
	for _, p := range []float64{1.01, 2.5, 999} {
		assert.True(t, ValidPrice(p), "%v", p)
	}
	for _, p := range []float64{0, 1, -2, 1000, math.NaN(), math.Inf(1)} {
		assert.False(t, ValidPrice(p), "%v", p)
	}
}
