package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Vodeneev/footpredict/internal/pkg/models"
)

// ErrInvalidFixture is returned for fixtures without two distinct teams or a kickoff
var ErrInvalidFixture = errors.New("invalid fixture")

const (
	maxIDLen   = 100
	maxNameLen = 100
	maxPrice   = 1000
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	spaces       = regexp.MustCompile(`\s+`)
	idChars      = regexp.MustCompile(`[^a-zA-Z0-9_:-]`)
)

// bookmakerNames maps common spellings to one display name
var bookmakerNames = map[string]string{
	"bet365":       "Bet365",
	"unibet":       "Unibet",
	"pinnacle":     "Pinnacle",
	"betfair":      "Betfair",
	"1xbet":        "1xBet",
	"marathonbet":  "Marathonbet",
	"williamhill":  "WilliamHill",
	"william hill": "WilliamHill",
	"bwin":         "Bwin",
}

// SanitizeFixture cleans provider strings in place, then checks the fixture
func SanitizeFixture(f *models.Fixture) error {
	f.ID = SanitizeID(f.ID)
	f.HomeTeam = SanitizeTeamName(f.HomeTeam)
	f.AwayTeam = SanitizeTeamName(f.AwayTeam)
	f.Competition = SanitizeString(f.Competition)
	return CheckFixture(*f)
}

// CheckFixture reports whether f can be predicted
func CheckFixture(f models.Fixture) error {
	switch {
	case strings.TrimSpace(f.HomeTeam) == "" || strings.TrimSpace(f.AwayTeam) == "":
		return fmt.Errorf("%w: missing team in %q", ErrInvalidFixture, f.Name())
	case models.SameTeam(f.HomeTeam, f.AwayTeam):
		return fmt.Errorf("%w: %q plays itself", ErrInvalidFixture, f.HomeTeam)
	case f.Kickoff.IsZero():
		return fmt.Errorf("%w: %q has no kickoff", ErrInvalidFixture, f.Name())
	}
	if f.Status == models.StatusFinished && f.Score == nil {
		return fmt.Errorf("%w: finished fixture %q has no score", ErrInvalidFixture, f.Name())
	}
	if f.Score != nil && (f.Score.Home < 0 || f.Score.Away < 0) {
		return fmt.Errorf("%w: negative score in %q", ErrInvalidFixture, f.Name())
	}
	return nil
}

// SanitizeID keeps identifier characters only
func SanitizeID(id string) string {
	sanitized := idChars.ReplaceAllString(id, "")
	if len(sanitized) > maxIDLen {
		sanitized = sanitized[:maxIDLen]
	}
	return sanitized
}

// SanitizeString trims and drops control characters
func SanitizeString(s string) string {
	sanitized := controlChars.ReplaceAllString(strings.TrimSpace(s), "")
	if len(sanitized) > 2*maxNameLen {
		sanitized = sanitized[:2*maxNameLen]
	}
	return sanitized
}

// SanitizeTeamName also collapses inner whitespace
func SanitizeTeamName(name string) string {
	sanitized := controlChars.ReplaceAllString(strings.TrimSpace(name), "")
	sanitized = spaces.ReplaceAllString(sanitized, " ")
	if len(sanitized) > maxNameLen {
		sanitized = sanitized[:maxNameLen]
	}
	return sanitized
}

// SanitizeBookmaker standardizes bookmaker names
func SanitizeBookmaker(name string) string {
	sanitized := SanitizeString(name)
	if standard, ok := bookmakerNames[strings.ToLower(sanitized)]; ok {
		return standard
	}
	return sanitized
}

// ValidPrice reports whether p is a usable decimal price
func ValidPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 1 && p < maxPrice
}
