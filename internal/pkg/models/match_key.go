package models

import (
	"strings"
	"time"
)

// CanonicalFixtureID builds a stable fixture identity independent of the data source.
// Format: home|away|competition|time
func CanonicalFixtureID(homeTeam, awayTeam, competition string, kickoff time.Time) string {
	home := normalizeKeyPart(homeTeam)
	away := normalizeKeyPart(awayTeam)
	comp := normalizeKeyPart(competition)

	ts := "unknown-time"
	if !kickoff.IsZero() {
		ts = kickoff.UTC().Format(time.RFC3339)
	}

	return home + "|" + away + "|" + comp + "|" + ts
}

// SameTeam compares team names the way fixture identities do
func SameTeam(a, b string) bool {
	na := normalizeKeyPart(a)
	return na != "" && na == normalizeKeyPart(b)
}

func normalizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "/", " ")
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "|", " ")
	s = strings.Join(strings.Fields(s), " ")
	return s
}
