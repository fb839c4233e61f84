package enums

// Target is one of the prediction targets the engine trains a model for
type Target string

const (
	Outcome        Target = "outcome"
	GoalsThreshold Target = "goals_threshold"
	BothTeamsScore Target = "btts"
)

// Outcome labels. Order matches the probability vector produced for the target.
const (
	LabelHome  = "home"
	LabelDraw  = "draw"
	LabelAway  = "away"
	LabelOver  = "over"
	LabelUnder = "under"
	LabelYes   = "yes"
	LabelNo    = "no"
)

// TargetInfo contains additional information about a target
type TargetInfo struct {
	Name     string
	Alias    string
	Outcomes []string
}

// GetTargetInfo returns target information
func (t Target) GetTargetInfo() TargetInfo {
	switch t {
	case Outcome:
		return TargetInfo{
			Name:     "Match outcome",
			Alias:    "outcome",
			Outcomes: []string{LabelHome, LabelDraw, LabelAway},
		}
	case GoalsThreshold:
		return TargetInfo{
			Name:     "Total goals over/under",
			Alias:    "goals_threshold",
			Outcomes: []string{LabelOver, LabelUnder},
		}
	case BothTeamsScore:
		return TargetInfo{
			Name:     "Both teams to score",
			Alias:    "btts",
			Outcomes: []string{LabelYes, LabelNo},
		}
	default:
		return TargetInfo{
			Name:  "Unknown",
			Alias: "unknown",
		}
	}
}

// Outcomes returns the ordered outcome labels of the target
func (t Target) Outcomes() []string {
	return t.GetTargetInfo().Outcomes
}

// Classes returns the number of outcome classes
func (t Target) Classes() int {
	return len(t.Outcomes())
}

// IsValid checks if target is supported
func (t Target) IsValid() bool {
	switch t {
	case Outcome, GoalsThreshold, BothTeamsScore:
		return true
	default:
		return false
	}
}

// String returns string representation
func (t Target) String() string {
	return string(t)
}

// GetAllTargets returns all supported targets in training order
func GetAllTargets() []Target {
	return []Target{
		Outcome,
		GoalsThreshold,
		BothTeamsScore,
	}
}

// ParseTarget parses string to Target enum
func ParseTarget(s string) (Target, bool) {
	target := Target(s)
	return target, target.IsValid()
}
