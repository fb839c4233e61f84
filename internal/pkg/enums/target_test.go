package enums

import "testing"

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in    string
		want  Target
		valid bool
	}{
		{"outcome", Outcome, true},
		{"goals_threshold", GoalsThreshold, true},
		{"btts", BothTeamsScore, true},
		{"corners", Target("corners"), false},
		{"", Target(""), false},
	}
	for _, tt := range tests {
		got, ok := ParseTarget(tt.in)
		if got != tt.want || ok != tt.valid {
			t.Errorf("ParseTarget(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.valid)
		}
	}
}

func TestTargetClasses(t *testing.T) {
	want := map[Target]int{Outcome: 3, GoalsThreshold: 2, BothTeamsScore: 2}
	for _, target := range GetAllTargets() {
		if got := target.Classes(); got != want[target] {
			t.Errorf("%s.Classes() = %d, want %d", target, got, want[target])
		}
	}
	if Target("x").Classes() != 0 {
		t.Errorf("unknown target should have no classes")
	}
}
