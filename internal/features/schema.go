package features

// SchemaVersion identifies the feature layout below. Bump it whenever names or
// their order change: models trained on another schema are rejected at inference.
const SchemaVersion = "v1"

var names = []string{
	"day_of_week",
	"month",
	"is_weekend",

	"home_games_played",
	"home_avg_goals_for",
	"home_avg_goals_against",
	"home_win_rate",
	"home_draw_rate",
	"home_loss_rate",
	"home_btts_rate",
	"home_over_rate",
	"home_rest_days",

	"away_games_played",
	"away_avg_goals_for",
	"away_avg_goals_against",
	"away_win_rate",
	"away_draw_rate",
	"away_loss_rate",
	"away_btts_rate",
	"away_over_rate",
	"away_rest_days",

	"h2h_games",
	"h2h_home_win_rate",
	"h2h_avg_goals",

	"goal_difference_avg",
	"defense_difference",
	"win_rate_difference",

	"home_advantage",

	"prior_home",
	"prior_draw",
	"prior_away",
}

// Neutral values used when a team has no usable history
const (
	neutralGoals    = 1.2
	neutralWinRate  = 0.4
	neutralDrawRate = 0.3
	neutralLossRate = 0.3
	neutralBTTSRate = 0.5
	neutralOverRate = 0.5
	neutralRestDays = 7.0
	maxRestDays     = 30.0

	neutralH2HHomeWinRate = 0.4
	neutralH2HGoals       = 2.5

	neutralPriorHome = 0.45
	neutralPriorDraw = 0.27
	neutralPriorAway = 0.28
)

// Names returns the ordered feature names of the current schema
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Len is the number of features in the current schema
func Len() int {
	return len(names)
}
