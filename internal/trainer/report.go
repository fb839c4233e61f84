package trainer

import (
	"fmt"
	"strings"
	"time"

	"github.com/Vodeneev/footpredict/internal/model"
)

// Report summarises a TrainAll run
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Records    int       `json:"records"`
	Results    []*Result `json:"results"`
}

// Models returns the models trained successfully
func (r *Report) Models() []*model.Model {
	var out []*model.Model
	for _, res := range r.Results {
		if res.Model != nil {
			out = append(out, res.Model)
		}
	}
	return out
}

// Markdown renders the report as a markdown document
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Training report\n\n")
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Records: %d\n\n", r.Records)

	b.WriteString("Metrics are scored on the validation rows after the calibration rows.\n\n")
	b.WriteString("| Target | Samples | Train | Validation | Calibration | Accuracy | Log loss | Brier | AUC | Version | Status |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|---|\n")
	for _, res := range r.Results {
		status := "ok"
		if res.Error != "" {
			status = strings.ReplaceAll(res.Error, "|", "/")
		}
		auc := "n/a"
		if res.Metrics.HasAUC {
			auc = fmt.Sprintf("%.3f", res.Metrics.AUC)
		}
		version := res.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %.3f | %.3f | %.3f | %s | %s | %s |\n",
			res.Target, res.Samples, res.TrainSamples, res.ValidationSamples, res.CalibrationSamples,
			res.Metrics.Accuracy, res.Metrics.LogLoss, res.Metrics.Brier, auc, version, status)
	}
	return b.String()
}
