package trainer

import (
	"math"
	"sort"

	"github.com/Vodeneev/footpredict/internal/features"
	"github.com/Vodeneev/footpredict/internal/model"
)

// Metrics are validation scores of a trained model
type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	LogLoss  float64 `json:"log_loss"`
	Brier    float64 `json:"brier"`
	AUC      float64 `json:"auc,omitempty"`
	HasAUC   bool    `json:"-"`
}

// Map flattens the metrics for storage with the model
func (m Metrics) Map() map[string]float64 {
	out := map[string]float64{
		"accuracy": m.Accuracy,
		"log_loss": m.LogLoss,
		"brier":    m.Brier,
	}
	if m.HasAUC {
		out["auc"] = m.AUC
	}
	return out
}

// Evaluate scores m on already standardised rows
func Evaluate(m *model.Model, x [][]float64, y []int) Metrics {
	if len(x) == 0 {
		return Metrics{}
	}
	// rows are standardised, so predict through an identity scaler
	identity := *m
	identity.Scaler = model.Scaler{Mean: make([]float64, len(m.FeatureNames)), Std: ones(len(m.FeatureNames))}

	probs := make([][]float64, 0, len(x))
	for _, row := range x {
		p, err := identity.Predict(features.FeatureVector{Schema: m.SchemaVersion, Values: row})
		if err != nil {
			return Metrics{}
		}
		probs = append(probs, p)
	}
	return Score(probs, y)
}

// Score computes accuracy, log loss, multi-class Brier score and, for two
// classes, ROC AUC of class 0
func Score(probs [][]float64, y []int) Metrics {
	var m Metrics
	n := float64(len(probs))
	if n == 0 {
		return m
	}
	correct := 0
	for i, p := range probs {
		if argmax(p) == y[i] {
			correct++
		}
		m.LogLoss -= math.Log(math.Max(p[y[i]], 1e-15))
		for k, pk := range p {
			target := 0.0
			if k == y[i] {
				target = 1
			}
			m.Brier += (pk - target) * (pk - target)
		}
	}
	m.Accuracy = float64(correct) / n
	m.LogLoss /= n
	m.Brier /= n

	if len(probs[0]) == 2 {
		scores := make([]float64, len(probs))
		positive := make([]bool, len(probs))
		for i, p := range probs {
			scores[i] = p[0]
			positive[i] = y[i] == 0
		}
		m.AUC, m.HasAUC = AUC(scores, positive)
	}
	return m
}

// AUC is the Mann-Whitney estimate with tied scores sharing ranks.
// ok is false when only one class is present.
func AUC(scores []float64, positive []bool) (float64, bool) {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg, rankSum float64
	for i, isPos := range positive {
		if isPos {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, false
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg), true
}

func argmax(p []float64) int {
	best := 0
	for k := range p {
		if p[k] > p[best] {
			best = k
		}
	}
	return best
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
