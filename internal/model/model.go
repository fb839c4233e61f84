package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Vodeneev/footpredict/internal/features"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
)

// ErrSchemaMismatch is returned when a vector was built for a different feature schema than the model
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// Model is a trained multinomial logistic classifier for one target
type Model struct {
	Target        enums.Target `json:"target"`
	Version       string       `json:"version"`
	SchemaVersion string       `json:"schema_version"`
	FeatureNames  []string     `json:"feature_names"`
	Classes       []string     `json:"classes"`

	// Weights has one row per class; column 0 is the bias.
	Weights     [][]float64 `json:"weights"`
	Scaler      Scaler      `json:"scaler"`
	Temperature float64     `json:"temperature"`

	TrainedAt time.Time          `json:"trained_at"`
	Samples   int                `json:"samples"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// CheckSchema fails with ErrSchemaMismatch unless v matches the model's schema
func (m *Model) CheckSchema(v features.FeatureVector) error {
	if v.Schema != m.SchemaVersion {
		return fmt.Errorf("%w: model %s expects %s, vector is %s", ErrSchemaMismatch, m.Version, m.SchemaVersion, v.Schema)
	}
	if len(v.Values) != len(m.FeatureNames) || len(m.Scaler.Mean) != len(m.FeatureNames) {
		return fmt.Errorf("%w: model %s expects %d features, vector has %d", ErrSchemaMismatch, m.Version, len(m.FeatureNames), len(v.Values))
	}
	return nil
}

// Predict returns a probability per class, ordered like m.Classes
func (m *Model) Predict(v features.FeatureVector) ([]float64, error) {
	if err := m.CheckSchema(v); err != nil {
		return nil, err
	}
	if len(m.Weights) != len(m.Classes) || len(m.Classes) < 2 {
		return nil, fmt.Errorf("model %s is malformed: %d weight rows for %d classes", m.Version, len(m.Weights), len(m.Classes))
	}
	x := m.Scaler.Transform(v.Values)
	logits := make([]float64, len(m.Weights))
	for k, w := range m.Weights {
		logits[k] = dot(w, x)
	}
	return softmax(logits, m.Temperature), nil
}

func dot(w, x []float64) float64 {
	// w[0] is the bias
	s := w[0]
	for i, xi := range x {
		s += w[i+1] * xi
	}
	return s
}

// softmax with temperature; the result always sums to 1
func softmax(logits []float64, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	maxLogit := math.Inf(-1)
	for _, z := range logits {
		if z > maxLogit {
			maxLogit = z
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for k, z := range logits {
		out[k] = math.Exp((z - maxLogit) / temperature)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}

// Scaler standardises features with the training mean and deviation
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes column statistics. Constant columns get Std 1.
func FitScaler(x [][]float64) Scaler {
	if len(x) == 0 {
		return Scaler{}
	}
	d := len(x[0])
	s := Scaler{Mean: make([]float64, d), Std: make([]float64, d)}
	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			diff := v - s.Mean[j]
			s.Std[j] += diff * diff
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		if s.Std[j] < 1e-12 {
			s.Std[j] = 1
		}
	}
	return s
}

// Transform returns a standardised copy of row
func (s Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}
