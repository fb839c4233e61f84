package model

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/Vodeneev/footpredict/internal/features"
	"github.com/Vodeneev/footpredict/internal/pkg/enums"
)

// separable two-feature data: class 0 when x0 > 0, class 1 otherwise
func syntheticData(n int, seed uint64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, 1))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x[i] = []float64{a, b}
		if a > 0 {
			y[i] = 0
		} else {
			y[i] = 1
		}
	}
	return x, y
}

func TestFit_LearnsSeparableData(t *testing.T) {
	x, y := syntheticData(400, 7)
	w, err := Fit(context.Background(), x, y, 2, FitOptions{Epochs: 200, LearningRate: 0.5, Seed: 42})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	correct := 0
	for i, row := range x {
		p := softmax([]float64{dot(w[0], row), dot(w[1], row)}, 1)
		pred := 0
		if p[1] > p[0] {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(x)); acc < 0.9 {
		t.Errorf("training accuracy = %.2f, want >= 0.9", acc)
	}
}

func TestFit_SameSeedSameWeights(t *testing.T) {
	x, y := syntheticData(100, 3)
	opts := FitOptions{Epochs: 50, LearningRate: 0.1, Seed: 42}
	w1, _ := Fit(context.Background(), x, y, 2, opts)
	w2, _ := Fit(context.Background(), x, y, 2, opts)
	for k := range w1 {
		for j := range w1[k] {
			if w1[k][j] != w2[k][j] {
				t.Fatalf("weights differ at [%d][%d]: %v vs %v", k, j, w1[k][j], w2[k][j])
			}
		}
	}
}

func TestFit_Cancelled(t *testing.T) {
	x, y := syntheticData(10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Fit(ctx, x, y, 2, FitOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit on cancelled context = %v, want context.Canceled", err)
	}
}

func TestFit_RejectsBadLabels(t *testing.T) {
	if _, err := Fit(context.Background(), [][]float64{{1}}, []int{3}, 3, FitOptions{}); err == nil {
		t.Errorf("label out of range should fail")
	}
	if _, err := Fit(context.Background(), nil, nil, 3, FitOptions{}); err == nil {
		t.Errorf("empty data should fail")
	}
}

func newTestModel() *Model {
	d := features.Len()
	w := make([][]float64, 3)
	for k := range w {
		w[k] = make([]float64, d+1)
		w[k][0] = float64(k) * 0.3
		w[k][1] = 0.1 * float64(k+1)
	}
	mean := make([]float64, d)
	std := make([]float64, d)
	for j := range std {
		std[j] = 1
	}
	return &Model{
		Target:        enums.Outcome,
		Version:       "test",
		SchemaVersion: features.SchemaVersion,
		FeatureNames:  features.Names(),
		Classes:       enums.Outcome.Outcomes(),
		Weights:       w,
		Scaler:        Scaler{Mean: mean, Std: std},
		Temperature:   1,
	}
}

func TestPredict_ProbabilitiesValid(t *testing.T) {
	m := newTestModel()
	rng := rand.New(rand.NewPCG(5, 5))
	for i := 0; i < 200; i++ {
		values := make([]float64, features.Len())
		for j := range values {
			values[j] = rng.NormFloat64() * 50
		}
		p, err := m.Predict(features.FeatureVector{Schema: features.SchemaVersion, Values: values})
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		var sum float64
		for _, v := range p {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("probability out of range: %v", p)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("probabilities sum to %v", sum)
		}
	}
}

func TestPredict_SchemaGuard(t *testing.T) {
	m := newTestModel()
	tests := []struct {
		name string
		vec  features.FeatureVector
	}{
		{"other schema", features.FeatureVector{Schema: "v0", Values: make([]float64, features.Len())}},
		{"wrong length", features.FeatureVector{Schema: features.SchemaVersion, Values: make([]float64, 3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Predict(tt.vec); !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("Predict = %v, want ErrSchemaMismatch", err)
			}
		})
	}

	m.SchemaVersion = "v0"
	vec := features.FeatureVector{Schema: features.SchemaVersion, Values: make([]float64, features.Len())}
	if _, err := m.Predict(vec); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("old model on current vector = %v, want ErrSchemaMismatch", err)
	}
}

func TestFitScaler_ConstantColumn(t *testing.T) {
	s := FitScaler([][]float64{{1, 5}, {3, 5}})
	if s.Mean[0] != 2 || s.Std[0] != 1 {
		t.Errorf("column 0 stats = %v/%v, want 2/1", s.Mean[0], s.Std[0])
	}
	if s.Std[1] != 1 {
		t.Errorf("constant column std = %v, want 1", s.Std[1])
	}
	if got := s.Transform([]float64{3, 5}); got[0] != 1 || got[1] != 0 {
		t.Errorf("Transform = %v", got)
	}
}

func TestFitTemperature_PrefersSharperWhenConfidentAndRight(t *testing.T) {
	w := [][]float64{{0, 1}, {0, -1}}
	x := [][]float64{{1}, {-1}, {2}, {-2}}
	y := []int{0, 1, 0, 1}
	if got := FitTemperature(w, x, y); got >= 1 {
		t.Errorf("temperature = %v, want < 1 for perfectly separated data", got)
	}
	if got := FitTemperature(w, nil, nil); got != 1 {
		t.Errorf("temperature without data = %v, want 1", got)
	}
}
