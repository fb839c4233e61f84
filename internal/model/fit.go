package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
)

// FitOptions controls gradient descent
type FitOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
	Seed         int64
}

// Fit trains softmax regression weights on already standardised rows.
// The same seed and data always give the same weights. ctx is checked every epoch.
func Fit(ctx context.Context, x [][]float64, y []int, classes int, opts FitOptions) ([][]float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("fit: %d rows and %d labels", len(x), len(y))
	}
	if classes < 2 {
		return nil, fmt.Errorf("fit: need at least 2 classes, got %d", classes)
	}
	for _, label := range y {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("fit: label %d out of range [0,%d)", label, classes)
		}
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 300
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.1
	}

	d := len(x[0]) + 1
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), 0x9e3779b97f4a7c15))
	w := make([][]float64, classes)
	for k := range w {
		w[k] = make([]float64, d)
		for j := range w[k] {
			w[k][j] = (rng.Float64() - 0.5) * 0.01
		}
	}

	n := float64(len(x))
	grad := make([][]float64, classes)
	for k := range grad {
		grad[k] = make([]float64, d)
	}
	logits := make([]float64, classes)

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for k := range grad {
			for j := range grad[k] {
				grad[k][j] = 0
			}
		}
		for i, row := range x {
			for k := range w {
				logits[k] = dot(w[k], row)
			}
			p := softmax(logits, 1)
			for k := range w {
				diff := p[k]
				if k == y[i] {
					diff -= 1
				}
				grad[k][0] += diff
				for j, v := range row {
					grad[k][j+1] += diff * v
				}
			}
		}
		for k := range w {
			for j := range w[k] {
				g := grad[k][j] / n
				if j > 0 {
					g += opts.L2 * w[k][j]
				}
				w[k][j] -= opts.LearningRate * g
			}
		}
	}
	return w, nil
}

// FitTemperature picks the softmax temperature minimising log loss on held-out rows.
// Returns 1 when there is nothing to calibrate on.
func FitTemperature(w [][]float64, x [][]float64, y []int) float64 {
	if len(x) == 0 {
		return 1
	}
	logits := make([][]float64, len(x))
	for i, row := range x {
		logits[i] = make([]float64, len(w))
		for k := range w {
			logits[i][k] = dot(w[k], row)
		}
	}
	loss := func(t float64) float64 {
		var s float64
		for i := range logits {
			p := softmax(logits[i], t)
			s -= math.Log(math.Max(p[y[i]], 1e-15))
		}
		return s / float64(len(logits))
	}

	// golden section search on [0.25, 4]
	const phi = 0.6180339887498949
	lo, hi := 0.25, 4.0
	a := hi - phi*(hi-lo)
	b := lo + phi*(hi-lo)
	fa, fb := loss(a), loss(b)
	for i := 0; i < 40; i++ {
		if fa < fb {
			hi, b, fb = b, a, fa
			a = hi - phi*(hi-lo)
			fa = loss(a)
		} else {
			lo, a, fa = a, b, fb
			b = lo + phi*(hi-lo)
			fb = loss(b)
		}
	}
	t := (lo + hi) / 2
	if loss(t) > loss(1) {
		return 1
	}
	return t
}
