package fusion

import (
	"fmt"
	"math"
)

const weightTolerance = 1e-6

// Weights are the linear coefficients of the ensemble score
type Weights struct {
	CNN       float64 `yaml:"cnn"`
	Semantic  float64 `yaml:"semantic"`
	Frequency float64 `yaml:"frequency"`
}

// DefaultWeights returns the tuned production weighting
func DefaultWeights() Weights {
	return Weights{CNN: 0.40, Semantic: 0.35, Frequency: 0.25}
}

// Validate checks that every weight is non-negative and the weights sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"cnn": w.CNN, "semantic": w.Semantic, "frequency": w.Frequency} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("invalid %s weight: %v (must be >= 0)", name, v)
		}
	}

	if sum := w.CNN + w.Semantic + w.Frequency; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("fusion weights must sum to 1, got %v", sum)
	}

	return nil
}

// Engine combines the three numeric signals into one ensemble score
type Engine struct {
	weights Weights
}

// NewEngine creates a fusion engine after validating the weights
func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w}, nil
}

// Weights returns the configured weights
func (e *Engine) Weights() Weights {
	return e.weights
}

// Ensemble returns the weighted sum rounded to two decimal places. Inputs are
// expected in [0,100] so the result is not clamped again.
func (e *Engine) Ensemble(cnn, semantic, frequency float64) float64 {
	sum := cnn*e.weights.CNN + semantic*e.weights.Semantic + frequency*e.weights.Frequency
	return math.Round(sum*100) / 100
}
