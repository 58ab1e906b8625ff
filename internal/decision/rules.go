package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// Thresholds bound the ensemble score for the rule engine
type Thresholds struct {
	AI   float64 `yaml:"ai_threshold"`
	Real float64 `yaml:"real_threshold"`
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{AI: 65, Real: 40}
}

// Validate checks 0 <= real < ai <= 100
func (t Thresholds) Validate() error {
	if t.Real < 0 || t.AI > 100 || t.Real >= t.AI {
		return fmt.Errorf("invalid decision thresholds: real=%v ai=%v (need 0 <= real < ai <= 100)", t.Real, t.AI)
	}
	return nil
}

// RuleEngine is the deterministic fallback. It only looks at the ensemble score.
type RuleEngine struct {
	thresholds Thresholds
}

// NewRuleEngine creates a rule engine with the given thresholds
func NewRuleEngine(t Thresholds) *RuleEngine {
	return &RuleEngine{thresholds: t}
}

// Classify maps an ensemble score to a verdict
func (e *RuleEngine) Classify(ensemble float64) domain.Verdict {
	switch {
	case ensemble > e.thresholds.AI:
		return domain.VerdictLikelyAI
	case ensemble < e.thresholds.Real:
		return domain.VerdictLikelyReal
	default:
		return domain.VerdictInconclusive
	}
}

// Decide implements Engine
func (e *RuleEngine) Decide(_ context.Context, bundle domain.SignalBundle) domain.VerdictBundle {
	score := bundle.Ensemble
	verdict := e.Classify(score)

	return domain.VerdictBundle{
		Verdict:    verdict,
		Confidence: Confidence(score),
		Summary: fmt.Sprintf("Ensemble score of %.0f%% suggests %s. Reasoning service unavailable (rule based fallback used).",
			score, describe(verdict)),
		Reasoning: []string{
			fmt.Sprintf("Ensemble score: %.2f%%", score),
			fmt.Sprintf("Verdict thresholds: >%.0f%% = AI-generated, <%.0f%% = real, else inconclusive",
				e.thresholds.AI, e.thresholds.Real),
			fmt.Sprintf("Final verdict: %s", verdict),
			"Note: reasoning service unavailable, rule based fallback used",
		},
		Source: domain.SourceFallback,
	}
}

// Confidence is the distance of the ensemble score from neutral, scaled to 0-100
func Confidence(ensemble float64) int {
	c := math.Round(math.Abs(ensemble-domain.NeutralScore) * 2)
	return int(math.Max(0, math.Min(100, c)))
}

func describe(v domain.Verdict) string {
	switch v {
	case domain.VerdictLikelyAI:
		return "likely AI generated"
	case domain.VerdictLikelyReal:
		return "likely real"
	default:
		return "inconclusive"
	}
}
