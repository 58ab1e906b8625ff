package decision

import (
	"fmt"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// Policy holds the guard rails applied to every primary verdict. The semantic
// signal is trusted most and the CNN signal may never carry a verdict alone.
type Policy struct {
	RealSemanticMax  float64 `yaml:"real_semantic_max"`
	RealFrequencyMax float64 `yaml:"real_frequency_max"`
	SemanticAgreeMin float64 `yaml:"semantic_agree_min"`
	SemanticAIMin    float64 `yaml:"semantic_ai_min"`
	CNNAIMin         float64 `yaml:"cnn_ai_min"`
}

// DefaultPolicy returns the tuned production guard rails
func DefaultPolicy() Policy {
	return Policy{
		RealSemanticMax:  20,
		RealFrequencyMax: 35,
		SemanticAgreeMin: 50,
		SemanticAIMin:    75,
		CNNAIMin:         65,
	}
}

// inconclusiveConfidenceCap bounds the confidence of a verdict downgraded to
// INCONCLUSIVE by a guard rail.
const inconclusiveConfidenceCap = 50

// Apply enforces the guard rails on a proposed verdict. An overridden verdict
// gets a summary naming the rule and a confidence derived from the signals
// that decided it, never the one the reasoning service gave its own verdict.
func (p Policy) Apply(b domain.SignalBundle, v domain.VerdictBundle) domain.VerdictBundle {
	out := v
	out.Reasoning = append([]string(nil), v.Reasoning...)

	switch {
	case b.Semantic <= p.RealSemanticMax && b.Frequency <= p.RealFrequencyMax:
		// CNN false positives on real portraits
		if v.Verdict == domain.VerdictLikelyReal {
			break
		}
		out.Verdict = domain.VerdictLikelyReal
		out.Confidence = Confidence(max(b.Semantic, b.Frequency))
		out.Summary = fmt.Sprintf(
			"Likely real: semantic %.1f%% and frequency %.1f%% are both low, so the CNN score of %.1f%% cannot mark the image as AI.",
			b.Semantic, b.Frequency, b.CNN)
		out.Reasoning = append(out.Reasoning, fmt.Sprintf(
			"Policy: semantic %.1f%% and frequency %.1f%% are both low, CNN %.1f%% alone cannot mark the image as AI",
			b.Semantic, b.Frequency, b.CNN))

	case v.Verdict == domain.VerdictLikelyAI && b.Semantic < p.SemanticAgreeMin:
		out.Verdict = domain.VerdictInconclusive
		out.Confidence = min(out.Confidence, inconclusiveConfidenceCap)
		out.Summary = fmt.Sprintf(
			"Inconclusive: the semantic score of %.1f%% does not support an AI verdict.", b.Semantic)
		out.Reasoning = append(out.Reasoning, fmt.Sprintf(
			"Policy: semantic %.1f%% disagrees with an AI verdict, downgraded to INCONCLUSIVE", b.Semantic))

	case v.Verdict != domain.VerdictLikelyAI && b.Semantic >= p.SemanticAIMin:
		// semantic overrides unless frequency looks clean and the CNN does not back it
		if b.Frequency > p.RealFrequencyMax || b.CNN >= p.CNNAIMin {
			out.Verdict = domain.VerdictLikelyAI
			out.Confidence = Confidence(b.Semantic)
			out.Summary = fmt.Sprintf(
				"Likely AI generated: the semantic score of %.1f%% overrides the other signals.", b.Semantic)
			out.Reasoning = append(out.Reasoning, fmt.Sprintf(
				"Policy: semantic %.1f%% indicates generation and frequency %.1f%% does not contradict it, overriding to LIKELY_AI",
				b.Semantic, b.Frequency))
			break
		}
		if v.Verdict == domain.VerdictInconclusive {
			break
		}
		out.Verdict = domain.VerdictInconclusive
		out.Confidence = min(out.Confidence, inconclusiveConfidenceCap)
		out.Summary = fmt.Sprintf(
			"Inconclusive: semantic %.1f%% indicates generation but frequency %.1f%% and CNN %.1f%% do not.",
			b.Semantic, b.Frequency, b.CNN)
		out.Reasoning = append(out.Reasoning, fmt.Sprintf(
			"Policy: semantic %.1f%% contradicts a real verdict, downgraded to INCONCLUSIVE", b.Semantic))
	}

	return out
}
