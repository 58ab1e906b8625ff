package domain

import "math"

// Verdict is the final classification of an image
type Verdict string

// Verdict constants
const (
	VerdictLikelyAI     Verdict = "LIKELY_AI"
	VerdictLikelyReal   Verdict = "LIKELY_REAL"
	VerdictInconclusive Verdict = "INCONCLUSIVE"
)

// DecisionSource names the engine that produced a verdict
type DecisionSource string

const (
	SourcePrimary  DecisionSource = "primary"
	SourceFallback DecisionSource = "fallback"
)

// VerdictBundle is the output of the decision engine
type VerdictBundle struct {
	Verdict    Verdict        `json:"verdict"`
	Confidence int            `json:"confidence"`
	Summary    string         `json:"summary"`
	Reasoning  []string       `json:"reasoning"`
	Source     DecisionSource `json:"source"`
}

// ResultPayload is the stored result of a finished job and the body of the
// result event
type ResultPayload struct {
	Verdict        Verdict        `json:"verdict"`
	Confidence     int            `json:"confidence"`
	Summary        string         `json:"summary"`
	Reasoning      []string       `json:"agent_reasoning"`
	Source         DecisionSource `json:"decision_source"`
	CNNScore       int            `json:"ml_score"`
	SemanticScore  int            `json:"semantic_score"`
	FrequencyScore int            `json:"frequency_score"`
	EnsembleScore  int            `json:"ensemble_score"`
	ReverseSearch  []SearchResult `json:"reverse_search"`
	Heatmap        string         `json:"heatmap"`
	Exif           ExifSummary    `json:"exif"`
	Face           FaceInfo       `json:"face"`
}

// NewResultPayload assembles the final payload from the signals and verdict.
// Scores are rounded to whole numbers.
func NewResultPayload(b SignalBundle, v VerdictBundle, heatmap string) ResultPayload {
	return ResultPayload{
		Verdict:        v.Verdict,
		Confidence:     v.Confidence,
		Summary:        v.Summary,
		Reasoning:      append([]string(nil), v.Reasoning...),
		Source:         v.Source,
		CNNScore:       roundScore(b.CNN),
		SemanticScore:  roundScore(b.Semantic),
		FrequencyScore: roundScore(b.Frequency),
		EnsembleScore:  roundScore(b.Ensemble),
		ReverseSearch:  cloneResults(b.Search),
		Heatmap:        heatmap,
		Exif:           b.Exif,
		Face:           b.Face,
	}
}

// Clone returns a deep copy of the payload
func (r ResultPayload) Clone() ResultPayload {
	out := r
	out.Reasoning = append([]string(nil), r.Reasoning...)
	out.ReverseSearch = cloneResults(r.ReverseSearch)
	return out
}

func roundScore(v float64) int {
	return int(math.Round(ClampScore(v)))
}

// cloneResults never returns nil so the list always encodes as an array
func cloneResults(in []SearchResult) []SearchResult {
	out := make([]SearchResult, len(in))
	copy(out, in)
	return out
}
