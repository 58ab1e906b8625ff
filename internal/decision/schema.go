package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// rawVerdict is the object the reasoning service is asked to return
type rawVerdict struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Summary    string   `json:"summary"`
	Reasoning  []string `json:"reasoning"`
}

func buildVerdictSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"verdict":    map[string]any{"type": "string", "minLength": 1},
			"confidence": map[string]any{"type": "number"},
			"summary":    map[string]any{"type": "string"},
			"reasoning": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"verdict", "confidence", "summary", "reasoning"},
	}
}

// verdictParser decodes and validates reasoning responses
type verdictParser struct {
	schema *jsonschema.Schema
}

func newVerdictParser() (*verdictParser, error) {
	b, err := json.Marshal(buildVerdictSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdict.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("verdict.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &verdictParser{schema: schema}, nil
}

// Parse turns raw reasoning output into a verdict bundle. Every failure wraps
// domain.ErrMalformedVerdict.
func (p *verdictParser) Parse(content string) (domain.VerdictBundle, error) {
	body := extractJSON(content)
	if body == "" {
		return domain.VerdictBundle{}, fmt.Errorf("%w: empty response", domain.ErrMalformedVerdict)
	}

	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return domain.VerdictBundle{}, fmt.Errorf("%w: %v", domain.ErrMalformedVerdict, err)
	}
	if err := p.schema.Validate(v); err != nil {
		return domain.VerdictBundle{}, fmt.Errorf("%w: json does not match schema: %v", domain.ErrMalformedVerdict, err)
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return domain.VerdictBundle{}, fmt.Errorf("%w: %v", domain.ErrMalformedVerdict, err)
	}

	verdict, ok := normalizeVerdict(raw.Verdict)
	if !ok {
		return domain.VerdictBundle{}, fmt.Errorf("%w: unknown verdict %q", domain.ErrMalformedVerdict, raw.Verdict)
	}

	return domain.VerdictBundle{
		Verdict:    verdict,
		Confidence: int(math.Round(domain.ClampScore(raw.Confidence))),
		Summary:    strings.TrimSpace(raw.Summary),
		Reasoning:  raw.Reasoning,
		Source:     domain.SourcePrimary,
	}, nil
}

// extractJSON strips optional code fences and surrounding prose
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") {
		return s
	}

	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func normalizeVerdict(label string) (domain.Verdict, bool) {
	key := strings.ToUpper(strings.TrimSpace(label))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)

	switch key {
	case "LIKELY_AI", "LIKELY_AI_GENERATED", "AI_GENERATED", "AI":
		return domain.VerdictLikelyAI, true
	case "LIKELY_REAL", "REAL", "AUTHENTIC":
		return domain.VerdictLikelyReal, true
	case "INCONCLUSIVE", "UNCERTAIN":
		return domain.VerdictInconclusive, true
	}
	return "", false
}
