package decision

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/fusion"
)

// SystemPrompt instructs the reasoning service on role and output format
const SystemPrompt = `You are TruthLens, a media forensics agent specialized in detecting AI-generated and manipulated images.
1. Reason through each signal carefully
2. Note where signals agree or conflict
3. Weigh the evidence holistically
4. Produce a final verdict

Respond only with a valid JSON object in this exact format:
{
  "verdict": "LIKELY AI GENERATED" | "LIKELY REAL" | "INCONCLUSIVE",
  "confidence": <integer 0-100>,
  "summary": "<2-3 sentence human-readable summary>",
  "reasoning": [
    "<step 1>",
    "<step 2>",
    "<step 3>",
    "<step 4, final verdict rationale>"
  ]
}

Be honest about uncertainty. If signals conflict, say INCONCLUSIVE.
Never overclaim. This is a forensic tool, not an oracle.`

// BuildBrief formats the signal bundle as the user message for the reasoning service
func BuildBrief(b domain.SignalBundle, w fusion.Weights, p Policy) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Analyze the following signals for: %s\n\n", b.Filename)

	fmt.Fprintf(&sb, "SIGNAL 1 - CNN Score: %.1f%%\n", b.CNN)
	sb.WriteString("(Trained on visual artifacts. 0% = real, 100% = AI-generated)\n\n")

	fmt.Fprintf(&sb, "SIGNAL 2 - Semantic Zero-Shot Score: %.1f%%\n", b.Semantic)
	sb.WriteString("(Semantic understanding, generalizes to new generators. The most reliable single signal)\n\n")

	fmt.Fprintf(&sb, "SIGNAL 3 - Frequency Domain Anomaly: %.1f%%\n", b.Frequency)
	sb.WriteString("(DCT physics-level artifacts)\n\n")

	fmt.Fprintf(&sb, "SIGNAL 4 - Weighted Ensemble Score: %.1f%%\n", b.Ensemble)
	fmt.Fprintf(&sb, "(CNN x %.2f + Semantic x %.2f + Frequency x %.2f)\n\n", w.CNN, w.Semantic, w.Frequency)

	fmt.Fprintf(&sb, "SIGNAL 5 - EXIF Metadata: %s\n\n", exifLine(b.Exif))

	fmt.Fprintf(&sb, "SIGNAL 6 - Reverse Image Search: %s\n\n", searchLine(b.Search))

	sb.WriteString("Decision policy:\n")
	sb.WriteString("- The semantic score can override the CNN score in either direction.\n")
	sb.WriteString("- The CNN score alone must never flip a verdict the semantic score disagrees with.\n")
	fmt.Fprintf(&sb, "- Semantic <= %.0f%% together with frequency <= %.0f%% means LIKELY REAL even when the CNN score is high.\n",
		p.RealSemanticMax, p.RealFrequencyMax)
	fmt.Fprintf(&sb, "- Semantic >= %.0f%% means LIKELY AI whatever the CNN score, unless frequency <= %.0f%% and the CNN score is below %.0f%%.\n",
		p.SemanticAIMin, p.RealFrequencyMax, p.CNNAIMin)
	sb.WriteString("- Prefer INCONCLUSIVE over a confident wrong verdict about a real person.\n\n")

	sb.WriteString("Note where signals agree or conflict, then produce your verdict JSON.")
	return sb.String()
}

func exifLine(e domain.ExifSummary) string {
	switch {
	case e.Suspicious():
		return "EXIF metadata is completely stripped, a manipulation signal"
	case e.Stripped:
		return fmt.Sprintf("No EXIF metadata, which is normal for %s files and not a signal", e.Format)
	default:
		return fmt.Sprintf("EXIF intact. camera: %s, software: %s, date: %s, gps: %t",
			orUnknown(e.Camera), orUnknown(e.Software), orUnknown(e.DateTaken), e.GPS)
	}
}

func searchLine(results []domain.SearchResult) string {
	if len(results) == 0 {
		return "No matching sources found on the web"
	}
	return fmt.Sprintf("%d web sources found matching this image", len(results))
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "unknown"
	}
	return *s
}
