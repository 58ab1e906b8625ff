package decision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/fusion"
)

// Reasoner is the external reasoning service
type Reasoner interface {
	Reason(ctx context.Context, system, brief string) (string, error)
}

// ReasoningEngine proposes verdicts from the reasoning service and applies the
// policy guard rails on top.
type ReasoningEngine struct {
	reasoner Reasoner
	weights  fusion.Weights
	policy   Policy
	parser   *verdictParser
	logger   *slog.Logger
}

// NewReasoningEngine creates a reasoning engine
func NewReasoningEngine(reasoner Reasoner, weights fusion.Weights, policy Policy, logger *slog.Logger) (*ReasoningEngine, error) {
	parser, err := newVerdictParser()
	if err != nil {
		return nil, fmt.Errorf("failed to build verdict parser: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ReasoningEngine{
		reasoner: reasoner,
		weights:  weights,
		policy:   policy,
		parser:   parser,
		logger:   logger,
	}, nil
}

// Propose implements Proposer
func (e *ReasoningEngine) Propose(ctx context.Context, bundle domain.SignalBundle) (domain.VerdictBundle, error) {
	if e.reasoner == nil {
		return domain.VerdictBundle{}, domain.ErrReasonerUnavailable
	}

	brief := BuildBrief(bundle, e.weights, e.policy)
	content, err := e.reasoner.Reason(ctx, SystemPrompt, brief)
	if err != nil {
		return domain.VerdictBundle{}, fmt.Errorf("reasoning call failed: %w", err)
	}

	proposed, err := e.parser.Parse(content)
	if err != nil {
		return domain.VerdictBundle{}, err
	}

	final := e.policy.Apply(bundle, proposed)
	if final.Verdict != proposed.Verdict {
		e.logger.Info("Policy overrode reasoning verdict",
			slog.String("filename", bundle.Filename),
			slog.String("proposed", string(proposed.Verdict)),
			slog.String("final", string(final.Verdict)),
		)
	}

	return final, nil
}
