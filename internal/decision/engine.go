package decision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/observability"
)

// Engine turns a signal bundle into a verdict. Implementations never fail.
type Engine interface {
	Decide(ctx context.Context, bundle domain.SignalBundle) domain.VerdictBundle
}

// Proposer is an engine that may be unable to reach a verdict
type Proposer interface {
	Propose(ctx context.Context, bundle domain.SignalBundle) (domain.VerdictBundle, error)
}

// Decider asks the primary proposer first and falls back to the deterministic
// engine whenever the proposal cannot be confirmed.
type Decider struct {
	primary  Proposer
	fallback Engine
	logger   *slog.Logger
	metrics  observability.Recorder
}

// NewDecider creates a decider. A nil primary always uses the fallback.
func NewDecider(primary Proposer, fallback Engine, logger *slog.Logger, metrics observability.Recorder) *Decider {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.Nop()
	}
	return &Decider{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}
}

// Decide implements Engine
func (d *Decider) Decide(ctx context.Context, bundle domain.SignalBundle) domain.VerdictBundle {
	if d.primary != nil {
		v, err := d.primary.Propose(ctx, bundle)
		if err == nil {
			d.record(domain.SourcePrimary)
			return v
		}

		level := slog.LevelWarn
		if errors.Is(err, domain.ErrReasonerUnavailable) {
			level = slog.LevelDebug
		}
		d.logger.Log(ctx, level, "Primary decision failed, using fallback",
			slog.String("filename", bundle.Filename),
			slog.String("error", err.Error()),
		)
	}

	v := d.fallback.Decide(ctx, bundle)
	d.record(domain.SourceFallback)
	return v
}

func (d *Decider) record(source domain.DecisionSource) {
	d.metrics.IncCounter(observability.MetricDecisions, map[string]string{"source": string(source)}, 1)
}
