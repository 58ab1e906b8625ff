package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cuongbtq/truthlens/internal/decision"
	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/fusion"
	"github.com/cuongbtq/truthlens/internal/jobstore"
	"github.com/cuongbtq/truthlens/internal/observability"
)

// DefaultCollaboratorTimeout leaves room for lazy model warm-up on first use
const DefaultCollaboratorTimeout = 2 * time.Minute

// Config holds orchestrator configuration
type Config struct {
	CollaboratorTimeout time.Duration
}

// Orchestrator drives one job through the fixed step sequence, recording
// every transition in the store and pushing it to the job's observer.
type Orchestrator struct {
	store   jobstore.Store
	events  Publisher
	fusion  *fusion.Engine
	decider decision.Engine
	collab  Collaborators
	cfg     Config
	logger  *slog.Logger
	metrics observability.Recorder
	now     func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m observability.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(
	store jobstore.Store,
	events Publisher,
	fuse *fusion.Engine,
	decider decision.Engine,
	collab Collaborators,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil || events == nil || fuse == nil || decider == nil {
		return nil, errors.New("store, publisher, fusion and decision engines are required")
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = DefaultCollaboratorTimeout
	}

	o := &Orchestrator{
		store:   store,
		events:  events,
		fusion:  fuse,
		decider: decider,
		collab:  collab,
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: observability.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run is the state of a single job execution. It is owned by one goroutine.
type run struct {
	jobID    string
	original []byte
	// analysis is the face crop when one was found, else the original
	analysis []byte
	bundle   domain.SignalBundle
	heatmap  string
	verdict  domain.VerdictBundle
	// current is the step in progress, if any
	current domain.StepID
}

type step struct {
	id domain.StepID
	fn func(context.Context, *run) (string, error)
}

func (o *Orchestrator) steps() []step {
	return []step{
		{domain.StepUpload, o.upload},
		{domain.StepFace, o.face},
		{domain.StepML, o.ml},
		{domain.StepFrequency, o.frequency},
		{domain.StepExif, o.exif},
		{domain.StepReverse, o.reverse},
		{domain.StepAgent, o.agent},
	}
}

// Run drives the job to a terminal state. Collaborator failures degrade to
// neutral values; anything else fails the job and is returned.
func (o *Orchestrator) Run(ctx context.Context, jobID string, image []byte, filename string) (err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("job_id", jobID),
		attribute.Int("size_bytes", len(image)),
	)
	defer span.End()

	r := &run{
		jobID:    jobID,
		original: image,
		analysis: image,
		bundle:   domain.NewSignalBundle(filename),
	}

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("Pipeline panicked",
				slog.String("job_id", jobID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("internal error: %v", rec)
			o.fail(ctx, r, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	o.logger.Info("Pipeline started",
		slog.String("job_id", jobID),
		slog.String("filename", filename),
		slog.Int("size_bytes", len(image)),
	)

	for _, s := range o.steps() {
		if err := o.runStep(ctx, r, s); err != nil {
			o.fail(ctx, r, err)
			return err
		}
	}

	return o.complete(ctx, r)
}

func (o *Orchestrator) runStep(ctx context.Context, r *run, s step) error {
	if err := interrupted(ctx); err != nil {
		return err
	}
	if err := o.transition(ctx, r.jobID, s.id, domain.StepStatusRunning, ""); err != nil {
		return err
	}
	r.current = s.id

	stepCtx, span := observability.StartSpan(ctx, "pipeline.step."+string(s.id))
	defer span.End()

	detail, err := s.fn(stepCtx, r)
	if err == nil {
		err = interrupted(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := o.transition(ctx, r.jobID, s.id, domain.StepStatusDone, detail); err != nil {
		return err
	}
	r.current = ""
	return nil
}

// transition records a step change and then publishes it, so an observer
// never sees a state the store does not have yet
func (o *Orchestrator) transition(ctx context.Context, jobID string, id domain.StepID, status domain.StepStatus, detail string) error {
	_, err := o.store.Update(ctx, jobID, func(j *domain.Job) error {
		return j.TransitionStep(id, status, detail, o.now())
	})
	if err != nil {
		return fmt.Errorf("record step %s %s: %w", id, status, err)
	}
	o.events.Publish(ctx, jobID, domain.StepEvent(jobID, id, status, detail))
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, r *run) error {
	result := domain.NewResultPayload(r.bundle, r.verdict, r.heatmap)

	_, err := o.store.Update(ctx, r.jobID, func(j *domain.Job) error {
		return j.Complete(result, o.now())
	})
	if err != nil {
		err = fmt.Errorf("record result: %w", err)
		o.fail(ctx, r, err)
		return err
	}

	o.events.Publish(ctx, r.jobID, domain.ResultEvent(r.jobID, result))
	o.metrics.IncCounter(observability.MetricJobsCompleted, map[string]string{"verdict": string(result.Verdict)}, 1)
	o.logger.Info("Pipeline completed",
		slog.String("job_id", r.jobID),
		slog.String("verdict", string(result.Verdict)),
		slog.Int("confidence", result.Confidence),
		slog.String("decision_source", string(result.Source)),
	)
	return nil
}

// fail closes the step in progress, marks the job failed and publishes the
// error event. It runs on a context detached from cancellation so a canceled
// job still reaches a terminal state.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()

	if r.current != "" {
		if err := o.transition(ctx, r.jobID, r.current, domain.StepStatusError, msg); err != nil {
			o.logger.Warn("Failed to close step",
				slog.String("job_id", r.jobID),
				slog.String("step_id", string(r.current)),
				slog.String("error", err.Error()),
			)
		}
		r.current = ""
	}

	_, err := o.store.Update(ctx, r.jobID, func(j *domain.Job) error {
		return j.Fail(msg, o.now())
	})
	if errors.Is(err, domain.ErrJobTerminal) {
		return
	}
	if err != nil {
		o.logger.Error("Failed to record job failure",
			slog.String("job_id", r.jobID),
			slog.String("error", err.Error()),
		)
	}

	o.events.Publish(ctx, r.jobID, domain.ErrorEvent(r.jobID, msg))
	o.metrics.IncCounter(observability.MetricJobsFailed, nil, 1)
	o.logger.Error("Pipeline failed",
		slog.String("job_id", r.jobID),
		slog.String("error", msg),
	)
}

type outcome[T any] struct {
	value T
	err   error
}

// call invokes a collaborator with its own timeout. Errors and panics are
// returned as collaborator errors for the step to degrade on. A collaborator
// still running when the timeout or the job context fires is abandoned and
// its late result discarded.
func call[T any](ctx context.Context, o *Orchestrator, r *run, stepID domain.StepID, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CollaboratorTimeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "collaborator."+name)
	defer span.End()

	start := time.Now()
	done := make(chan outcome[T], 1)
	go func() {
		var out outcome[T]
		defer func() {
			if rec := recover(); rec != nil {
				out.err = fmt.Errorf("panic: %v", rec)
			}
			done <- out
		}()
		out.value, out.err = fn(ctx)
	}()

	var out outcome[T]
	select {
	case out = <-done:
	case <-ctx.Done():
		select {
		case out = <-done:
		default:
			out.err = ctx.Err()
		}
	}
	if out.err == nil {
		return out.value, nil
	}

	err := domain.NewCollaboratorError(stepID, name, out.err)
	span.RecordError(err)
	o.metrics.IncCounter(observability.MetricCollaboratorFailed, map[string]string{"collaborator": name}, 1)
	o.logger.Warn("Collaborator failed, using neutral value",
		slog.String("job_id", r.jobID),
		slog.String("step_id", string(stepID)),
		slog.String("collaborator", name),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		slog.String("error", err.Error()),
	)
	var zero T
	return zero, err
}

// interrupted maps a done context to the failure recorded on the job
func interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, domain.ErrJobCanceled), errors.Is(cause, domain.ErrJobTimeout):
		return cause
	case errors.Is(cause, context.DeadlineExceeded):
		return domain.ErrJobTimeout
	default:
		return domain.ErrJobCanceled
	}
}
