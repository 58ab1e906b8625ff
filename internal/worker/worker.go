package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/observability"
)

// ErrStopped is returned when submitting to a stopped worker
var ErrStopped = errors.New("worker stopped")

// Pipeline drives one job to a terminal state
type Pipeline interface {
	Run(ctx context.Context, jobID string, image []byte, filename string) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Pipeline    Pipeline
	Metrics     observability.Recorder
	Concurrency int
	JobTimeout  time.Duration
}

// Worker runs submitted jobs in detached goroutines. At most Concurrency
// pipelines run at once; the rest wait for a slot and stay pending.
type Worker struct {
	logger     *slog.Logger
	pipeline   Pipeline
	metrics    observability.Recorder
	jobTimeout time.Duration
	pool       *pool

	baseCtx context.Context
	stop    context.CancelCauseFunc

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.Nop()
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 10 * time.Minute
	}

	baseCtx, stop := context.WithCancelCause(context.Background())
	return &Worker{
		logger:     logger,
		pipeline:   cfg.Pipeline,
		metrics:    metrics,
		jobTimeout: jobTimeout,
		pool:       newPool(cfg.Concurrency, metrics),
		baseCtx:    baseCtx,
		stop:       stop,
		cancels:    make(map[string]context.CancelCauseFunc),
	}
}

// Submit starts the job and returns immediately. The job is detached from
// ctx; only its trace is carried over.
func (w *Worker) Submit(ctx context.Context, jobID string, image []byte, filename string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrStopped
	}

	jobCtx := trace.ContextWithSpanContext(w.baseCtx, trace.SpanContextFromContext(ctx))
	jobCtx, cancel := context.WithCancelCause(jobCtx)
	w.cancels[jobID] = cancel
	w.wg.Add(1)

	w.metrics.IncCounter(observability.MetricJobsSubmitted, nil, 1)
	w.logger.Info("Job submitted",
		slog.String("job_id", jobID),
		slog.String("filename", filename),
		slog.Int("size_bytes", len(image)),
	)

	go func() {
		defer w.wg.Done()
		defer w.forget(jobID)
		defer cancel(nil)

		w.processJob(jobCtx, jobID, image, filename)
	}()
	return nil
}

// Cancel cancels a submitted job that has not finished. It reports whether
// the job was found.
func (w *Worker) Cancel(jobID string) bool {
	w.mu.Lock()
	cancel, ok := w.cancels[jobID]
	w.mu.Unlock()

	if !ok {
		return false
	}

	w.logger.Info("Canceling job", slog.String("job_id", jobID))
	cancel(domain.ErrJobCanceled)
	return true
}

// Active reports whether the job is still owned by the worker
func (w *Worker) Active(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.cancels[jobID]
	return ok
}

// Stop cancels every job and waits for their goroutines to finish or for ctx
// to expire
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	inFlight := len(w.cancels)
	w.mu.Unlock()

	w.logger.Info("Stopping worker...", slog.Int("in_flight", inFlight))
	w.stop(domain.ErrJobCanceled)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Worker stop timed out", slog.String("error", ctx.Err().Error()))
		return ctx.Err()
	}
}

func (w *Worker) forget(jobID string) {
	w.mu.Lock()
	delete(w.cancels, jobID)
	w.mu.Unlock()
}
