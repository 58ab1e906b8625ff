package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// processJob waits for a slot and runs the pipeline under the job timeout
func (w *Worker) processJob(ctx context.Context, jobID string, image []byte, filename string) {
	// Step 1: Wait for a free slot. A job canceled while waiting still goes
	// through the pipeline, which records the cancellation on the job.
	if w.pool.acquire(ctx) {
		defer w.pool.release()
	} else {
		w.logger.Info("Job canceled before start", slog.String("job_id", jobID))
	}

	// Step 2: Bound the whole run
	jobCtx, cancel := context.WithTimeoutCause(ctx, w.jobTimeout, domain.ErrJobTimeout)
	defer cancel()

	// Step 3: Run the pipeline. The outcome is already in the job store.
	start := time.Now()
	if err := w.pipeline.Run(jobCtx, jobID, image, filename); err != nil {
		w.logger.Error("Job execution failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", jobID),
		slog.Duration("elapsed", time.Since(start)),
	)
}
