package jobstore

import (
	"context"
	"time"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// Store is the job table shared by the API and the orchestrators. The memory
// implementation is the only one today; a shared store plugs in here.
type Store interface {
	Create(ctx context.Context, filename string, size int) (domain.Job, error)
	Get(ctx context.Context, id string) (domain.Job, error)
	// Update applies fn atomically to one job. Nothing is stored when fn fails.
	Update(ctx context.Context, id string, fn func(*domain.Job) error) (domain.Job, error)
	List(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	// Delete removes a finished job
	Delete(ctx context.Context, id string) error
	// Evict removes finished jobs older than the retention period
	Evict(now time.Time) int
}

// JobFilter selects a page of jobs ordered by (created_at, id) descending
type JobFilter struct {
	Status   domain.JobStatus
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the position after which the next page starts
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Before reports whether job sorts after the cursor in descending order
func (c *JobCursor) Before(job domain.Job) bool {
	if c == nil {
		return true
	}
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.ID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}
