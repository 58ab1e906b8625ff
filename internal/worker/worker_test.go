package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/observability"
)

// blockingPipeline runs until released or its context ends, recording why
type blockingPipeline struct {
	release chan struct{}
	started chan string

	running    atomic.Int32
	maxRunning atomic.Int32

	mu     sync.Mutex
	causes map[string]error
}

func newBlockingPipeline() *blockingPipeline {
	return &blockingPipeline{
		release: make(chan struct{}),
		started: make(chan string, 16),
		causes:  make(map[string]error),
	}
}

func (p *blockingPipeline) Run(ctx context.Context, jobID string, _ []byte, _ string) error {
	if ctx.Err() != nil {
		p.record(jobID, context.Cause(ctx))
		return context.Cause(ctx)
	}

	n := p.running.Add(1)
	defer p.running.Add(-1)
	for {
		m := p.maxRunning.Load()
		if n <= m || p.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	p.started <- jobID

	select {
	case <-p.release:
		p.record(jobID, nil)
		return nil
	case <-ctx.Done():
		p.record(jobID, context.Cause(ctx))
		return context.Cause(ctx)
	}
}

func (p *blockingPipeline) record(jobID string, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.causes[jobID] = cause
}

func (p *blockingPipeline) cause(jobID string) (error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.causes[jobID]
	return c, ok
}

func waitStarted(t *testing.T, p *blockingPipeline) string {
	t.Helper()
	select {
	case id := <-p.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not start")
		return ""
	}
}

func TestWorker_SubmitRunsDetached(t *testing.T) {
	p := newBlockingPipeline()
	w := NewWorker(&Config{Pipeline: p, Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Submit(ctx, "job-1", []byte("img"), "a.png"))
	cancel()

	assert.Equal(t, "job-1", waitStarted(t, p))
	assert.True(t, w.Active("job-1"))

	close(p.release)
	assert.Eventually(t, func() bool { return !w.Active("job-1") }, 2*time.Second, 10*time.Millisecond)

	cause, ok := p.cause("job-1")
	require.True(t, ok)
	assert.NoError(t, cause, "request cancellation must not reach the job")
}

func TestWorker_ConcurrencyLimit(t *testing.T) {
	p := newBlockingPipeline()
	metrics := observability.NewRegistry()
	w := NewWorker(&Config{Pipeline: p, Concurrency: 1, Metrics: metrics})

	require.NoError(t, w.Submit(context.Background(), "job-1", nil, "a.png"))
	require.NoError(t, w.Submit(context.Background(), "job-2", nil, "b.png"))

	waitStarted(t, p)
	select {
	case id := <-p.started:
		t.Fatalf("%s started while the only slot was taken", id)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1.0, metrics.Value(observability.MetricJobsRunning, nil))

	close(p.release)
	waitStarted(t, p)
	require.NoError(t, w.Stop(context.Background()))

	assert.Equal(t, int32(1), p.maxRunning.Load())
	assert.Equal(t, 2.0, metrics.Value(observability.MetricJobsSubmitted, nil))
}

func TestWorker_Cancel(t *testing.T) {
	p := newBlockingPipeline()
	w := NewWorker(&Config{Pipeline: p, Concurrency: 1})

	require.NoError(t, w.Submit(context.Background(), "job-1", nil, "a.png"))
	waitStarted(t, p)

	assert.True(t, w.Cancel("job-1"))
	assert.False(t, w.Cancel("unknown"))

	assert.Eventually(t, func() bool { return !w.Active("job-1") }, 2*time.Second, 10*time.Millisecond)
	cause, _ := p.cause("job-1")
	assert.ErrorIs(t, cause, domain.ErrJobCanceled)
}

func TestWorker_CancelWhileWaiting(t *testing.T) {
	p := newBlockingPipeline()
	w := NewWorker(&Config{Pipeline: p, Concurrency: 1})

	require.NoError(t, w.Submit(context.Background(), "job-1", nil, "a.png"))
	waitStarted(t, p)
	require.NoError(t, w.Submit(context.Background(), "job-2", nil, "b.png"))

	assert.True(t, w.Cancel("job-2"))
	assert.Eventually(t, func() bool { return !w.Active("job-2") }, 2*time.Second, 10*time.Millisecond)

	cause, ok := p.cause("job-2")
	require.True(t, ok, "canceled job must still reach the pipeline")
	assert.ErrorIs(t, cause, domain.ErrJobCanceled)

	close(p.release)
}

func TestWorker_JobTimeout(t *testing.T) {
	p := newBlockingPipeline()
	w := NewWorker(&Config{Pipeline: p, Concurrency: 1, JobTimeout: 20 * time.Millisecond})

	require.NoError(t, w.Submit(context.Background(), "job-1", nil, "a.png"))
	waitStarted(t, p)

	assert.Eventually(t, func() bool { return !w.Active("job-1") }, 2*time.Second, 10*time.Millisecond)
	cause, _ := p.cause("job-1")
	assert.ErrorIs(t, cause, domain.ErrJobTimeout)
}

func TestWorker_Stop(t *testing.T) {
	p := newBlockingPipeline()
	w := NewWorker(&Config{Pipeline: p, Concurrency: 2})

	require.NoError(t, w.Submit(context.Background(), "job-1", nil, "a.png"))
	waitStarted(t, p)

	require.NoError(t, w.Stop(context.Background()))
	cause, _ := p.cause("job-1")
	assert.ErrorIs(t, cause, domain.ErrJobCanceled)

	assert.ErrorIs(t, w.Submit(context.Background(), "job-2", nil, "b.png"), ErrStopped)
}
