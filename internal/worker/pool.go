package worker

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/cuongbtq/truthlens/internal/observability"
)

// pool bounds the number of pipelines running at once
type pool struct {
	slots   chan struct{}
	running atomic.Int64
	metrics observability.Recorder
}

func newPool(concurrency int, metrics observability.Recorder) *pool {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &pool{
		slots:   make(chan struct{}, concurrency),
		metrics: metrics,
	}
}

// acquire blocks until a slot is free or ctx is done
func (p *pool) acquire(ctx context.Context) bool {
	select {
	case p.slots <- struct{}{}:
		n := p.running.Add(1)
		p.metrics.SetGauge(observability.MetricJobsRunning, nil, float64(n))
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *pool) release() {
	n := p.running.Add(-1)
	p.metrics.SetGauge(observability.MetricJobsRunning, nil, float64(n))
	<-p.slots
}
