package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/observability"
)

// DefaultBuffer is the number of events an observer may lag behind before it
// is dropped
const DefaultBuffer = 32

const sinkTimeout = 5 * time.Second

// Observer is the live channel of one client for one job
type Observer struct {
	events chan domain.Event
	once   sync.Once
}

func newObserver(buffer int) *Observer {
	return &Observer{events: make(chan domain.Event, buffer)}
}

// Events returns the event stream. It is closed when the observer is replaced,
// unsubscribed or dropped.
func (o *Observer) Events() <-chan domain.Event {
	return o.events
}

func (o *Observer) close() {
	o.once.Do(func() { close(o.events) })
}

// Sink receives terminal events regardless of live observers
type Sink interface {
	Deliver(ctx context.Context, event domain.Event) error
}

// Broadcaster keeps at most one live observer per job. Delivery is best effort
// and nothing is replayed to late subscribers.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[string]*Observer
	buffer    int
	sink      Sink
	logger    *slog.Logger
	metrics   observability.Recorder
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithBuffer sets the per observer buffer size
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithSink mirrors terminal events to s
func WithSink(s Sink) Option {
	return func(b *Broadcaster) { b.sink = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m observability.Recorder) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// New creates a broadcaster
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		observers: make(map[string]*Observer),
		buffer:    DefaultBuffer,
		logger:    slog.Default(),
		metrics:   observability.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new observer for the job. Any previous observer is
// closed and receives nothing further.
func (b *Broadcaster) Subscribe(jobID string) *Observer {
	obs := newObserver(b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.observers[jobID]; ok {
		prev.close()
		b.logger.Debug("Replaced job observer", slog.String("job_id", jobID))
	}
	b.observers[jobID] = obs
	return obs
}

// Unsubscribe removes obs if it is still the job's observer
func (b *Broadcaster) Unsubscribe(jobID string, obs *Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.observers[jobID]; ok && cur == obs {
		delete(b.observers, jobID)
	}
	obs.close()
}

// HasObserver reports whether the job currently has a live observer
func (b *Broadcaster) HasObserver(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.observers[jobID]
	return ok
}

// Publish delivers event to the job's observer, if any. An observer that
// cannot keep up is removed. Terminal events are also handed to the sink.
func (b *Broadcaster) Publish(ctx context.Context, jobID string, event domain.Event) {
	event.JobID = jobID
	b.deliver(jobID, event)

	if b.sink != nil && event.IsTerminal() {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		defer cancel()

		if err := b.sink.Deliver(sinkCtx, event); err != nil {
			b.metrics.IncCounter(observability.MetricSinkFailed, map[string]string{"type": string(event.Type)}, 1)
			b.logger.Warn("Failed to mirror terminal event",
				slog.String("job_id", jobID),
				slog.String("type", string(event.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (b *Broadcaster) deliver(jobID string, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obs, ok := b.observers[jobID]
	if !ok {
		return
	}

	select {
	case obs.events <- event:
	default:
		delete(b.observers, jobID)
		obs.close()
		b.metrics.IncCounter(observability.MetricObserverDropped, nil, 1)
		b.logger.Warn("Dropped slow job observer",
			slog.String("job_id", jobID),
			slog.String("event", string(event.Type)),
		)
	}
}
