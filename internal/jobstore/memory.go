package jobstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/observability"
)

const (
	// DefaultPageSize is used when a filter has no page size
	DefaultPageSize = 20
	// MaxPageSize bounds a single list call
	MaxPageSize = 100
)

type entry struct {
	mu  sync.Mutex
	job domain.Job
}

// MemoryStore keeps jobs in process memory. The registry lock is only held to
// find entries; each job has its own lock so updates on different jobs do not
// contend.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*entry
	retention time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
	metrics   observability.Recorder
}

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// WithIDGenerator overrides job id generation
func WithIDGenerator(fn func() string) Option {
	return func(s *MemoryStore) { s.newID = fn }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *MemoryStore) { s.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m observability.Recorder) Option {
	return func(s *MemoryStore) { s.metrics = m }
}

// NewMemoryStore creates an empty store. Finished jobs are kept for retention.
func NewMemoryStore(retention time.Duration, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:      make(map[string]*entry),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
		logger:    slog.Default(),
		metrics:   observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, filename string, size int) (domain.Job, error) {
	job := domain.NewJob(s.newID(), filename, size, s.now())

	s.mu.Lock()
	s.jobs[job.ID] = &entry{job: job}
	s.mu.Unlock()

	return job.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Job, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*domain.Job) error) (domain.Job, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.job.Clone()
	if err := fn(&working); err != nil {
		return e.job.Clone(), err
	}
	working.ID = e.job.ID
	e.job = working

	return e.job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter JobFilter) ([]domain.Job, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]domain.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		job := e.job.Clone()
		e.mu.Unlock()

		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if !filter.Cursor.Before(job) {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	// one extra so the caller can tell whether another page exists
	if len(jobs) > pageSize+1 {
		jobs = jobs[:pageSize+1]
	}
	return jobs, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}

	e.mu.Lock()
	terminal := e.job.Status.IsTerminal()
	e.mu.Unlock()
	if !terminal {
		return domain.ErrJobActive
	}

	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Evict(now time.Time) int {
	cutoff := now.Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.jobs {
		e.mu.Lock()
		expired := e.job.Status.IsTerminal() && e.job.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			evicted++
		}
	}

	if evicted > 0 {
		s.metrics.IncCounter(observability.MetricJobsEvicted, nil, float64(evicted))
	}
	return evicted
}

// Len returns the number of stored jobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Run evicts expired jobs every interval until ctx is done
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(s.now()); n > 0 {
				s.logger.Info("Evicted finished jobs",
					slog.Int("count", n),
					slog.Int("remaining", s.Len()),
				)
			}
		}
	}
}

func (s *MemoryStore) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}
