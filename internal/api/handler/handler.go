package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/truthlens/internal/broadcast"
	"github.com/cuongbtq/truthlens/internal/jobstore"
)

// DefaultFilename is used when an upload carries no filename
const DefaultFilename = "upload"

// Runner starts and cancels pipeline runs
type Runner interface {
	Submit(ctx context.Context, jobID string, image []byte, filename string) error
	Cancel(jobID string) bool
}

// EventSource hands out the live progress channel of a job
type EventSource interface {
	Subscribe(jobID string) *broadcast.Observer
	Unsubscribe(jobID string, obs *broadcast.Observer)
	HasObserver(jobID string) bool
}

// MetricsRenderer serves metrics in the Prometheus exposition format
type MetricsRenderer interface {
	Handler() http.Handler
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger             *slog.Logger
	Store              jobstore.Store
	Runner             Runner
	Events             EventSource
	Metrics            MetricsRenderer
	ServiceName        string
	MaxUploadBytes     int64
	CancelOnDisconnect bool
	AllowedOrigins     []string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger             *slog.Logger
	store              jobstore.Store
	runner             Runner
	events             EventSource
	maxUploadBytes     int64
	cancelOnDisconnect bool
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:             deps.Logger,
		store:              deps.Store,
		runner:             deps.Runner,
		events:             deps.Events,
		maxUploadBytes:     deps.MaxUploadBytes,
		cancelOnDisconnect: deps.CancelOnDisconnect,
	}
}
