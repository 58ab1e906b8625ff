package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// keepAliveInterval is how often an idle stream gets a comment line so
// proxies keep the connection open
const keepAliveInterval = 15 * time.Second

// StreamEvents handles GET /api/v1/jobs/:job_id/events
// Streams progress events over SSE, starting with a snapshot of the job
func (h *JobHandler) StreamEvents(c *gin.Context) {
	if _, ok := h.lookupJob(c); !ok {
		return
	}
	jobID := c.Param("job_id")

	// Step 1: subscribe before reading the snapshot so no event falls in between
	if h.events.HasObserver(jobID) {
		h.logger.Info("Replacing existing event stream", slog.String("job_id", jobID))
	}
	obs := h.events.Subscribe(jobID)
	defer h.events.Unsubscribe(jobID, obs)

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrJobNotFound.Error()})
		return
	}

	h.logger.Info("Event stream opened", slog.String("job_id", jobID))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Step 2: snapshot, and the terminal event straight away for finished jobs
	c.SSEvent(string(domain.EventSnapshot), domain.SnapshotEvent(job))
	if terminal, ok := terminalEvent(job); ok {
		c.SSEvent(string(terminal.Type), terminal)
		c.Writer.Flush()
		return
	}
	c.Writer.Flush()

	// Step 3: relay live events until a terminal event or disconnect
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	finished := false
	disconnected := c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-obs.Events():
			if !ok {
				// replaced by a newer subscriber
				finished = true
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			if ev.IsTerminal() {
				finished = true
				return false
			}
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-ctx.Done():
			return false
		}
	})
	if !finished {
		disconnected = true
	}

	h.logger.Info("Event stream closed",
		slog.String("job_id", jobID),
		slog.Bool("client_gone", disconnected),
	)

	if disconnected && h.cancelOnDisconnect && h.runner.Cancel(jobID) {
		h.logger.Info("Job canceled after client disconnect", slog.String("job_id", jobID))
	}
}

// terminalEvent rebuilds the final event of a finished job
func terminalEvent(job domain.Job) (domain.Event, bool) {
	switch {
	case job.Result != nil:
		return domain.ResultEvent(job.ID, *job.Result), true
	case job.Error != nil:
		return domain.ErrorEvent(job.ID, *job.Error), true
	default:
		return domain.Event{}, false
	}
}
