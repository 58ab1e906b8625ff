package domain

// EventType discriminates progress events
type EventType string

const (
	EventStepUpdate EventType = "step_update"
	EventResult     EventType = "result"
	EventError      EventType = "error"
	EventSnapshot   EventType = "snapshot"
)

// Event is a progress record pushed to the live observer of a job
type Event struct {
	Type    EventType      `json:"type"`
	JobID   string         `json:"job_id"`
	StepID  StepID         `json:"step_id,omitempty"`
	Status  StepStatus     `json:"status,omitempty"`
	Detail  string         `json:"detail,omitempty"`
	Data    *ResultPayload `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Job     *Job           `json:"job,omitempty"`
}

// IsTerminal reports whether no more events follow for the job
func (e Event) IsTerminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

// StepEvent builds a step_update event
func StepEvent(jobID string, step StepID, status StepStatus, detail string) Event {
	return Event{Type: EventStepUpdate, JobID: jobID, StepID: step, Status: status, Detail: detail}
}

// ResultEvent builds a result event
func ResultEvent(jobID string, result ResultPayload) Event {
	r := result.Clone()
	return Event{Type: EventResult, JobID: jobID, Data: &r}
}

// ErrorEvent builds an error event
func ErrorEvent(jobID, message string) Event {
	return Event{Type: EventError, JobID: jobID, Message: message}
}

// SnapshotEvent builds a snapshot event carrying the current job state
func SnapshotEvent(job Job) Event {
	j := job.Clone()
	return Event{Type: EventSnapshot, JobID: job.ID, Job: &j}
}
