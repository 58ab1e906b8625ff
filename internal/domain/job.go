package domain

import "time"

// JobStatus is the lifecycle state of an analysis job
type JobStatus string

// Job status constants
const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further updates are accepted in this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// StepStatus is the state of a single pipeline step
type StepStatus string

// Step status constants
const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusDone    StepStatus = "done"
	StepStatusError   StepStatus = "error"
)

// IsTerminal reports whether the step has finished
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusDone || s == StepStatusError
}

// StepID identifies a pipeline step
type StepID string

// Pipeline steps in declaration order
const (
	StepUpload    StepID = "upload"
	StepFace      StepID = "face"
	StepML        StepID = "ml"
	StepFrequency StepID = "frequency"
	StepExif      StepID = "exif"
	StepReverse   StepID = "reverse"
	StepAgent     StepID = "agent"
)

// PipelineSteps lists every step in the order the orchestrator runs them
var PipelineSteps = []StepID{
	StepUpload,
	StepFace,
	StepML,
	StepFrequency,
	StepExif,
	StepReverse,
	StepAgent,
}

// StepState is the observable state of one step of a job
type StepState struct {
	StepID    StepID     `json:"step_id"`
	Status    StepStatus `json:"status"`
	Detail    string     `json:"detail"`
	Timestamp time.Time  `json:"timestamp"`
}

// Job is one end-to-end analysis request for a single image
type Job struct {
	ID        string         `json:"job_id"`
	Status    JobStatus      `json:"status"`
	Steps     []StepState    `json:"steps"`
	Result    *ResultPayload `json:"result"`
	Error     *string        `json:"error"`
	Filename  string         `json:"filename"`
	SizeBytes int            `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsKnownStep reports whether id is one of the pipeline steps
func IsKnownStep(id StepID) bool {
	for _, s := range PipelineSteps {
		if s == id {
			return true
		}
	}
	return false
}

// NewJob creates a pending job with no step history
func NewJob(id, filename string, size int, now time.Time) Job {
	return Job{
		ID:        id,
		Status:    JobStatusPending,
		Steps:     []StepState{},
		Filename:  filename,
		SizeBytes: size,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers never share slices with the store
func (j Job) Clone() Job {
	out := j
	out.Steps = append([]StepState(nil), j.Steps...)
	if j.Result != nil {
		r := j.Result.Clone()
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

// Step returns the state of the given step
func (j *Job) Step(id StepID) (StepState, bool) {
	for _, s := range j.Steps {
		if s.StepID == id {
			return s, true
		}
	}
	return StepState{}, false
}

// TransitionStep records a step status change. A step enters the history the
// first time it starts running, and the job moves to running with it.
func (j *Job) TransitionStep(id StepID, to StepStatus, detail string, now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}
	if !IsKnownStep(id) {
		return &TransitionError{Step: id, To: to}
	}

	for i := range j.Steps {
		s := &j.Steps[i]
		if s.StepID != id {
			continue
		}
		if !isAllowedStepTransition(s.Status, to) {
			return &TransitionError{Step: id, From: s.Status, To: to}
		}
		s.Status = to
		s.Detail = detail
		s.Timestamp = now
		j.UpdatedAt = now
		return nil
	}

	if !isAllowedStepTransition(StepStatusPending, to) {
		return &TransitionError{Step: id, From: StepStatusPending, To: to}
	}
	j.Steps = append(j.Steps, StepState{StepID: id, Status: to, Detail: detail, Timestamp: now})
	j.Status = JobStatusRunning
	j.UpdatedAt = now
	return nil
}

// Complete sets the terminal result of the job
func (j *Job) Complete(result ResultPayload, now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}
	r := result.Clone()
	j.Result = &r
	j.Status = JobStatusDone
	j.UpdatedAt = now
	return nil
}

// Fail sets the terminal failure of the job
func (j *Job) Fail(message string, now time.Time) error {
	if j.Status.IsTerminal() {
		return ErrJobTerminal
	}
	j.Error = &message
	j.Status = JobStatusError
	j.UpdatedAt = now
	return nil
}

func isAllowedStepTransition(from, to StepStatus) bool {
	switch from {
	case StepStatusPending:
		return to == StepStatusRunning
	case StepStatusRunning:
		return to == StepStatusDone || to == StepStatusError
	default:
		return false
	}
}
