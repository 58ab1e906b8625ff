package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when updating a job that already has a result or error
	ErrJobTerminal = errors.New("job already finished")

	// ErrJobActive is returned when removing a job that has not finished yet
	ErrJobActive = errors.New("job is still active")

	// ErrInvalidTransition is returned when a step status change is not allowed
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrJobCanceled is the failure recorded for jobs canceled before completion
	ErrJobCanceled = errors.New("job canceled")

	// ErrJobTimeout is the failure recorded for jobs that exceeded their deadline
	ErrJobTimeout = errors.New("job timed out")

	// ErrMalformedVerdict is returned when the reasoning response cannot be decoded
	ErrMalformedVerdict = errors.New("malformed verdict response")

	// ErrReasonerUnavailable is returned when no reasoning collaborator is configured
	ErrReasonerUnavailable = errors.New("reasoning collaborator unavailable")
)

// TransitionError reports a step state change the job does not allow
type TransitionError struct {
	Step StepID
	From StepStatus
	To   StepStatus
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("unknown step %q", e.Step)
	}
	return fmt.Sprintf("invalid transition for step %q: %s -> %s", e.Step, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CollaboratorError wraps an expected failure of a signal collaborator.
// These are absorbed by the orchestrator and mapped to neutral values.
type CollaboratorError struct {
	Step StepID
	Name string
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator %s failed: %v", e.Step, e.Name, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError creates a new collaborator error
func NewCollaboratorError(step StepID, name string, err error) error {
	return &CollaboratorError{Step: step, Name: name, Err: err}
}
