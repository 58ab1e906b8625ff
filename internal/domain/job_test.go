package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_TransitionStep(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name    string
		setup   func(j *Job)
		step    StepID
		to      StepStatus
		wantErr error
	}{
		{
			name: "start a new step",
			step: StepUpload,
			to:   StepStatusRunning,
		},
		{
			name: "finish a running step",
			setup: func(j *Job) {
				require.NoError(t, j.TransitionStep(StepUpload, StepStatusRunning, "", now))
			},
			step: StepUpload,
			to:   StepStatusDone,
		},
		{
			name:    "finish a step that never started",
			step:    StepFace,
			to:      StepStatusDone,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "restart a finished step",
			setup: func(j *Job) {
				require.NoError(t, j.TransitionStep(StepUpload, StepStatusRunning, "", now))
				require.NoError(t, j.TransitionStep(StepUpload, StepStatusDone, "", now))
			},
			step:    StepUpload,
			to:      StepStatusRunning,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "unknown step",
			step:    StepID("upscale"),
			to:      StepStatusRunning,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "terminal job rejects updates",
			setup: func(j *Job) {
				require.NoError(t, j.Fail("boom", now))
			},
			step:    StepUpload,
			to:      StepStatusRunning,
			wantErr: ErrJobTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("job-1", "a.jpg", 10, now)
			if tt.setup != nil {
				tt.setup(&job)
			}

			err := job.TransitionStep(tt.step, tt.to, "detail", now.Add(time.Second))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			state, ok := job.Step(tt.step)
			require.True(t, ok)
			assert.Equal(t, tt.to, state.Status)
			assert.Equal(t, "detail", state.Detail)
			assert.Equal(t, JobStatusRunning, job.Status)
		})
	}
}

func TestJob_StepsKeepInsertionOrder(t *testing.T) {
	now := time.Now()
	job := NewJob("job-1", "a.jpg", 10, now)
	assert.Empty(t, job.Steps)
	assert.Equal(t, JobStatusPending, job.Status)

	for _, s := range PipelineSteps {
		require.NoError(t, job.TransitionStep(s, StepStatusRunning, "", now))
		require.NoError(t, job.TransitionStep(s, StepStatusDone, "", now))
	}

	got := make([]StepID, len(job.Steps))
	for i, s := range job.Steps {
		got[i] = s.StepID
	}
	assert.Equal(t, PipelineSteps, got)
}

func TestJob_ResultAndErrorAreExclusive(t *testing.T) {
	now := time.Now()

	job := NewJob("job-1", "a.jpg", 10, now)
	require.NoError(t, job.Complete(ResultPayload{Verdict: VerdictLikelyReal}, now))
	assert.Equal(t, JobStatusDone, job.Status)
	assert.ErrorIs(t, job.Fail("late", now), ErrJobTerminal)
	assert.ErrorIs(t, job.Complete(ResultPayload{}, now), ErrJobTerminal)
	assert.Nil(t, job.Error)

	job = NewJob("job-2", "a.jpg", 10, now)
	require.NoError(t, job.Fail("boom", now))
	assert.Equal(t, JobStatusError, job.Status)
	assert.ErrorIs(t, job.Complete(ResultPayload{}, now), ErrJobTerminal)
	assert.Nil(t, job.Result)
}

func TestJob_CloneIsDeep(t *testing.T) {
	now := time.Now()
	job := NewJob("job-1", "a.jpg", 10, now)
	require.NoError(t, job.TransitionStep(StepUpload, StepStatusRunning, "", now))
	require.NoError(t, job.Complete(ResultPayload{Reasoning: []string{"a"}}, now))

	clone := job.Clone()
	clone.Steps[0].Detail = "changed"
	clone.Result.Reasoning[0] = "changed"

	assert.Empty(t, job.Steps[0].Detail)
	assert.Equal(t, "a", job.Result.Reasoning[0])
}

func TestNewResultPayload_RoundsScores(t *testing.T) {
	b := NewSignalBundle("a.jpg")
	b.CNN = 80.4
	b.Semantic = 85.5
	b.Frequency = 120
	b.Ensemble = 78.75

	p := NewResultPayload(b, VerdictBundle{Verdict: VerdictLikelyAI, Confidence: 58}, "")

	assert.Equal(t, 80, p.CNNScore)
	assert.Equal(t, 86, p.SemanticScore)
	assert.Equal(t, 100, p.FrequencyScore)
	assert.Equal(t, 79, p.EnsembleScore)
	assert.NotNil(t, p.ReverseSearch)
}
