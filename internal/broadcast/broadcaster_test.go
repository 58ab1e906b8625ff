package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/observability"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drain(obs *Observer) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-obs.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcaster_PublishWithoutObserverIsNoop(t *testing.T) {
	b := New(WithLogger(quietLogger()))
	b.Publish(context.Background(), "job-1", domain.StepEvent("", domain.StepUpload, domain.StepStatusRunning, ""))
	assert.False(t, b.HasObserver("job-1"))
}

func TestBroadcaster_DeliversInOrder(t *testing.T) {
	b := New(WithLogger(quietLogger()))
	obs := b.Subscribe("job-1")
	ctx := context.Background()

	b.Publish(ctx, "job-1", domain.StepEvent("", domain.StepUpload, domain.StepStatusRunning, ""))
	b.Publish(ctx, "job-1", domain.StepEvent("", domain.StepUpload, domain.StepStatusDone, "Received 1 KB"))
	b.Publish(ctx, "job-2", domain.ErrorEvent("", "other job"))

	events := drain(obs)
	require.Len(t, events, 2)
	assert.Equal(t, domain.StepStatusRunning, events[0].Status)
	assert.Equal(t, domain.StepStatusDone, events[1].Status)
	assert.Equal(t, "job-1", events[1].JobID)
}

func TestBroadcaster_ObserverReplacement(t *testing.T) {
	b := New(WithLogger(quietLogger()))
	ctx := context.Background()

	first := b.Subscribe("job-1")
	second := b.Subscribe("job-1")

	b.Publish(ctx, "job-1", domain.StepEvent("", domain.StepFace, domain.StepStatusRunning, ""))

	_, open := <-first.Events()
	assert.False(t, open, "first observer must be closed")

	events := drain(second)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StepFace, events[0].StepID)
}

func TestBroadcaster_UnsubscribeOnlyRemovesOwnObserver(t *testing.T) {
	b := New(WithLogger(quietLogger()))

	first := b.Subscribe("job-1")
	second := b.Subscribe("job-1")

	b.Unsubscribe("job-1", first)
	assert.True(t, b.HasObserver("job-1"))

	b.Unsubscribe("job-1", second)
	assert.False(t, b.HasObserver("job-1"))
}

func TestBroadcaster_DropsSlowObserver(t *testing.T) {
	metrics := observability.NewRegistry()
	b := New(WithBuffer(1), WithLogger(quietLogger()), WithMetrics(metrics))
	ctx := context.Background()

	obs := b.Subscribe("job-1")
	b.Publish(ctx, "job-1", domain.StepEvent("", domain.StepUpload, domain.StepStatusRunning, ""))
	b.Publish(ctx, "job-1", domain.StepEvent("", domain.StepUpload, domain.StepStatusDone, ""))

	assert.False(t, b.HasObserver("job-1"))
	assert.Len(t, drain(obs), 1)
	assert.Equal(t, float64(1), metrics.Value(observability.MetricObserverDropped, nil))
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := New(WithBuffer(1024), WithLogger(quietLogger()))
	ctx := context.Background()

	observers := map[string]*Observer{}
	for _, id := range []string{"a", "b", "c"} {
		observers[id] = b.Subscribe(id)
	}

	var wg sync.WaitGroup
	for id := range observers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for range 100 {
				b.Publish(ctx, id, domain.StepEvent("", domain.StepML, domain.StepStatusRunning, ""))
			}
		}(id)
	}
	wg.Wait()

	for id, obs := range observers {
		assert.Len(t, drain(obs), 100, id)
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body []byte, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.body = append(p.body, body)
	return p.err
}

func TestBroadcaster_SinkReceivesTerminalEvents(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(WithSink(NewBrokerSink(pub)), WithLogger(quietLogger()))
	ctx := context.Background()

	b.Publish(ctx, "job-1", domain.StepEvent("", domain.StepUpload, domain.StepStatusRunning, ""))
	b.Publish(ctx, "job-1", domain.ResultEvent("", domain.ResultPayload{Verdict: domain.VerdictLikelyReal}))
	b.Publish(ctx, "job-2", domain.ErrorEvent("", "boom"))

	assert.Equal(t, []string{"verdict.result", "verdict.error"}, pub.keys)

	var ev domain.Event
	require.NoError(t, json.Unmarshal(pub.body[0], &ev))
	assert.Equal(t, "job-1", ev.JobID)
	require.NotNil(t, ev.Data)
	assert.Equal(t, domain.VerdictLikelyReal, ev.Data.Verdict)
}

func TestBroadcaster_SinkFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	metrics := observability.NewRegistry()
	b := New(WithSink(NewBrokerSink(pub)), WithLogger(quietLogger()), WithMetrics(metrics))

	obs := b.Subscribe("job-1")
	b.Publish(context.Background(), "job-1", domain.ErrorEvent("", "boom"))

	events := drain(obs)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventError, events[0].Type)
	assert.Equal(t, float64(1), metrics.Value(observability.MetricSinkFailed, map[string]string{"type": "error"}))
}
