package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	failures int
	calls    int
	last     amqp.Publishing
	exchange string
	key      string
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("channel busy")
	}
	f.exchange, f.key, f.last = exchange, key, msg
	return nil
}

func testClient(ch channel, retries int) *Client {
	return &Client{
		config: &Config{
			ExchangeName:      "truthlens.verdicts",
			PublishRetries:    retries,
			PublishRetryDelay: time.Millisecond,
		},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		publisher:   ch,
		isConnected: true,
	}
}

func TestClient_Publish(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt", failures: 0, retries: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, retries: 3, wantCalls: 3},
		{name: "gives up", failures: 10, retries: 2, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{failures: tt.failures}
			c := testClient(ch, tt.retries)

			err := c.Publish(context.Background(), "verdict.result", []byte(`{}`), "application/json")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to publish message after")
			} else {
				require.NoError(t, err)
				assert.Equal(t, "truthlens.verdicts", ch.exchange)
				assert.Equal(t, "verdict.result", ch.key)
				assert.Equal(t, "application/json", ch.last.ContentType)
				assert.Equal(t, amqp.Persistent, ch.last.DeliveryMode)
			}
			assert.Equal(t, tt.wantCalls, ch.calls)
		})
	}
}

func TestClient_PublishNotConnected(t *testing.T) {
	c := testClient(&fakeChannel{}, 1)
	c.isConnected = false

	err := c.Publish(context.Background(), "verdict.error", nil, "application/json")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_PublishStopsOnCancel(t *testing.T) {
	ch := &fakeChannel{failures: 10}
	c := testClient(ch, 5)
	c.config.PublishRetryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Publish(ctx, "verdict.result", nil, "application/json")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ch.calls)
}
