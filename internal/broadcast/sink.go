package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// RoutingKeyPrefix prefixes the event type in the routing key of mirrored events
const RoutingKeyPrefix = "verdict."

// Publisher sends a message with a routing key to a broker
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// BrokerSink mirrors terminal events to a message broker
type BrokerSink struct {
	publisher Publisher
}

// NewBrokerSink creates a sink over publisher
func NewBrokerSink(publisher Publisher) *BrokerSink {
	return &BrokerSink{publisher: publisher}
}

// Deliver implements Sink
func (s *BrokerSink) Deliver(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.publisher.Publish(ctx, RoutingKeyPrefix+string(event.Type), body, "application/json")
}
