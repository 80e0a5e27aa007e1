package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/genqueue/internal/events"
)

var _ events.EventHandler = (*EventPublisher)(nil)

// EventPublisher forwards job events to a Redis Pub/Sub channel per
// namespace so that other processes can follow the queue.
type EventPublisher struct {
	client goredis.Cmdable
}

// NewEventPublisher creates an EventPublisher on client.
func NewEventPublisher(client goredis.Cmdable) *EventPublisher {
	return &EventPublisher{client: client}
}

// HandleEvent publishes the JSON encoded event.
func (p *EventPublisher) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, eventsChannel(event.Namespace), data).Err(); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", event.ID, err)
	}
	return nil
}

// Subscribe returns a subscription to a namespace's event channel. The
// caller closes it.
func Subscribe(ctx context.Context, client *goredis.Client, namespace string) *goredis.PubSub {
	return client.Subscribe(ctx, eventsChannel(namespace))
}
