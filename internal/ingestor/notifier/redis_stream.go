package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Event is the envelope written to the event stream: one entry with a type
// field and the JSON encoded payload.
type Event struct {
	Type    string
	Payload json.RawMessage
}

// NewEvent encodes payload into an Event of the given type.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// Values returns the stream entry fields.
func (e Event) Values() map[string]interface{} {
	return map[string]interface{}{"type": e.Type, "payload": string(e.Payload)}
}

type redisStreamBroadcaster struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStreamBroadcaster publishes events to a redis stream, trimmed
// approximately to maxLen entries when maxLen is positive.
func NewRedisStreamBroadcaster(client redis.Cmdable, stream string, maxLen int64) Broadcaster {
	return &redisStreamBroadcaster{client: client, stream: stream, maxLen: maxLen}
}

func (b *redisStreamBroadcaster) Notify(ctx context.Context, eventType string, payload any) error {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: b.stream,
		Values: event.Values(),
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event to %s: %w", eventType, b.stream, err)
	}
	return nil
}
