package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamPublisher appends events to Redis Streams.
type StreamPublisher struct {
	client *redis.Client
}

func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{client: client}
}

func (p *StreamPublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	eventJSON, err := Encode(eventType, data)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"event": eventJSON,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Encode wraps data in the Event envelope shared by every broker.
func Encode(eventType string, data any) ([]byte, error) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return eventJSON, nil
}

// Decode unmarshals an event's payload into out.
func Decode(event Event, out any) error {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to re-marshal %s payload: %w", event.Type, err)
	}
	if err := json.Unmarshal(dataBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", event.Type, err)
	}
	return nil
}

// NopPublisher drops events. Used when EVENT_BROKER=none.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	slog.Debug("event publish skipped", "stream", stream, "type", eventType)
	return nil
}

// PublishOrLog publishes and logs failures; a lost event never fails the
// request that produced it.
func PublishOrLog(ctx context.Context, p Publisher, stream, eventType string, data any) {
	if err := p.Publish(ctx, stream, eventType, data); err != nil {
		slog.Error("failed to publish event", "stream", stream, "type", eventType, "error", err)
	}
}
