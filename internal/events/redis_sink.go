package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "ticketflow:events"

// RedisStreamSink appends published events to a Redis stream. Deleted tickets
// keep their audit trail there after the store has dropped them.
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	logger *zap.Logger
}

// NewRedisStreamSink builds a sink writing to stream.
func NewRedisStreamSink(client redis.Cmdable, stream string, logger *zap.Logger) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStreamSink{client: client, stream: stream, logger: logger}
}

// Register subscribes the sink to every event type.
func (s *RedisStreamSink) Register(d Dispatcher) {
	if s == nil || d == nil {
		return
	}
	SubscribeAll(d, s.Handle)
}

// Handle encodes event and XADDs it.
func (s *RedisStreamSink) Handle(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":        event.ID,
			"type":      string(event.Type),
			"ticket_id": event.TicketID,
			"actor":     event.Actor,
			"event":     string(payload),
		},
	}).Err()
	if err != nil {
		s.logger.Warn("failed to append event to redis stream",
			zap.String("stream", s.stream),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
