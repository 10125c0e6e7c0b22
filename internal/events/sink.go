package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/landflow/internal/logger"
)

// Sink delivers a single event to the outside world.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink that logs every event at info level.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Deliver logs the event.
func (s *LogSink) Deliver(_ context.Context, e Event) error {
	s.log.Info("Domain event", map[string]interface{}{
		"event_id":    e.ID,
		"event_type":  string(e.Type),
		"entity_kind": string(e.EntityKind),
		"entity_id":   e.EntityID,
		"actor_id":    e.Actor.ID,
		"data":        e.Data,
	})
	return nil
}

// defaultStreamMaxLen caps the stream so it cannot grow without bound.
const defaultStreamMaxLen = 100_000

// RedisSink appends events to a Redis stream with XADD.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink creates a sink writing to stream.
func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

// Deliver appends the event to the stream.
func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":      e.ID,
			"type":    string(e.Type),
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append event %s to stream %s: %w", e.ID, s.stream, err)
	}
	return nil
}

// Recorder keeps delivered events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Deliver stores the event.
func (r *Recorder) Deliver(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Publish records events synchronously, so Recorder can stand in for a
// Dispatcher in tests.
func (r *Recorder) Publish(events ...Event) {
	for _, e := range events {
		_ = r.Deliver(context.Background(), e)
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
