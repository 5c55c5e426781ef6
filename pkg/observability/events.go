// Package observability provides metrics, tracing and run events for the
// study-notes pipeline.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event channels for Redis pub/sub
const (
	ChannelDocumentCompleted = "events.studynotes.document_completed"
	ChannelDocumentFailed    = "events.studynotes.document_failed"
)

// DocumentCompletedEvent is emitted after a study document is written.
type DocumentCompletedEvent struct {
	EventID      string    `json:"event_id"`
	RequestID    string    `json:"request_id"`
	TraceID      string    `json:"trace_id,omitempty"`
	Source       string    `json:"source"`
	Output       string    `json:"output,omitempty"`
	Title        string    `json:"title"`
	Format       string    `json:"format"`
	Entries      int       `json:"entries"`
	Sections     int       `json:"sections"`
	Chunks       int       `json:"chunks"`
	FailedChunks int       `json:"failed_chunks"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewDocumentCompletedEvent creates a completion event with a generated ID.
func NewDocumentCompletedEvent(requestID, source, title string) *DocumentCompletedEvent {
	return &DocumentCompletedEvent{
		EventID:   uuid.New().String(),
		RequestID: requestID,
		Source:    source,
		Title:     title,
		Timestamp: time.Now().UTC(),
	}
}

// DocumentFailedEvent is emitted when a payload could not be turned into a document.
type DocumentFailedEvent struct {
	EventID   string    `json:"event_id"`
	RequestID string    `json:"request_id,omitempty"`
	Source    string    `json:"source"`
	Stage     string    `json:"stage"`
	ErrorCode string    `json:"error_code"`
	ErrorMsg  string    `json:"error_message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDocumentFailedEvent creates a failure event with a generated ID.
func NewDocumentFailedEvent(source, stage, code, msg string, retryable bool) *DocumentFailedEvent {
	return &DocumentFailedEvent{
		EventID:   uuid.New().String(),
		Source:    source,
		Stage:     stage,
		ErrorCode: code,
		ErrorMsg:  msg,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// EventPublisher publishes events to a channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event interface{}) error
	Close() error
}

// RedisEventPublisher publishes JSON-encoded events through a Redis publish function.
type RedisEventPublisher struct {
	publish func(ctx context.Context, channel string, message interface{}) error
}

// NewRedisEventPublisher creates a publisher using a Redis publish function.
func NewRedisEventPublisher(publishFn func(ctx context.Context, channel string, message interface{}) error) *RedisEventPublisher {
	return &RedisEventPublisher{publish: publishFn}
}

// Publish marshals event and publishes it on channel.
func (p *RedisEventPublisher) Publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.publish(ctx, channel, data)
}

// Close is a no-op; the Redis client is owned by the caller.
func (p *RedisEventPublisher) Close() error {
	return nil
}

// NoOpEventPublisher discards all events.
type NoOpEventPublisher struct{}

func (p *NoOpEventPublisher) Publish(ctx context.Context, channel string, event interface{}) error {
	return nil
}

func (p *NoOpEventPublisher) Close() error {
	return nil
}

// EventEmitter emits studynotes run events.
type EventEmitter struct {
	publisher EventPublisher
}

// NewEventEmitter creates an emitter. A nil publisher discards events.
func NewEventEmitter(publisher EventPublisher) *EventEmitter {
	if publisher == nil {
		publisher = &NoOpEventPublisher{}
	}
	return &EventEmitter{publisher: publisher}
}

// EmitDocumentCompleted emits a completion event.
func (e *EventEmitter) EmitDocumentCompleted(ctx context.Context, event *DocumentCompletedEvent) error {
	if event.TraceID == "" {
		event.TraceID = GetTraceID(ctx)
	}
	return e.publisher.Publish(ctx, ChannelDocumentCompleted, event)
}

// EmitDocumentFailed emits a failure event.
func (e *EventEmitter) EmitDocumentFailed(ctx context.Context, event *DocumentFailedEvent) error {
	return e.publisher.Publish(ctx, ChannelDocumentFailed, event)
}

// Close closes the underlying publisher.
func (e *EventEmitter) Close() error {
	return e.publisher.Close()
}
