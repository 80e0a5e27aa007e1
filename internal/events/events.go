package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle event types.
const (
	TypeJobCompleted = "job.completed"
	TypeJobFailed    = "job.failed"
	TypeJobsDrained  = "jobs.drained"
)

// JobEvent describes a change in the job queue.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// JobID is empty for queue-level events such as jobs.drained
	JobID string `json:"job_id,omitempty"`

	// Namespace is the job namespace the event belongs to
	Namespace string `json:"namespace"`

	// Payload contains event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *JobEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewJobEvent creates a JobEvent. A nil payload leaves Payload empty.
func NewJobEvent(eventType, namespace, jobID string, payload interface{}) (*JobEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &JobEvent{
		ID:        uuid.New(),
		Type:      eventType,
		JobID:     jobID,
		Namespace: namespace,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
