package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

type subscription struct {
	handler EventHandler
	types   []string // empty matches every type
}

func (s subscription) matches(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// InMemoryEventEmitter delivers each job event synchronously, in registration
// order, to the handlers subscribed to its type.
type InMemoryEventEmitter struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{logger: logger.With("component", "job_event_emitter")}
}

// RegisterHandler subscribes handler to the given event types, or to every
// type when none are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, types ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, subscription{handler: handler, types: slices.Clone(types)})
}

// EmitEvent delivers event to every matching handler. A failing or panicking
// handler does not stop delivery to the rest; their errors are joined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *JobEvent) error {
	e.mu.RLock()
	subs := slices.Clone(e.subs)
	e.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, sub := range subs {
		if !sub.matches(event.Type) {
			continue
		}
		delivered++
		if err := deliver(ctx, sub.handler, event); err != nil {
			e.logger.ErrorContext(ctx, "event handler failed",
				"event_type", event.Type,
				"job_id", event.JobID,
				"error", err)
			errs = append(errs, err)
		}
	}

	e.logger.DebugContext(ctx, "event emitted",
		"event_type", event.Type,
		"job_id", event.JobID,
		"handlers", delivered)
	return errors.Join(errs...)
}

func deliver(ctx context.Context, h EventHandler, event *JobEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.HandleEvent(ctx, event)
}

// LoggingHandler writes every event to a logger, failures at warn level.
type LoggingHandler struct {
	logger *slog.Logger
}

func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.With("component", "job_events")}
}

func (h *LoggingHandler) HandleEvent(ctx context.Context, event *JobEvent) error {
	level := slog.LevelInfo
	if event.Type == TypeJobFailed {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "job event",
		"event_id", event.ID,
		"event_type", event.Type,
		"job_id", event.JobID,
		"namespace", event.Namespace,
		"payload", string(event.Payload))
	return nil
}
