package main

import (
	"context"
	"time"

	"github.com/phrazzld/genqueue/internal/api"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/redact"
)

const eventTimeout = 5 * time.Second

// jobCompletedPayload is the payload of a job.completed event.
type jobCompletedPayload struct {
	Type        string     `json:"type"`
	Model       string     `json:"model,omitempty"`
	ImageCount  int        `json:"image_count"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// jobFailedPayload is the payload of a job.failed event.
type jobFailedPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// jobCallbacks turns controller callbacks into job events.
func (app *application) jobCallbacks() job.Callbacks[generation.Request, generation.Result] {
	return job.Callbacks[generation.Request, generation.Result]{
		OnJobComplete: func(j api.GenerationJob) {
			payload := jobCompletedPayload{Type: j.Type, CompletedAt: j.CompletedAt}
			if j.Result != nil {
				payload.Model = j.Result.Model
				payload.ImageCount = len(j.Result.Images)
			}
			app.emit(events.TypeJobCompleted, j.ID, payload)
		},
		OnJobError: func(j api.GenerationJob, err error) {
			app.emit(events.TypeJobFailed, j.ID, jobFailedPayload{
				Type:  j.Type,
				Error: redact.Error(err),
			})
		},
		OnAllComplete: func() {
			app.emit(events.TypeJobsDrained, "", nil)
		},
	}
}

// emit publishes an event for the configured namespace. Handler failures are
// logged by the emitter and never reach the job run.
func (app *application) emit(eventType, jobID string, payload interface{}) {
	event, err := events.NewJobEvent(eventType, app.config.Store.Namespace, jobID, payload)
	if err != nil {
		app.logger.Error("failed to build job event", "event_type", eventType, "job_id", jobID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	_ = app.emitter.EmitEvent(ctx, event)
}
