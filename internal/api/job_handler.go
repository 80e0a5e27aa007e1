package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/store"
)

// JobQueue is the part of job.Controller the handlers use.
type JobQueue interface {
	StartJob(ctx context.Context, input generation.Request, jobType string) (string, error)
	ExecuteDirectly(ctx context.Context, input generation.Request) job.DirectResult[generation.Result]
	CancelJob(id string)
	Job(id string) (GenerationJob, bool)
	PendingJobs() []GenerationJob
	ActiveJobCount() int
	IsProcessing() bool
	Progress() int
	Namespace() string
	Watch() (<-chan []GenerationJob, func())
}

var _ JobQueue = (*job.Controller[generation.Request, generation.Result])(nil)

// JobHandler handles job HTTP requests.
type JobHandler struct {
	queue JobQueue

	streamsDone chan struct{}
	closeOnce   sync.Once
}

// NewJobHandler creates a JobHandler over queue.
func NewJobHandler(queue JobQueue) *JobHandler {
	return &JobHandler{queue: queue, streamsDone: make(chan struct{})}
}

// CloseStreams ends every open WatchJobs stream. http.Server.Shutdown does
// not cancel request contexts, so the server calls this when it stops.
func (h *JobHandler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streamsDone) })
}

// decodeCreateRequest reads and validates a CreateJobRequest, writing the
// error response itself when it fails.
func decodeCreateRequest(w http.ResponseWriter, r *http.Request) (CreateJobRequest, bool) {
	var req CreateJobRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return req, false
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return req, false
	}
	return req, true
}

// CreateJob handles POST /api/jobs. The job runs in the background; the
// response only confirms the queued record is stored.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCreateRequest(w, r)
	if !ok {
		return
	}

	id, err := h.queue.StartJob(r.Context(), req.generationRequest(), req.jobType())
	if err != nil {
		status := MapErrorToStatusCode(err)
		if status == http.StatusInternalServerError {
			status = http.StatusServiceUnavailable
		}
		shared.RespondWithErrorAndLog(w, r, status, "Failed to queue job", err)
		return
	}

	subject, _ := shared.GetSubject(r.Context())
	logger.FromContext(r.Context()).Info("job accepted",
		"job_id", id,
		"job_type", req.jobType(),
		"subject", subject)

	w.Header().Set("Location", "/api/jobs/"+id)
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateJobResponse{ID: id, Status: job.StatusQueued})
}

// ListJobs handles GET /api/jobs. An optional status query parameter filters
// the list.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.queue.PendingJobs()

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := job.Status(raw)
		if !status.IsValid() {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status filter")
			return
		}
		filtered := jobs[:0:0]
		for _, j := range jobs {
			if j.Status == status {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobListResponse{
		Jobs:   jobsToResponse(jobs),
		Active: job.CountActive(jobs),
	})
}

// WatchJobs handles GET /api/jobs/watch. It streams the job list as
// server-sent events, one "jobs" event per change of the namespace view,
// starting with the current view.
func (h *JobHandler) WatchJobs(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	log := logger.FromContext(r.Context())

	snapshots, cancel := h.queue.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_ = rc.SetWriteDeadline(time.Time{})

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.streamsDone:
			return
		case jobs, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writeJobsEvent(w, jobs); err != nil {
				log.Debug("job stream closed", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				log.Debug("job stream cannot flush", "error", err)
				return
			}
		}
	}
}

func writeJobsEvent(w http.ResponseWriter, jobs []GenerationJob) error {
	data, err := json.Marshal(JobListResponse{
		Jobs:   jobsToResponse(jobs),
		Active: job.CountActive(jobs),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: jobs\ndata: %s\n\n", data)
	return err
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(j))
}

// CancelJob handles DELETE /api/jobs/{id}. The record and its bookkeeping are
// dropped; a task that is already executing is not interrupted.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	j, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.queue.CancelJob(j.ID)
	logger.FromContext(r.Context()).Info("job cancelled via api", "job_id", j.ID, "status", j.Status)
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteDirect handles POST /api/jobs/direct. It runs the job in the request
// and returns its outcome; task failures are reported in the body with 200.
func (h *JobHandler) ExecuteDirect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCreateRequest(w, r)
	if !ok {
		return
	}
	result := h.queue.ExecuteDirectly(r.Context(), req.generationRequest())
	result.Error = redact.String(result.Error)
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// DirectStatus handles GET /api/jobs/direct/status.
func (h *JobHandler) DirectStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, DirectStatusResponse{
		Processing: h.queue.IsProcessing(),
		Progress:   h.queue.Progress(),
	})
}

// Health handles GET /health.
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:     "ok",
		Namespace:  h.queue.Namespace(),
		ActiveJobs: h.queue.ActiveJobCount(),
	})
}

func (h *JobHandler) lookup(w http.ResponseWriter, r *http.Request) (GenerationJob, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Job ID is required")
		return GenerationJob{}, false
	}
	j, ok := h.queue.Job(id)
	if !ok {
		err := store.ErrJobNotFound
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return GenerationJob{}, false
	}
	return j, true
}
