package api

import (
	"time"

	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/redact"
)

// GenerationJob is the job record type served by the API.
type GenerationJob = job.Job[generation.Request, generation.Result]

// CreateJobRequest is the body of POST /api/jobs and POST /api/jobs/direct.
type CreateJobRequest struct {
	Type   string `json:"type" validate:"omitempty,max=64,alphanum"`
	Prompt string `json:"prompt" validate:"required,min=3,max=8000"`
	Style  string `json:"style,omitempty" validate:"omitempty,max=200"`
}

// DefaultJobType is used when a request does not name one.
const DefaultJobType = "generation"

func (r CreateJobRequest) jobType() string {
	if r.Type == "" {
		return DefaultJobType
	}
	return r.Type
}

func (r CreateJobRequest) generationRequest() generation.Request {
	return generation.Request{Prompt: r.Prompt, Style: r.Style}
}

// CreateJobResponse is returned by POST /api/jobs.
type CreateJobResponse struct {
	ID     string     `json:"id"`
	Status job.Status `json:"status"`
}

// JobResponse is the API view of a job record.
type JobResponse struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Status      job.Status         `json:"status"`
	Progress    int                `json:"progress"`
	Prompt      string             `json:"prompt"`
	Style       string             `json:"style,omitempty"`
	Result      *generation.Result `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// JobListResponse is returned by GET /api/jobs.
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Active int           `json:"active"`
}

// DirectStatusResponse is returned by GET /api/jobs/direct/status.
type DirectStatusResponse struct {
	Processing bool `json:"processing"`
	Progress   int  `json:"progress"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Namespace  string `json:"namespace"`
	ActiveJobs int    `json:"active_jobs"`
}

// jobToResponse converts a record to its API view. Error messages are
// redacted because they can embed provider and connection details.
func jobToResponse(j GenerationJob) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		Prompt:      j.Input.Prompt,
		Style:       j.Input.Style,
		Result:      j.Result,
		Error:       redact.String(j.Error),
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func jobsToResponse(jobs []GenerationJob) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobToResponse(j))
	}
	return out
}
