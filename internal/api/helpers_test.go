package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/job"
)

// fakeQueue is a JobQueue whose behavior is supplied per test.
type fakeQueue struct {
	StartJobFn        func(ctx context.Context, input generation.Request, jobType string) (string, error)
	ExecuteDirectlyFn func(ctx context.Context, input generation.Request) job.DirectResult[generation.Result]
	WatchFn           func() (<-chan []GenerationJob, func())
	jobs              map[string]GenerationJob
	cancelled         []string
	processing        bool
	progress          int
}

func newFakeQueue(jobs ...GenerationJob) *fakeQueue {
	q := &fakeQueue{jobs: make(map[string]GenerationJob)}
	for _, j := range jobs {
		q.jobs[j.ID] = j
	}
	return q
}

func (q *fakeQueue) StartJob(ctx context.Context, input generation.Request, jobType string) (string, error) {
	return q.StartJobFn(ctx, input, jobType)
}

func (q *fakeQueue) ExecuteDirectly(ctx context.Context, input generation.Request) job.DirectResult[generation.Result] {
	return q.ExecuteDirectlyFn(ctx, input)
}

func (q *fakeQueue) CancelJob(id string) {
	q.cancelled = append(q.cancelled, id)
	delete(q.jobs, id)
}

func (q *fakeQueue) Job(id string) (GenerationJob, bool) {
	j, ok := q.jobs[id]
	return j, ok
}

func (q *fakeQueue) PendingJobs() []GenerationJob {
	out := make([]GenerationJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j)
	}
	return out
}

func (q *fakeQueue) ActiveJobCount() int { return job.CountActive(q.PendingJobs()) }
func (q *fakeQueue) IsProcessing() bool  { return q.processing }
func (q *fakeQueue) Progress() int       { return q.progress }
func (q *fakeQueue) Namespace() string   { return job.DefaultNamespace }

func (q *fakeQueue) Watch() (<-chan []GenerationJob, func()) {
	return q.WatchFn()
}

func testJob(id string, status job.Status) GenerationJob {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return GenerationJob{
		ID:        id,
		Namespace: job.DefaultNamespace,
		Type:      DefaultJobType,
		Input:     generation.Request{Prompt: "a fox in snow"},
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// newTestRouter mounts the handler the way the server does, without auth.
func newTestRouter(h *JobHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Get("/watch", h.WatchJobs)
		r.Post("/direct", h.ExecuteDirect)
		r.Get("/direct/status", h.DirectStatus)
		r.Get("/{id}", h.GetJob)
		r.Delete("/{id}", h.CancelJob)
	})
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
