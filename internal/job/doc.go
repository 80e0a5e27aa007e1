// Package job runs long-lived generation jobs in the background. A Controller
// persists a queued record, registers the job with a Tracker and hands it to a
// QueuedExecutor, which drives the record through processing to completed or
// failed while reporting progress. Status writes are committed durably before
// the run continues; progress writes are best-effort. DirectExecutor runs a
// single job without any persistence for callers that wait on the result.
package job
