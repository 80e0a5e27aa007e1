package job

import "context"

// Store is the persisted, reactive job cache consumed by this package.
// Status transitions go through CommitJob, which is awaited; progress goes
// through UpdateJob, which returns immediately and may be applied late.
type Store[In, Out any] interface {
	// AddJob durably creates a job record
	AddJob(ctx context.Context, job Job[In, Out]) (Job[In, Out], error)

	// UpdateJob applies a best-effort partial update without waiting for
	// durable storage. Updates for unknown ids are ignored.
	UpdateJob(id string, update Update[Out])

	// CommitJob applies a partial update and returns once it is durable.
	// applied is false when no record with id exists.
	CommitJob(ctx context.Context, id string, update Update[Out]) (applied bool, err error)

	// RemoveJob removes a record from the local view immediately and
	// deletes it from durable storage in the background
	RemoveJob(id string)

	// DeleteJob durably removes a record and returns its id
	DeleteJob(ctx context.Context, id string) (string, error)

	// GetJob looks up a record by id
	GetJob(id string) (Job[In, Out], bool)

	// Jobs returns all records under namespace ordered by creation time
	Jobs(namespace string) []Job[In, Out]

	// Watch streams snapshots of the namespace view whenever it changes.
	// The returned function stops the stream.
	Watch(namespace string) (<-chan []Job[In, Out], func())
}
