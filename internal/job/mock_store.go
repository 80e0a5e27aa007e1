package job

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore implements Store in memory for testing. The Fn fields replace
// the default behavior of the corresponding method.
type MockStore[In, Out any] struct {
	mutex   sync.RWMutex
	jobs    map[string]Job[In, Out]
	history map[string][]Status

	AddFn    func(ctx context.Context, job Job[In, Out]) (Job[In, Out], error)
	CommitFn func(ctx context.Context, id string, update Update[Out]) (bool, error)
	DeleteFn func(ctx context.Context, id string) (string, error)
}

// NewMockStore creates a MockStore with default implementations.
func NewMockStore[In, Out any]() *MockStore[In, Out] {
	store := &MockStore[In, Out]{
		jobs:    make(map[string]Job[In, Out]),
		history: make(map[string][]Status),
	}

	store.AddFn = func(ctx context.Context, job Job[In, Out]) (Job[In, Out], error) {
		store.mutex.Lock()
		defer store.mutex.Unlock()
		store.jobs[job.ID] = job
		store.history[job.ID] = append(store.history[job.ID], job.Status)
		return job, nil
	}

	store.CommitFn = func(ctx context.Context, id string, update Update[Out]) (bool, error) {
		return store.apply(id, update)
	}

	store.DeleteFn = func(ctx context.Context, id string) (string, error) {
		store.mutex.Lock()
		defer store.mutex.Unlock()
		delete(store.jobs, id)
		return id, nil
	}

	return store
}

func (s *MockStore[In, Out]) apply(id string, update Update[Out]) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, exists := s.jobs[id]
	if !exists {
		return false, nil
	}
	next, err := current.Apply(update, time.Now())
	if err != nil {
		return false, err
	}
	s.jobs[id] = next
	if update.Status != nil {
		s.history[id] = append(s.history[id], *update.Status)
	}
	return true, nil
}

// AddJob stores a job
func (s *MockStore[In, Out]) AddJob(ctx context.Context, job Job[In, Out]) (Job[In, Out], error) {
	return s.AddFn(ctx, job)
}

// UpdateJob applies a progress update synchronously; tests observe it at once
func (s *MockStore[In, Out]) UpdateJob(id string, update Update[Out]) {
	_, _ = s.apply(id, update)
}

// CommitJob applies an update
func (s *MockStore[In, Out]) CommitJob(ctx context.Context, id string, update Update[Out]) (bool, error) {
	return s.CommitFn(ctx, id, update)
}

// RemoveJob deletes a job
func (s *MockStore[In, Out]) RemoveJob(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.jobs, id)
}

// DeleteJob deletes a job
func (s *MockStore[In, Out]) DeleteJob(ctx context.Context, id string) (string, error) {
	return s.DeleteFn(ctx, id)
}

// GetJob returns a stored job
func (s *MockStore[In, Out]) GetJob(id string) (Job[In, Out], bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// Jobs returns stored jobs in namespace ordered by creation time
func (s *MockStore[In, Out]) Jobs(namespace string) []Job[In, Out] {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	jobs := make([]Job[In, Out], 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Namespace == namespace {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Watch returns a channel that receives the current view once
func (s *MockStore[In, Out]) Watch(namespace string) (<-chan []Job[In, Out], func()) {
	ch := make(chan []Job[In, Out], 1)
	ch <- s.Jobs(namespace)
	return ch, func() {}
}

// StatusHistory returns every status written for id, in order
func (s *MockStore[In, Out]) StatusHistory(id string) []Status {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]Status(nil), s.history[id]...)
}
