// Package jobcache provides an observable, in-memory view of job records
// kept in sync with a durable Backend.
package jobcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/job"
)

// Config holds Cache settings.
type Config struct {
	// WriteTimeout bounds each background backend write
	WriteTimeout time.Duration
}

// DefaultConfig returns the default Cache settings.
func DefaultConfig() Config {
	return Config{WriteTimeout: 10 * time.Second}
}

// Cache implements job.Store. The in-memory view is the read authority;
// durable writes reach the backend before the view, best-effort writes reach
// the view first and the backend in the background.
type Cache[In, Out any] struct {
	backend Backend
	config  Config
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	jobs    map[string]job.Job[In, Out]
	subs    map[string]map[int]chan []job.Job[In, Out]
	nextSub int

	writes sync.WaitGroup
}

var _ job.Store[struct{}, struct{}] = (*Cache[struct{}, struct{}])(nil)

// New creates an empty Cache over backend. Call Load to hydrate it.
func New[In, Out any](backend Backend, config Config, logger *slog.Logger) (*Cache[In, Out], error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if logger == nil {
		return nil, job.ErrNilLogger
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	return &Cache[In, Out]{
		backend: backend,
		config:  config,
		logger:  logger.With("component", "job_cache"),
		now:     time.Now,
		jobs:    make(map[string]job.Job[In, Out]),
		subs:    make(map[string]map[int]chan []job.Job[In, Out]),
	}, nil
}

// Load replaces the view of namespace with the backend's records. Records
// that fail to decode are skipped and logged.
func (c *Cache[In, Out]) Load(ctx context.Context, namespace string) (int, error) {
	records, err := c.backend.List(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs in %s: %w", namespace, err)
	}

	loaded := make([]job.Job[In, Out], 0, len(records))
	for _, r := range records {
		j, err := DecodeRecord[In, Out](r)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable job record", "job_id", r.ID, "error", err)
			continue
		}
		loaded = append(loaded, j)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, j := range c.jobs {
		if j.Namespace == namespace {
			delete(c.jobs, id)
		}
	}
	for _, j := range loaded {
		c.jobs[j.ID] = j
	}
	c.notifyLocked(namespace)

	c.logger.InfoContext(ctx, "job cache loaded", "namespace", namespace, "jobs", len(loaded))
	return len(loaded), nil
}

// AddJob implements job.Store.
func (c *Cache[In, Out]) AddJob(ctx context.Context, j job.Job[In, Out]) (job.Job[In, Out], error) {
	record, err := EncodeJob(j)
	if err != nil {
		return job.Job[In, Out]{}, err
	}
	if err := c.backend.Insert(ctx, record); err != nil {
		return job.Job[In, Out]{}, fmt.Errorf("failed to insert job %s: %w", j.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[j.ID] = j
	c.notifyLocked(j.Namespace)
	return j, nil
}

// UpdateJob implements job.Store. The view changes before UpdateJob returns;
// the backend write happens in the background and its failure is only
// logged.
func (c *Cache[In, Out]) UpdateJob(id string, update job.Update[Out]) {
	c.mu.Lock()
	current, exists := c.jobs[id]
	if !exists {
		c.mu.Unlock()
		return
	}
	next, err := current.Apply(update, c.now())
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("dropping job update", "job_id", id, "error", err)
		return
	}
	c.jobs[id] = next
	c.notifyLocked(next.Namespace)
	c.mu.Unlock()

	if update.IsProgressOnly() {
		c.background("update_progress", id, func(ctx context.Context) error {
			_, err := c.backend.UpdateProgress(ctx, id, next.Progress, next.UpdatedAt)
			return err
		})
		return
	}

	c.background("update", id, func(ctx context.Context) error {
		record, err := EncodeJob(next)
		if err != nil {
			return err
		}
		_, err = c.backend.Update(ctx, record)
		return err
	})
}

// CommitJob implements job.Store. The update is applied only to a record
// present in the view; a record removed locally is never written back.
func (c *Cache[In, Out]) CommitJob(ctx context.Context, id string, update job.Update[Out]) (bool, error) {
	c.mu.RLock()
	current, exists := c.jobs[id]
	c.mu.RUnlock()
	if !exists {
		return false, nil
	}

	now := c.now()
	next, err := current.Apply(update, now)
	if err != nil {
		return false, err
	}
	record, err := EncodeJob(next)
	if err != nil {
		return false, err
	}

	updated, err := c.backend.Update(ctx, record)
	if err != nil {
		return false, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if !updated {
		c.logger.DebugContext(ctx, "job missing from backend during commit", "job_id", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	latest, exists := c.jobs[id]
	if !exists {
		return false, nil
	}
	// Progress may have moved on since the snapshot; apply to the latest view.
	if merged, err := latest.Apply(update, now); err == nil {
		next = merged
	}
	c.jobs[id] = next
	c.notifyLocked(next.Namespace)
	return true, nil
}

// RemoveJob implements job.Store. The backend delete runs in the background.
func (c *Cache[In, Out]) RemoveJob(id string) {
	c.mu.Lock()
	if current, exists := c.jobs[id]; exists {
		delete(c.jobs, id)
		c.notifyLocked(current.Namespace)
	}
	c.mu.Unlock()

	c.background("delete", id, func(ctx context.Context) error {
		_, err := c.backend.Delete(ctx, id)
		return err
	})
}

// DeleteJob implements job.Store. The record stays in the view when the
// backend delete fails.
func (c *Cache[In, Out]) DeleteJob(ctx context.Context, id string) (string, error) {
	if _, err := c.backend.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("failed to delete job %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if current, exists := c.jobs[id]; exists {
		delete(c.jobs, id)
		c.notifyLocked(current.Namespace)
	}
	return id, nil
}

// GetJob implements job.Store.
func (c *Cache[In, Out]) GetJob(id string) (job.Job[In, Out], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	j, ok := c.jobs[id]
	return j, ok
}

// Jobs implements job.Store.
func (c *Cache[In, Out]) Jobs(namespace string) []job.Job[In, Out] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(namespace)
}

// Watch implements job.Store. The channel holds at most one pending
// snapshot; a slow reader only ever sees the latest view.
func (c *Cache[In, Out]) Watch(namespace string) (<-chan []job.Job[In, Out], func()) {
	ch := make(chan []job.Job[In, Out], 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	if c.subs[namespace] == nil {
		c.subs[namespace] = make(map[int]chan []job.Job[In, Out])
	}
	c.subs[namespace][id] = ch
	ch <- c.snapshotLocked(namespace)
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[namespace], id)
			if len(c.subs[namespace]) == 0 {
				delete(c.subs, namespace)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Close waits for background writes to finish or ctx to end.
func (c *Cache[In, Out]) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending job writes: %w", ctx.Err())
	}
}

func (c *Cache[In, Out]) background(op, id string, write func(ctx context.Context) error) {
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.config.WriteTimeout)
		defer cancel()

		if err := write(ctx); err != nil {
			c.logger.Error("background job write failed", "op", op, "job_id", id, "error", err)
		}
	}()
}

func (c *Cache[In, Out]) snapshotLocked(namespace string) []job.Job[In, Out] {
	jobs := make([]job.Job[In, Out], 0, len(c.jobs))
	for _, j := range c.jobs {
		if j.Namespace == namespace {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs
}

func (c *Cache[In, Out]) notifyLocked(namespace string) {
	subs := c.subs[namespace]
	if len(subs) == 0 {
		return
	}
	snapshot := c.snapshotLocked(namespace)
	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
