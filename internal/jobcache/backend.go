package jobcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/store"
)

// ErrCorruptRecord is returned when a stored record cannot be decoded
var ErrCorruptRecord = errors.New("corrupt job record")

// Backend is the durable side of a Cache.
//
// Update and UpdateProgress report false when no record with the id exists.
// UpdateProgress only touches records that are still processing.
type Backend interface {
	Insert(ctx context.Context, record Record) error
	Update(ctx context.Context, record Record) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress int, updatedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, namespace string) ([]Record, error)
}

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

// Insert implements Backend.
func (b *MemoryBackend) Insert(ctx context.Context, record Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.records[record.ID]; exists {
		return fmt.Errorf("%w: %s", store.ErrJobExists, record.ID)
	}
	b.records[record.ID] = record
	return nil
}

// Update implements Backend.
func (b *MemoryBackend) Update(ctx context.Context, record Record) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.records[record.ID]; !exists {
		return false, nil
	}
	b.records[record.ID] = record
	return true, nil
}

// UpdateProgress implements Backend.
func (b *MemoryBackend) UpdateProgress(ctx context.Context, id string, progress int, updatedAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, exists := b.records[id]
	if !exists || record.Status != job.StatusProcessing {
		return false, nil
	}
	record.Progress = progress
	record.UpdatedAt = updatedAt
	b.records[id] = record
	return true, nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.records[id]; !exists {
		return false, nil
	}
	delete(b.records, id)
	return true, nil
}

// List implements Backend. Records are ordered by creation time.
func (b *MemoryBackend) List(ctx context.Context, namespace string) ([]Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	records := make([]Record, 0, len(b.records))
	for _, r := range b.records {
		if r.Namespace == namespace {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
