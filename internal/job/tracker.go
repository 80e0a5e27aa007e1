package job

import "sync"

// Tracker is the set of job ids currently in flight. It is the only state
// mutated from concurrent completion paths, so every operation holds the lock.
type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// Add registers id as active. Adding a present id is a no-op.
func (t *Tracker) Add(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = struct{}{}
}

// Remove unregisters id and returns the number of ids left. drained is true
// only for the call that removed a present id and left the set empty, so a
// drain is observed by exactly one caller.
func (t *Tracker) Remove(id string) (remaining int, drained bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, present := t.ids[id]
	delete(t.ids, id)
	remaining = len(t.ids)
	return remaining, present && remaining == 0
}

// Size returns the number of active ids.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Contains reports whether id is active.
func (t *Tracker) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}
