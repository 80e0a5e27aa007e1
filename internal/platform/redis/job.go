package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/jobcache"
	"github.com/phrazzld/genqueue/internal/store"
)

// updateScript replaces the job's fields when its current status is one of
// the allowed predecessors. ARGV[1] is the predecessor count, followed by
// the predecessors and then field/value pairs. Returns 1 on write, 0 when the
// job is missing and -1 when the transition is rejected.
var updateScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
	return 0
end
local n = tonumber(ARGV[1])
local allowed = false
for i = 2, n + 1 do
	if ARGV[i] == current then
		allowed = true
	end
end
if not allowed then
	return -1
end
for i = n + 2, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// progressScript sets progress on a job that is still processing.
var progressScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
	return 0
end
redis.call('HSET', KEYS[1], 'progress', ARGV[1], 'updated_at', ARGV[2])
return 1
`)

// Insert stores the record as a Hash and indexes it in its namespace.
func (s *JobStore) Insert(ctx context.Context, record jobcache.Record) error {
	key := jobKey(record.ID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("genqueue/redis: insert check exists: %w", mapError(err))
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", store.ErrJobExists, record.ID)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordToMap(record))
	pipe.ZAdd(ctx, namespaceKey(record.Namespace), goredis.Z{
		Score:  float64(record.CreatedAt.UnixMilli()),
		Member: record.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("genqueue/redis: insert job: %w", mapError(err))
	}
	return nil
}

// Update replaces the mutable fields of an existing job. The status check
// and the write run atomically on the server.
func (s *JobStore) Update(ctx context.Context, record jobcache.Record) (bool, error) {
	predecessors := predecessorsOf(record.Status)

	args := make([]any, 0, 1+len(predecessors)+12)
	args = append(args, len(predecessors))
	for _, p := range predecessors {
		args = append(args, string(p))
	}
	args = append(args,
		"status", string(record.Status),
		"progress", strconv.Itoa(record.Progress),
		"result", string(record.Result),
		"error", record.Error,
		"completed_at", formatTime(record.CompletedAt),
		"updated_at", record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)

	n, err := updateScript.Run(ctx, s.client, []string{jobKey(record.ID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("genqueue/redis: update job: %w", mapError(err))
	}
	switch n {
	case 0:
		return false, nil
	case -1:
		return false, fmt.Errorf("genqueue/redis: update job %s to %s: %w", record.ID, record.Status, job.ErrInvalidTransition)
	}
	return true, nil
}

// UpdateProgress implements jobcache.Backend.
func (s *JobStore) UpdateProgress(ctx context.Context, id string, progress int, updatedAt time.Time) (bool, error) {
	n, err := progressScript.Run(ctx, s.client, []string{jobKey(id)},
		strconv.Itoa(progress),
		updatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, fmt.Errorf("genqueue/redis: update progress: %w", mapError(err))
	}
	return n == 1, nil
}

// Delete removes a job and its namespace index entry.
func (s *JobStore) Delete(ctx context.Context, id string) (bool, error) {
	key := jobKey(id)

	namespace, err := s.client.HGet(ctx, key, "namespace").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("genqueue/redis: delete job get namespace: %w", mapError(err))
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, namespaceKey(namespace), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("genqueue/redis: delete job: %w", mapError(err))
	}
	return true, nil
}

// List returns the jobs of namespace ordered by creation time. Index
// entries whose Hash has gone are skipped.
func (s *JobStore) List(ctx context.Context, namespace string) ([]jobcache.Record, error) {
	ids, err := s.client.ZRange(ctx, namespaceKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("genqueue/redis: list jobs zrange: %w", mapError(err))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("genqueue/redis: list jobs hgetall: %w", mapError(err))
	}

	records := make([]jobcache.Record, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			s.logger.WarnContext(ctx, "dangling job index entry", "job_id", ids[i], "namespace", namespace)
			continue
		}
		records = append(records, mapToRecord(vals))
	}
	return records, nil
}

// ── helpers ──

// predecessorsOf lists the statuses a job may hold before moving to next.
func predecessorsOf(next job.Status) []job.Status {
	all := []job.Status{job.StatusQueued, job.StatusProcessing, job.StatusCompleted, job.StatusFailed}
	var out []job.Status
	for _, s := range all {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

func recordToMap(r jobcache.Record) map[string]interface{} {
	return map[string]interface{}{
		"id":           r.ID,
		"namespace":    r.Namespace,
		"type":         r.Type,
		"input":        string(r.Input),
		"status":       string(r.Status),
		"progress":     strconv.Itoa(r.Progress),
		"result":       string(r.Result),
		"error":        r.Error,
		"completed_at": formatTime(r.CompletedAt),
		"created_at":   r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapToRecord(m map[string]string) jobcache.Record {
	progress, _ := strconv.Atoi(m["progress"])                    //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	r := jobcache.Record{
		ID:        m["id"],
		Namespace: m["namespace"],
		Type:      m["type"],
		Input:     []byte(m["input"]),
		Status:    job.Status(m["status"]),
		Progress:  progress,
		Error:     m["error"],
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if v := m["result"]; v != "" {
		r.Result = []byte(v)
	}
	if v := m["completed_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			r.CompletedAt = &t
		}
	}
	return r
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
