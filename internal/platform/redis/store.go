// Package redis implements the durable job backend on Redis. Each job is a
// Hash; a Sorted Set per namespace, scored by creation time, indexes them.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.NewJobStore(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/genqueue/internal/jobcache"
)

var _ jobcache.Backend = (*JobStore)(nil)

// Option configures the JobStore.
type Option func(*JobStore)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *JobStore) { s.logger = l }
}

// JobStore implements jobcache.Backend backed by Redis.
type JobStore struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// NewJobStore creates a Redis-backed job store. The caller owns the client
// lifecycle.
func NewJobStore(client goredis.Cmdable, opts ...Option) *JobStore {
	s := &JobStore{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
