package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
	}{
		{name: "nil", err: nil},
		{name: "unrelated", err: errors.New("boom")},
		{name: "not found", err: ErrNotFound, notFound: true},
		{name: "job not found", err: ErrJobNotFound, notFound: true},
		{name: "wrapped job not found", err: fmt.Errorf("get: %w", ErrJobNotFound), notFound: true},
		{name: "duplicate", err: ErrDuplicate, duplicate: true},
		{name: "job exists", err: fmt.Errorf("insert: %w", ErrJobExists), duplicate: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.notFound, IsNotFoundError(tc.err))
			assert.Equal(t, tc.duplicate, IsDuplicateError(tc.err))
		})
	}
}

func TestOpError(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("%w: connection reset", ErrUnavailable)
	err := NewOpError("postgres", "insert", "job-1", cause)

	assert.Equal(t, "postgres insert job job-1: store unavailable: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsUnavailableError(err))
	assert.Equal(t, "redis pending: store unavailable",
		NewOpError("redis", "pending", "", ErrUnavailable).Error())
	assert.NoError(t, NewOpError("redis", "get", "job-1", nil))
}
