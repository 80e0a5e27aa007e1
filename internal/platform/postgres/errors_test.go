package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/genqueue/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	plain := errors.New("network unreachable")
	undefinedTable := &pgconn.PgError{Code: "42P01"}

	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantMsg string
	}{
		{name: "no rows", err: sql.ErrNoRows, wantIs: store.ErrJobNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: uniqueViolationCode}, wantIs: store.ErrJobExists},
		{
			name:    "check violation",
			err:     &pgconn.PgError{Code: checkViolationCode, ConstraintName: "generation_jobs_progress_check"},
			wantIs:  store.ErrInvalidEntity,
			wantMsg: "generation_jobs_progress_check",
		},
		{
			name:    "not null violation",
			err:     &pgconn.PgError{Code: notNullViolationCode, ColumnName: "input"},
			wantIs:  store.ErrInvalidEntity,
			wantMsg: "input",
		},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, wantIs: store.ErrUnavailable},
		{name: "admin shutdown", err: &pgconn.PgError{Code: adminShutdownCode}, wantIs: store.ErrUnavailable},
		{name: "bad connection", err: fmt.Errorf("exec: %w", driver.ErrBadConn), wantIs: store.ErrUnavailable},
		{name: "unmapped sqlstate", err: undefinedTable, wantIs: undefinedTable},
		{name: "unmapped", err: plain, wantIs: plain},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mapped := MapError(tc.err)
			assert.ErrorIs(t, mapped, tc.wantIs)
			if tc.wantMsg != "" {
				assert.Contains(t, mapped.Error(), tc.wantMsg)
			}
		})
	}

	assert.NoError(t, MapError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: uniqueViolationCode}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: checkViolationCode}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}
