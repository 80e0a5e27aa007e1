package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/jobcache"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/store"
)

const jobColumns = `id, namespace, type, input, status, progress, result, error, completed_at, created_at, updated_at`

// JobStore implements jobcache.Backend on the generation_jobs table.
type JobStore struct {
	db store.DBTX
}

var _ jobcache.Backend = (*JobStore)(nil)

// NewJobStore creates a JobStore. db is usually a *sql.DB opened with the
// pgx driver.
func NewJobStore(db store.DBTX) *JobStore {
	return &JobStore{db: db}
}

// WithTx returns a JobStore that runs every statement inside tx.
func (s *JobStore) WithTx(tx *sql.Tx) *JobStore {
	return &JobStore{db: tx}
}

// Insert implements jobcache.Backend.
func (s *JobStore) Insert(ctx context.Context, record jobcache.Record) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO generation_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Namespace,
		record.Type,
		string(record.Input),
		string(record.Status),
		record.Progress,
		nullableJSON(record.Result),
		record.Error,
		nullableTime(record.CompletedAt),
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to insert job",
			"job_id", record.ID,
			"job_type", record.Type,
			"error", err)
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrJobExists, record.ID)
		}
		return store.NewOpError("postgres", "insert", record.ID, MapError(err))
	}

	return nil
}

// Update implements jobcache.Backend. The stored status is locked and
// checked before the write so concurrent writers cannot move a job
// backwards. On a *sql.DB the check and write share a transaction; a store
// created by WithTx uses the caller's transaction.
func (s *JobStore) Update(ctx context.Context, record jobcache.Record) (bool, error) {
	var (
		updated bool
		err     error
	)
	if db, ok := s.db.(*sql.DB); ok {
		err = store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			updated, err = updateLocked(ctx, tx, record)
			return err
		})
	} else {
		updated, err = updateLocked(ctx, s.db, record)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update job %s: %w", record.ID, err)
	}
	return updated, nil
}

func updateLocked(ctx context.Context, q store.DBTX, record jobcache.Record) (bool, error) {
	var current job.Status
	err := q.QueryRowContext(ctx,
		`SELECT status FROM generation_jobs WHERE id = $1 FOR UPDATE`,
		record.ID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, MapError(err)
	}

	if !current.CanTransitionTo(record.Status) {
		return false, &job.TransitionError{JobID: record.ID, From: current, To: record.Status}
	}

	result, err := q.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = $1, progress = $2, result = $3, error = $4,
			completed_at = $5, updated_at = $6
		WHERE id = $7
	`,
		string(record.Status),
		record.Progress,
		nullableJSON(record.Result),
		record.Error,
		nullableTime(record.CompletedAt),
		record.UpdatedAt.UTC(),
		record.ID,
	)
	if err != nil {
		return false, MapError(err)
	}
	return rowsAffected(result)
}

// UpdateProgress implements jobcache.Backend.
func (s *JobStore) UpdateProgress(ctx context.Context, id string, progress int, updatedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET progress = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, progress, updatedAt.UTC(), id, string(job.StatusProcessing))
	if err != nil {
		return false, MapError(err)
	}
	return rowsAffected(result)
}

// Delete implements jobcache.Backend.
func (s *JobStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM generation_jobs WHERE id = $1`, id)
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete job", "job_id", id, "error", err)
		return false, MapError(err)
	}
	return rowsAffected(result)
}

// List implements jobcache.Backend.
func (s *JobStore) List(ctx context.Context, namespace string) ([]jobcache.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM generation_jobs
		WHERE namespace = $1
		ORDER BY created_at ASC
	`, namespace)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []jobcache.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return records, nil
}

// Get returns the record for id or store.ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, id string) (jobcache.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jobcache.Record{}, fmt.Errorf("%w: %s", store.ErrJobNotFound, id)
	}
	return record, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (jobcache.Record, error) {
	var (
		record      jobcache.Record
		input       []byte
		result      []byte
		completedAt sql.NullTime
	)
	err := row.Scan(
		&record.ID,
		&record.Namespace,
		&record.Type,
		&input,
		&record.Status,
		&record.Progress,
		&result,
		&record.Error,
		&completedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, err
		}
		return record, fmt.Errorf("failed to scan job: %w", MapError(err))
	}

	record.Input = input
	if len(result) > 0 {
		record.Result = result
	}
	if completedAt.Valid {
		t := completedAt.Time
		record.CompletedAt = &t
	}
	return record, nil
}

func rowsAffected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
