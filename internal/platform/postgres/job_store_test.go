package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/genqueue/internal/job"
	"github.com/phrazzld/genqueue/internal/jobcache"
	"github.com/phrazzld/genqueue/internal/store"
)

var recordColumns = []string{
	"id", "namespace", "type", "input", "status", "progress",
	"result", "error", "completed_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*JobStore, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewJobStore(db), db, mock
}

func testRecord(status job.Status) jobcache.Record {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return jobcache.Record{
		ID:        "1740830400000-abcdef123456",
		Namespace: job.DefaultNamespace,
		Type:      "image",
		Input:     []byte(`{"prompt":"x"}`),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobStore_Insert(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		s, _, mock := newMockStore(t)
		r := testRecord(job.StatusQueued)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
			WithArgs(r.ID, r.Namespace, r.Type, `{"prompt":"x"}`, "queued", 0, nil, "", nil, r.CreatedAt, r.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Insert(context.Background(), r))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate id", func(t *testing.T) {
		s, _, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

		err := s.Insert(context.Background(), testRecord(job.StatusQueued))
		assert.ErrorIs(t, err, store.ErrJobExists)
	})

	t.Run("check violation", func(t *testing.T) {
		s, _, mock := newMockStore(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generation_jobs")).
			WillReturnError(&pgconn.PgError{Code: checkViolationCode, ConstraintName: "generation_jobs_status_check"})

		record := testRecord(job.StatusQueued)
		err := s.Insert(context.Background(), record)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
		var opErr *store.OpError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "postgres", opErr.Backend)
		assert.Equal(t, "insert", opErr.Op)
		assert.Equal(t, record.ID, opErr.JobID)
	})
}

func TestJobStore_Update(t *testing.T) {
	t.Parallel()

	selectStatus := regexp.QuoteMeta("SELECT status FROM generation_jobs WHERE id = $1 FOR UPDATE")

	t.Run("forward transition", func(t *testing.T) {
		s, _, mock := newMockStore(t)
		r := testRecord(job.StatusProcessing)
		r.Progress = job.ProgressStarted

		mock.ExpectBegin()
		mock.ExpectQuery(selectStatus).WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("queued"))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs")).
			WithArgs("processing", 10, nil, "", nil, r.UpdatedAt, r.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		updated, err := s.Update(context.Background(), r)
		require.NoError(t, err)
		assert.True(t, updated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("backwards transition rolls back", func(t *testing.T) {
		s, _, mock := newMockStore(t)
		r := testRecord(job.StatusProcessing)

		mock.ExpectBegin()
		mock.ExpectQuery(selectStatus).WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
		mock.ExpectRollback()

		updated, err := s.Update(context.Background(), r)
		assert.False(t, updated)
		assert.ErrorIs(t, err, job.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing job", func(t *testing.T) {
		s, _, mock := newMockStore(t)
		r := testRecord(job.StatusProcessing)

		mock.ExpectBegin()
		mock.ExpectQuery(selectStatus).WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectCommit()

		updated, err := s.Update(context.Background(), r)
		require.NoError(t, err)
		assert.False(t, updated)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inside caller transaction", func(t *testing.T) {
		s, db, mock := newMockStore(t)
		completedAt := time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC)
		r := testRecord(job.StatusCompleted)
		r.Progress = 100
		r.Result = []byte(`{"url":"u"}`)
		r.CompletedAt = &completedAt

		mock.ExpectBegin()
		mock.ExpectQuery(selectStatus).WithArgs(r.ID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs")).
			WithArgs("completed", 100, `{"url":"u"}`, "", completedAt, r.UpdatedAt, r.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		require.NoError(t, err)
		updated, err := s.WithTx(tx).Update(context.Background(), r)
		require.NoError(t, err)
		assert.True(t, updated)
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestJobStore_UpdateProgress(t *testing.T) {
	t.Parallel()

	s, _, mock := newMockStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE generation_jobs")).
		WithArgs(40, now, "job-1", "processing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := s.UpdateProgress(context.Background(), "job-1", 40, now)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Delete(t *testing.T) {
	t.Parallel()

	s, _, mock := newMockStore(t)
	deleteQuery := regexp.QuoteMeta("DELETE FROM generation_jobs WHERE id = $1")

	mock.ExpectExec(deleteQuery).WithArgs("job-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteQuery).WithArgs("job-2").WillReturnError(errors.New("connection reset"))

	deleted, err := s.Delete(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Delete(context.Background(), "job-2")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_List(t *testing.T) {
	t.Parallel()

	s, _, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)

	rows := sqlmock.NewRows(recordColumns).
		AddRow("a", job.DefaultNamespace, "image", []byte(`{"prompt":"a"}`), "queued", 0, nil, "", nil, created, created).
		AddRow("b", job.DefaultNamespace, "image", []byte(`{"prompt":"b"}`), "completed", 100,
			[]byte(`{"url":"u"}`), "", completed, created, completed)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs")).
		WithArgs(job.DefaultNamespace).
		WillReturnRows(rows)

	records, err := s.List(context.Background(), job.DefaultNamespace)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, job.StatusQueued, records[0].Status)
	assert.Nil(t, records[0].Result)
	assert.Nil(t, records[0].CompletedAt)

	assert.Equal(t, job.StatusCompleted, records[1].Status)
	assert.JSONEq(t, `{"url":"u"}`, string(records[1].Result))
	require.NotNil(t, records[1].CompletedAt)
	assert.True(t, completed.Equal(*records[1].CompletedAt))
}

func TestJobStore_GetNotFound(t *testing.T) {
	t.Parallel()

	s, _, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}
