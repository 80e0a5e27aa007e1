package testdb

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestDatabaseURL(t *testing.T) {
	t.Setenv("GENQUEUE_TEST_DB_URL", "")
	t.Setenv("DATABASE_URL", "")
	assert.Empty(t, GetTestDatabaseURL())
	assert.False(t, IsIntegrationTestEnvironment())

	t.Setenv("DATABASE_URL", "postgres://fallback")
	assert.Equal(t, "postgres://fallback", GetTestDatabaseURL())

	t.Setenv("GENQUEUE_TEST_DB_URL", "postgres://preferred")
	assert.Equal(t, "postgres://preferred", GetTestDatabaseURL())
	assert.True(t, IsIntegrationTestEnvironment())
}

func TestWithTxRollsBack(t *testing.T) {
	db := GetTestDB(t)

	WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		_, err := tx.Exec(`CREATE TEMP TABLE testdb_probe (id int) ON COMMIT DROP`)
		require.NoError(t, err)
	})

	var exists bool
	err := db.QueryRow(`SELECT to_regclass('pg_temp.testdb_probe') IS NOT NULL`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)
}
