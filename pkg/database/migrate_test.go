package database

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	return db
}

func TestMigrateAppliesInVersionOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	migrations := []Migration{
		{Version: 2, Description: "add column", SQL: `ALTER TABLE things ADD COLUMN name TEXT`},
		{Version: 1, Description: "create table", SQL: `CREATE TABLE things (id TEXT PRIMARY KEY)`},
	}

	require.NoError(t, Migrate(ctx, db, migrations))

	_, err := db.ExecContext(ctx, `INSERT INTO things (id, name) VALUES ('a', 'b')`)
	assert.NoError(t, err)
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	migrations := []Migration{
		{Version: 1, Description: "create table", SQL: `CREATE TABLE things (id TEXT PRIMARY KEY)`},
	}

	require.NoError(t, Migrate(ctx, db, migrations))
	// Re-running must not re-execute the DDL.
	require.NoError(t, Migrate(ctx, db, migrations))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMigrateReportsFailingMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := Migrate(ctx, db, []Migration{
		{Version: 1, Description: "broken", SQL: `CREATE TABL nope`},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1")

	// The failed version is not recorded.
	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 0, count)
}
