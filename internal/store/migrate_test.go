package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectMigrationTable(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS hc_schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()
}

func expectApplied(mock pgxmock.PgxPoolIface, names ...string) {
	rows := pgxmock.NewRows([]string{"filename"})
	for _, n := range names {
		rows.AddRow(n)
	}
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery("SELECT filename FROM hc_schema_migrations").WillReturnRows(rows)
	mock.ExpectCommit()
}

func expectApply(mock pgxmock.PgxPoolIface, name string) {
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(migrationLockID)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(".*").WillReturnResult(pgxmock.NewResult("EXEC", 0))
	mock.ExpectExec("INSERT INTO hc_schema_migrations").
		WithArgs(name, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func TestMigrationFiles(t *testing.T) {
	pg, err := migrationFiles("postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_evaluation.sql", "002_staging.sql", "003_runlog.sql"}, pg)

	lite, err := migrationFiles("sqlite")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_archive.sql", "002_evaluation.sql", "003_staging.sql", "004_runlog.sql"}, lite)

	_, err = migrationFiles("oracle")
	assert.Error(t, err)
}

func TestMigrate_Postgres_FreshDB(t *testing.T) {
	p, mock := newMockPostgres(t)
	names, err := migrationFiles("postgres")
	require.NoError(t, err)

	expectMigrationTable(mock)
	expectApplied(mock)
	for _, name := range names {
		expectApply(mock, name)
	}

	require.NoError(t, Migrate(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Postgres_SomeApplied(t *testing.T) {
	p, mock := newMockPostgres(t)
	names, err := migrationFiles("postgres")
	require.NoError(t, err)

	expectMigrationTable(mock)
	expectApplied(mock, names[:2]...)
	for _, name := range names[2:] {
		expectApply(mock, name)
	}

	require.NoError(t, Migrate(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Postgres_AllApplied(t *testing.T) {
	p, mock := newMockPostgres(t)
	names, err := migrationFiles("postgres")
	require.NoError(t, err)

	expectMigrationTable(mock)
	expectApplied(mock, names...)

	require.NoError(t, Migrate(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Postgres_ApplyError(t *testing.T) {
	p, mock := newMockPostgres(t)

	expectMigrationTable(mock)
	expectApplied(mock)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(migrationLockID)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(".*").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := Migrate(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: apply migration 001_evaluation.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Postgres_EnsureTableError(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS hc_schema_migrations").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := Migrate(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store: ensure migration table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SQLite_Idempotent(t *testing.T) {
	st := newTestSQLite(t)

	// Second run applies nothing and leaves the bookkeeping intact.
	require.NoError(t, Migrate(context.Background(), st))
	assert.Equal(t, 4, countRows(t, st, "hc_schema_migrations"))

	for _, table := range []string{
		"agency_event", "common_event", "evcom", "un_hi",
		"jc_hc_curent", "hc_curent_temp", "hc_comment_temp", "hc_unitcount_temp",
		"hc_poller_runs",
	} {
		assert.Equal(t, 0, countRows(t, st, table), table)
	}
}
