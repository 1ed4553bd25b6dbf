package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hotcalls-poller/internal/config"
	"github.com/sells-group/hotcalls-poller/internal/db"
)

// SQLite implements Handle using modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer; pragmas below are per connection.
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: sqlDB}, nil
}

// Driver implements Handle.
func (s *SQLite) Driver() string { return config.DriverSQLite }

// InTx implements Handle.
func (s *SQLite) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}

	done := false
	defer func() {
		if !done {
			tx.Rollback() //nolint:errcheck
		}
	}()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	err = tx.Commit()
	done = true
	if err != nil {
		return eris.Wrap(err, "sqlite: commit tx")
	}
	return nil
}

// Ping implements Handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close implements Handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqliteTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (t *sqliteTx) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = db.Identifier(c).Sanitize()
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		db.Identifier(table).Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(marks, ", "),
	))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert into %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert into %s", table)
		}
		n++
	}
	return n, nil
}

func (t *sqliteTx) Truncate(ctx context.Context, table string) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM "+db.Identifier(table).Sanitize())
	return eris.Wrapf(err, "sqlite: truncate %s", table)
}

// sqlRows adapts *sql.Rows to Rows.
type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	r.Rows.Close() //nolint:errcheck
}
