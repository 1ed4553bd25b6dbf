// Package store provides the transactional data-store handle shared by every
// poller stage. Postgres is the production backend; SQLite backs local runs
// and end-to-end tests. Both speak the same SQL with $N placeholders.
package store

import (
	"context"
)

// Handle is an open data store. Each call to InTx acquires a connection for
// exactly one transaction and releases it on every exit path.
type Handle interface {
	// Driver reports the backend name ("postgres" or "sqlite").
	Driver() string
	// InTx runs fn in a single read-committed transaction. The transaction
	// commits when fn returns nil and rolls back otherwise, including on panic.
	InTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the statement surface available inside a transaction.
type Tx interface {
	// Exec runs a statement and returns the number of rows it affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	// BulkInsert appends rows to table. Postgres uses COPY.
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Truncate empties a table structurally.
	Truncate(ctx context.Context, table string) error
}

// Rows is a forward-only result cursor. pgx.Rows satisfies it directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}
