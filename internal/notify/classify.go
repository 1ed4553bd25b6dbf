// Package notify records stage failures to the append-only error log and
// alerts the operator distribution list.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// Kind classifies a failure. Recovery is the same for every kind; the
// classification only changes how the alert reads.
type Kind string

const (
	// KindDataStore covers connectivity, constraint and timeout failures
	// raised by the database.
	KindDataStore Kind = "data_store"
	// KindUnexpected is everything else, including recovered panics.
	KindUnexpected Kind = "unexpected"
)

// Classify inspects the error chain.
func Classify(err error) Kind {
	kind, _ := classify(err)
	return kind
}

// classify returns the kind and, for database errors, the driver's code.
func classify(err error) (Kind, string) {
	if err == nil {
		return KindUnexpected, ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return KindDataStore, pgErr.Code
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return KindDataStore, strconv.Itoa(liteErr.Code())
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindDataStore, ""
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return KindDataStore, ""
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return KindDataStore, ""
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindDataStore, ""
	}
	return KindUnexpected, ""
}
