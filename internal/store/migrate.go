package store

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// migrationLockID serializes concurrent migrate runs on Postgres.
const migrationLockID = 48151623

const createMigrationTable = `CREATE TABLE IF NOT EXISTS hc_schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// Migrate runs all pending SQL migrations for the handle's driver in
// lexicographic order, one transaction per file.
func Migrate(ctx context.Context, h Handle) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("driver", h.Driver()))

	names, err := migrationFiles(h.Driver())
	if err != nil {
		return err
	}

	if err := h.InTx(ctx, func(tx Tx) error {
		_, err := tx.Exec(ctx, createMigrationTable)
		return err
	}); err != nil {
		return eris.Wrap(err, "store: ensure migration table")
	}

	applied, err := appliedMigrations(ctx, h)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile(path.Join("migrations", h.Driver(), name))
		if err != nil {
			return eris.Wrapf(err, "store: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		err = h.InTx(ctx, func(tx Tx) error {
			if h.Driver() == config.DriverPostgres {
				if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrationLockID)); err != nil {
					return eris.Wrap(err, "acquire migration lock")
				}
			}
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO hc_schema_migrations (filename, applied_at) VALUES ($1, $2) ON CONFLICT (filename) DO NOTHING",
				name, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return eris.Wrapf(err, "store: apply migration %s", name)
		}

		log.Info("migration applied", zap.String("file", name))
	}

	return nil
}

// migrationFiles returns the sorted migration filenames for a driver.
func migrationFiles(driver string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, path.Join("migrations", driver))
	if err != nil {
		return nil, eris.Wrapf(err, "store: no migrations for driver %q", driver)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// appliedMigrations returns the set of already-applied migration filenames.
func appliedMigrations(ctx context.Context, h Handle) (map[string]bool, error) {
	applied := make(map[string]bool)
	err := h.InTx(ctx, func(tx Tx) error {
		rows, err := tx.Query(ctx, "SELECT filename FROM hc_schema_migrations")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			applied[name] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, eris.Wrap(err, "store: query applied migrations")
	}
	return applied, nil
}
