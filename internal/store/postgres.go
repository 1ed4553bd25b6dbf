package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/config"
	"github.com/sells-group/hotcalls-poller/internal/db"
)

// Postgres implements Handle using pgxpool.
type Postgres struct {
	pool db.Pool
}

// NewPostgres creates a Postgres handle with a small connection pool. The
// poller runs one stage at a time, so maxConns rarely needs to exceed 2.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = 0
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (or a pgxmock pool in tests).
func NewPostgresFromPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Driver implements Handle.
func (p *Postgres) Driver() string { return config.DriverPostgres }

// InTx implements Handle.
func (p *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}

	done := false
	defer func() {
		if done {
			return
		}
		// The stage context may already be past its deadline.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			zap.L().Warn("postgres: rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	// pgx closes the transaction whether or not Commit succeeds.
	err = tx.Commit(ctx)
	done = true
	if err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

// Ping implements Handle.
func (p *Postgres) Ping(ctx context.Context) error {
	return eris.Wrap(p.pool.Ping(ctx), "postgres: ping")
}

// Close implements Handle.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *pgTx) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return db.CopyFrom(ctx, t.tx, table, columns, rows)
}

func (t *pgTx) Truncate(ctx context.Context, table string) error {
	_, err := t.tx.Exec(ctx, "TRUNCATE TABLE "+db.Identifier(table).Sanitize())
	return eris.Wrapf(err, "postgres: truncate %s", table)
}
