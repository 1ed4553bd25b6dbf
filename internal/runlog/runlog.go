// Package runlog records one row per poller cycle in hc_poller_runs.
package runlog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotcalls-poller/internal/store"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry represents a row in hc_poller_runs.
type Entry struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	FailedStages []string         `json:"failed_stages,omitempty"`
	Rows         map[string]int64 `json:"rows,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Summary is the outcome of a cycle, passed to Finish.
type Summary struct {
	CompletedAt  time.Time
	FailedStages []string
	Rows         map[string]int64
	Error        string
}

// Log provides read/write access to the hc_poller_runs table.
type Log struct {
	handle store.Handle
	now    func() time.Time
}

// New creates a Log backed by h.
func New(h store.Handle) *Log {
	return &Log{handle: h, now: time.Now}
}

// Start records the beginning of a cycle and returns its ID.
func (l *Log) Start(ctx context.Context) (string, error) {
	id := uuid.NewString()
	err := l.handle.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO hc_poller_runs (id, started_at, status) VALUES ($1, $2, $3)`,
			id, formatTime(l.now()), StatusRunning,
		)
		return err
	})
	if err != nil {
		return "", eris.Wrap(err, "runlog: start run")
	}
	return id, nil
}

// Finish marks a run complete, or failed when any stage failed.
func (l *Log) Finish(ctx context.Context, id string, sum Summary) error {
	status := StatusComplete
	if len(sum.FailedStages) > 0 || sum.Error != "" {
		status = StatusFailed
	}

	var rowsJSON []byte
	if sum.Rows != nil {
		var err error
		rowsJSON, err = json.Marshal(sum.Rows)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal rows")
		}
	}
	completed := sum.CompletedAt
	if completed.IsZero() {
		completed = l.now()
	}

	err := l.handle.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE hc_poller_runs
			 SET status = $1, completed_at = $2, failed_stages = $3, rows_json = $4, error = $5
			 WHERE id = $6`,
			status, formatTime(completed), strings.Join(sum.FailedStages, ","), string(rowsJSON), sum.Error, id,
		)
		return err
	})
	if err != nil {
		return eris.Wrapf(err, "runlog: finish run %s", id)
	}
	return nil
}

// Recent returns up to limit runs, most recent first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var entries []Entry
	err := l.handle.InTx(ctx, func(tx store.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, status, started_at, COALESCE(completed_at, ''), failed_stages, COALESCE(rows_json, ''), COALESCE(error, '')
			 FROM hc_poller_runs ORDER BY started_at DESC LIMIT $1`,
			limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e                          Entry
				started, completed, failed string
				rowsJSON                   string
			)
			if err := rows.Scan(&e.ID, &e.Status, &started, &completed, &failed, &rowsJSON, &e.Error); err != nil {
				return err
			}
			if e.StartedAt, err = parseTime(started); err != nil {
				return err
			}
			if completed != "" {
				t, err := parseTime(completed)
				if err != nil {
					return err
				}
				e.CompletedAt = &t
			}
			if failed != "" {
				e.FailedStages = strings.Split(failed, ",")
			}
			if rowsJSON != "" {
				_ = json.Unmarshal([]byte(rowsJSON), &e.Rows)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	return entries, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically on
// both backends.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "runlog: parse time %q", s)
	}
	return t, nil
}
