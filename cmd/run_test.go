package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotcalls-poller/internal/config"
	"github.com/sells-group/hotcalls-poller/internal/resilience"
	"github.com/sells-group/hotcalls-poller/internal/runlog"
	"github.com/sells-group/hotcalls-poller/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{}
	c.Store = config.StoreConfig{Driver: config.DriverSQLite, DatabaseURL: filepath.Join(dir, "hotcalls.db")}
	c.Poller = config.PollerConfig{
		CallWindowMins:    8,
		CommentWindowMins: 8,
		UnitWindowMins:    25,
		MaxAgeMins:        120,
		CommentMaxChars:   4000,
		StageTimeoutSecs:  10,
		Timezone:          "UTC",
		ArrivedStatus:     "AR",
	}
	c.ErrorLog.Path = filepath.Join(dir, "errors.log")
	c.Notify.SubjectPrefix = "Hot Calls Poller"
	c.Notify.TimeoutSecs = 2
	return c
}

func sqliteOpener(c *config.Config) func(context.Context) (store.Handle, error) {
	return func(ctx context.Context) (store.Handle, error) {
		return openStore(ctx, c.Store, resilience.Policy{Attempts: 1})
	}
}

func recentRuns(t *testing.T, c *config.Config) []runlog.Entry {
	t.Helper()
	st, err := store.NewSQLite(c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	entries, err := runlog.New(st).Recent(context.Background(), 10)
	require.NoError(t, err)
	return entries
}

func TestRunOnce_EmptyArchive(t *testing.T) {
	c := testConfig(t)

	err := runOnce(context.Background(), c, sqliteOpener(c), true)
	require.NoError(t, err)

	entries := recentRuns(t, c)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.StatusComplete, entries[0].Status)
	assert.Len(t, entries[0].Rows, 14)
	assert.Empty(t, entries[0].FailedStages)

	data, err := os.ReadFile(c.ErrorLog.Path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRunOnce_StageFailureAlertsAndFails(t *testing.T) {
	c := testConfig(t)

	var alerts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alerts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	c.Notify.WebhookURL = srv.URL

	// Migrate, then break the comment staging table.
	st, err := store.NewSQLite(c.Store.DatabaseURL)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background(), st))
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.Exec(context.Background(), "DROP TABLE hc_comment_temp")
		return err
	}))
	require.NoError(t, st.Close())

	err = runOnce(context.Background(), c, sqliteOpener(c), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stages failed")

	entries := recentRuns(t, c)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, runlog.StatusFailed, e.Status)
	assert.Equal(t, []string{"reset_comments", "stage_comments", "merge_comments", "clean_comments"}, e.FailedStages)
	assert.Contains(t, e.Rows, "merge_calls")
	assert.Contains(t, e.Rows, "sweep_aged")

	assert.Equal(t, int32(4), alerts.Load())

	data, err := os.ReadFile(c.ErrorLog.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "merge_comments")
	assert.Contains(t, string(data), "hc_comment_temp")
}

func TestRunOnce_ConnectFailure(t *testing.T) {
	c := testConfig(t)
	open := func(context.Context) (store.Handle, error) {
		return nil, errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
	}

	err := runOnce(context.Background(), c, open, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run: connect")

	data, err := os.ReadFile(c.ErrorLog.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "connect")
	assert.Contains(t, string(data), "connection refused")
}

func TestRunOnce_RunLogMissingDoesNotFail(t *testing.T) {
	c := testConfig(t)

	st, err := store.NewSQLite(c.Store.DatabaseURL)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background(), st))
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.Exec(context.Background(), "DROP TABLE hc_poller_runs")
		return err
	}))
	require.NoError(t, st.Close())

	assert.NoError(t, runOnce(context.Background(), c, sqliteOpener(c), false))
}

func TestRunOnce_ErrorLogUnavailableStillRuns(t *testing.T) {
	c := testConfig(t)
	c.ErrorLog.Path = filepath.Join(t.TempDir(), "missing", "errors.log")
	c.Notify.URLs = []string{"nosuchservice://alerts"}

	err := runOnce(context.Background(), c, sqliteOpener(c), true)
	require.NoError(t, err)

	entries := recentRuns(t, c)
	require.Len(t, entries, 1)
	assert.Equal(t, runlog.StatusComplete, entries[0].Status)
	assert.Len(t, entries[0].Rows, 14)

	_, statErr := os.Stat(c.ErrorLog.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunOnce_SetupFailureIsReported(t *testing.T) {
	c := testConfig(t)
	c.Poller.Timezone = "Nowhere/Special"

	err := runOnce(context.Background(), c, sqliteOpener(c), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run: poller options")

	data, err := os.ReadFile(c.ErrorLog.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "setup")
	assert.Contains(t, string(data), "Nowhere/Special")
}
