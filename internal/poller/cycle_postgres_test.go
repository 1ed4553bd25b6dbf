package poller

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotcalls-poller/internal/store"
)

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func newMockRunner(t *testing.T, rep Reporter) (*Runner, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	r, err := NewRunner(store.NewPostgresFromPool(mock), rep, DefaultOptions(), WithClock(fixedClock))
	require.NoError(t, err)
	return r, mock
}

func expectTruncate(mock pgxmock.PgxPoolIface, tables ...string) {
	mock.ExpectBeginTx(readCommitted)
	for _, table := range tables {
		mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "` + table + `"`)).
			WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	}
	mock.ExpectCommit()
}

func expectReset(mock pgxmock.PgxPoolIface) {
	expectTruncate(mock, "hc_curent_temp")
	expectTruncate(mock, "hc_comment_temp")
	expectTruncate(mock, "hc_unitcount_temp")
}

func expectExecStage(mock pgxmock.PgxPoolIface, prefix string, rows int64, args ...any) {
	mock.ExpectBeginTx(readCommitted)
	e := mock.ExpectExec(regexp.QuoteMeta(prefix))
	if len(args) > 0 {
		e = e.WithArgs(args...)
	}
	e.WillReturnResult(pgxmock.NewResult("EXEC", rows))
	mock.ExpectCommit()
}

func expectExtract(mock pgxmock.PgxPoolIface) {
	expectExecStage(mock, "INSERT INTO hc_curent_temp", 1, "20240301175200")

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT a.eid, a.num_1, a.ad_ts, e.cdts")).
		WithArgs("20240301175200").
		WillReturnRows(pgxmock.NewRows([]string{"eid", "num_1", "ad_ts", "cdts", "lin_grp", "lin_ord", "comm"}).
			AddRow(int64(1001), "P24000001", "20240301175800", "20240301175810", int64(1), int64(1), "SMOKE SHOWING ").
			AddRow(int64(1001), "P24000001", "20240301175800", "20240301175810", int64(1), int64(2), "ENR:").
			AddRow(int64(1001), "P24000001", "20240301175800", "20240301175830", int64(1), int64(1), "FROM ROOF"))
	mock.ExpectCopyFrom(pgx.Identifier{"hc_comment_temp"}, []string{"eid", "num_1", "ad_ts", "comments"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	expectExecStage(mock, "INSERT INTO hc_unitcount_temp", 1, "20240301173500", "AR")
}

func expectCleanAndSweep(mock pgxmock.PgxPoolIface) {
	expectTruncate(mock, "hc_curent_temp")
	expectTruncate(mock, "hc_comment_temp")
	expectTruncate(mock, "hc_unitcount_temp")
	expectExecStage(mock, "DELETE FROM jc_hc_curent WHERE xdts IS NOT NULL", 0)
	expectExecStage(mock, "DELETE FROM jc_hc_curent WHERE substr(ad_ts, 1, 14) < $1", 3, "20240301160000")
}

func TestCycle_Postgres_AllStages(t *testing.T) {
	rep := &fakeReporter{}
	r, mock := newMockRunner(t, rep)

	expectReset(mock)
	expectExtract(mock)
	expectExecStage(mock, `INSERT INTO "jc_hc_curent"`, 1)
	expectExecStage(mock, `UPDATE "jc_hc_curent" AS cur SET "comments"`, 1)
	expectExecStage(mock, `UPDATE "jc_hc_curent" AS cur SET "unit_count"`, 1)
	expectCleanAndSweep(mock)

	res := r.RunCycle(context.Background())

	assert.NoError(t, res.Err())
	assert.Empty(t, rep.stages())
	assert.Equal(t, int64(1), res.Rows()["stage_comments"])
	assert.Equal(t, int64(3), res.Rows()["sweep_aged"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycle_Postgres_CommentMergeFailureIsIsolated(t *testing.T) {
	rep := &fakeReporter{}
	r, mock := newMockRunner(t, rep)

	expectReset(mock)
	expectExtract(mock)
	expectExecStage(mock, `INSERT INTO "jc_hc_curent"`, 1)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "jc_hc_curent" AS cur SET "comments"`)).
		WillReturnError(errors.New("could not serialize access due to concurrent update"))
	mock.ExpectRollback()

	expectExecStage(mock, `UPDATE "jc_hc_curent" AS cur SET "unit_count"`, 1)
	expectCleanAndSweep(mock)

	res := r.RunCycle(context.Background())

	assert.Equal(t, []string{"merge_comments"}, res.Failed())
	assert.Equal(t, []string{"merge_comments"}, rep.stages())
	assert.Equal(t, int64(1), res.Rows()["merge_calls"])
	assert.Equal(t, int64(1), res.Rows()["merge_unit_counts"])
	assert.Len(t, res.Stages, 14)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycle_Postgres_ExtractFailureStillCleans(t *testing.T) {
	rep := &fakeReporter{}
	r, mock := newMockRunner(t, rep)

	expectReset(mock)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hc_curent_temp")).
		WithArgs("20240301175200").
		WillReturnError(errors.New("relation \"agency_event\" does not exist"))
	mock.ExpectRollback()

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT a.eid")).
		WithArgs("20240301175200").
		WillReturnRows(pgxmock.NewRows([]string{"eid", "num_1", "ad_ts", "cdts", "lin_grp", "lin_ord", "comm"}))
	mock.ExpectCommit()

	expectExecStage(mock, "INSERT INTO hc_unitcount_temp", 0, "20240301173500", "AR")
	expectExecStage(mock, `INSERT INTO "jc_hc_curent"`, 0)
	expectExecStage(mock, `UPDATE "jc_hc_curent" AS cur SET "comments"`, 0)
	expectExecStage(mock, `UPDATE "jc_hc_curent" AS cur SET "unit_count"`, 0)
	expectCleanAndSweep(mock)

	res := r.RunCycle(context.Background())

	assert.Equal(t, []string{"stage_calls"}, res.Failed())
	assert.Equal(t, []string{"stage_calls"}, rep.stages())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCycle_Postgres_ResetFailureIsPerTable(t *testing.T) {
	rep := &fakeReporter{}
	full, mock := newMockRunner(t, rep)
	r, err := NewRunner(store.NewPostgresFromPool(mock), rep, DefaultOptions(),
		WithClock(fixedClock), WithStages(full.Stages()[:3]...))
	require.NoError(t, err)

	expectTruncate(mock, "hc_curent_temp")
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(regexp.QuoteMeta(`TRUNCATE TABLE "hc_comment_temp"`)).
		WillReturnError(errors.New(`relation "hc_comment_temp" does not exist`))
	mock.ExpectRollback()
	expectTruncate(mock, "hc_unitcount_temp")

	res := r.RunCycle(context.Background())

	assert.Equal(t, []string{"reset_comments"}, res.Failed())
	assert.Equal(t, []string{"reset_comments"}, rep.stages())
	assert.Contains(t, res.Rows(), "reset_calls")
	assert.Contains(t, res.Rows(), "reset_unit_counts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
