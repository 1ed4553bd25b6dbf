package poller

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotcalls-poller/internal/sanitize"
	"github.com/sells-group/hotcalls-poller/internal/store"
)

const stageCallsSQL = `INSERT INTO hc_curent_temp
	(eid, ag_id, tycod, sub_tycod, ad_ts, udts, xdts, num_1, estnum, edirpre, efeanme, efeatyp, xstreet1, xstreet2, esz)
SELECT DISTINCT a.eid, a.ag_id, a.tycod, a.sub_tycod, a.ad_ts, a.udts, a.xdts, a.num_1,
	c.estnum, c.edirpre, c.efeanme, c.efeatyp, c.xstreet1, c.xstreet2, a.esz
FROM agency_event a
JOIN common_event c ON a.eid = c.eid
WHERE a.ad_ts > $1
	AND NOT EXISTS (
		SELECT 1 FROM hc_curent_temp t
		WHERE t.eid = a.eid AND t.num_1 = a.num_1 AND t.ad_ts = a.ad_ts
	)`

const commentLinesSQL = `SELECT DISTINCT a.eid, a.num_1, a.ad_ts, e.cdts, e.lin_grp, e.lin_ord, e.comm
FROM agency_event a
JOIN evcom e ON a.eid = e.eid
WHERE a.ad_ts > $1
	AND e.comm_key = 0
	AND e.comm IS NOT NULL
	AND NOT EXISTS (
		SELECT 1 FROM hc_comment_temp t
		WHERE t.eid = a.eid AND t.num_1 = a.num_1 AND t.ad_ts = a.ad_ts
	)
ORDER BY a.eid, a.num_1, a.ad_ts, e.cdts, e.lin_grp, e.lin_ord`

const stageUnitCountsSQL = `INSERT INTO hc_unitcount_temp (eid, num_1, ag_id, ad_ts, unit_count)
SELECT a.eid, a.num_1, a.ag_id, a.ad_ts, COUNT(DISTINCT u.unid)
FROM agency_event a
JOIN un_hi u ON a.eid = u.eid AND a.num_1 = u.num_1 AND a.ag_id = u.ag_id
WHERE a.ad_ts > $1
	AND u.unit_status = $2
GROUP BY a.eid, a.num_1, a.ag_id, a.ad_ts`

func stageCalls() Stage {
	return SQLStage("stage_calls", PhaseExtract, stageCallsSQL, func(w Window) []any {
		return []any{w.Calls}
	})
}

func stageUnitCounts(arrived string) Stage {
	return SQLStage("stage_unit_counts", PhaseExtract, stageUnitCountsSQL, func(w Window) []any {
		return []any{w.Units, arrived}
	})
}

// key identifies one event's comment thread.
type key struct {
	eid  int64
	num1 string
	adTS string
}

// commentThread is the ordered raw lines of one event.
type commentThread struct {
	key   key
	lines []string
}

// stageComments reads comment lines in (cdts, lin_grp, lin_ord) order per
// event, sanitizes each thread and stages one blob per event that keeps at
// least one line.
func stageComments(san *sanitize.Sanitizer) Stage {
	return Stage{
		Name:  "stage_comments",
		Phase: PhaseExtract,
		Run: func(ctx context.Context, tx store.Tx, w Window) (int64, error) {
			threads, err := readCommentThreads(ctx, tx, w.Comments)
			if err != nil {
				return 0, err
			}

			rows := make([][]any, 0, len(threads))
			for _, th := range threads {
				blob, ok := san.Blob(th.lines)
				if !ok {
					continue
				}
				rows = append(rows, []any{th.key.eid, th.key.num1, th.key.adTS, blob})
			}
			return tx.BulkInsert(ctx, CommentStagingTable, commentColumns, rows)
		},
	}
}

// readCommentThreads drains the comment query before returning so the
// connection is free for the staging insert.
func readCommentThreads(ctx context.Context, tx store.Tx, cutoff string) ([]commentThread, error) {
	rows, err := tx.Query(ctx, commentLinesSQL, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "query comment lines")
	}
	defer rows.Close()

	var threads []commentThread
	for rows.Next() {
		var (
			k              key
			cdts, comm     string
			linGrp, linOrd int64
		)
		if err := rows.Scan(&k.eid, &k.num1, &k.adTS, &cdts, &linGrp, &linOrd, &comm); err != nil {
			return nil, eris.Wrap(err, "scan comment line")
		}
		if n := len(threads); n == 0 || threads[n-1].key != k {
			threads = append(threads, commentThread{key: k})
		}
		last := &threads[len(threads)-1]
		last.lines = append(last.lines, comm)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterate comment lines")
	}
	return threads, nil
}
