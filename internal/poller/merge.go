package poller

import (
	"github.com/sells-group/hotcalls-poller/internal/db"
)

type namedMerge struct {
	name string
	spec db.MergeSpec
}

// mergeSpecs returns the three keyed merges in execution order. Call
// attributes upsert; comments and unit counts only update existing rows.
func mergeSpecs() []namedMerge {
	return []namedMerge{
		{"merge_calls", db.MergeSpec{
			Target:  EvaluationTable,
			Source:  CallStagingTable,
			Keys:    eventKey,
			Columns: callColumns,
			Mode:    db.MergeUpsert,
		}},
		{"merge_comments", db.MergeSpec{
			Target:  EvaluationTable,
			Source:  CommentStagingTable,
			Keys:    eventKey,
			Columns: []string{"comments"},
			Mode:    db.MergeUpdate,
		}},
		{"merge_unit_counts", db.MergeSpec{
			Target:  EvaluationTable,
			Source:  UnitStagingTable,
			Keys:    eventKey,
			Match:   []string{"ag_id"},
			Columns: []string{"unit_count"},
			Mode:    db.MergeUpdate,
		}},
	}
}

func mergeStages() ([]Stage, error) {
	specs := mergeSpecs()
	stages := make([]Stage, 0, len(specs))
	for _, m := range specs {
		sql, err := m.spec.SQL()
		if err != nil {
			return nil, err
		}
		stages = append(stages, SQLStage(m.name, PhaseMerge, sql, nil))
	}
	return stages, nil
}
