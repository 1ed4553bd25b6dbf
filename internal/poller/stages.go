package poller

import (
	"github.com/sells-group/hotcalls-poller/internal/sanitize"
)

// Stages returns the full cycle in execution order.
func Stages(opts Options, san *sanitize.Sanitizer) ([]Stage, error) {
	merges, err := mergeStages()
	if err != nil {
		return nil, err
	}

	stages := []Stage{
		TruncateStage("reset_calls", PhaseReset, CallStagingTable),
		TruncateStage("reset_comments", PhaseReset, CommentStagingTable),
		TruncateStage("reset_unit_counts", PhaseReset, UnitStagingTable),
		stageCalls(),
		stageComments(san),
		stageUnitCounts(opts.ArrivedStatus),
	}
	stages = append(stages, merges...)
	stages = append(stages,
		TruncateStage("clean_calls", PhaseClean, CallStagingTable),
		TruncateStage("clean_comments", PhaseClean, CommentStagingTable),
		TruncateStage("clean_unit_counts", PhaseClean, UnitStagingTable),
		sweepClosed(),
		sweepAged(),
	)
	return stages, nil
}
