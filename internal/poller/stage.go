package poller

import (
	"context"

	"github.com/sells-group/hotcalls-poller/internal/store"
)

// Phase groups stages by their role in the cycle.
type Phase string

// Cycle phases, in execution order.
const (
	PhaseReset   Phase = "reset"
	PhaseExtract Phase = "extract"
	PhaseMerge   Phase = "merge"
	PhaseClean   Phase = "clean"
	PhaseSweep   Phase = "sweep"
)

// Stage is one transactional step of the cycle. Run executes inside a
// transaction owned by the runner and returns the number of rows it touched.
type Stage struct {
	Name  string
	Phase Phase
	Run   func(ctx context.Context, tx store.Tx, w Window) (int64, error)
}

// SQLStage builds a stage that executes a single statement. args derives the
// bind parameters from the cycle window and may be nil.
func SQLStage(name string, phase Phase, query string, args func(Window) []any) Stage {
	return Stage{
		Name:  name,
		Phase: phase,
		Run: func(ctx context.Context, tx store.Tx, w Window) (int64, error) {
			var bind []any
			if args != nil {
				bind = args(w)
			}
			return tx.Exec(ctx, query, bind...)
		},
	}
}

// TruncateStage builds a stage that empties tables in one transaction.
func TruncateStage(name string, phase Phase, tables ...string) Stage {
	return Stage{
		Name:  name,
		Phase: phase,
		Run: func(ctx context.Context, tx store.Tx, _ Window) (int64, error) {
			for _, t := range tables {
				if err := tx.Truncate(ctx, t); err != nil {
					return 0, err
				}
			}
			return 0, nil
		},
	}
}
