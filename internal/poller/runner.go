package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/sanitize"
	"github.com/sells-group/hotcalls-poller/internal/store"
)

// Reporter receives stage failures. Implementations must not block the
// cycle for long and must never panic.
type Reporter interface {
	Report(ctx context.Context, stage string, err error)
}

// Runner executes the stage list once per RunCycle call.
type Runner struct {
	handle   store.Handle
	reporter Reporter
	opts     Options
	stages   []Stage
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock overrides the cycle clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithStages replaces the default stage list.
func WithStages(stages ...Stage) RunnerOption {
	return func(r *Runner) { r.stages = stages }
}

// NewRunner creates a runner over h. reporter may be nil.
func NewRunner(h store.Handle, reporter Reporter, opts Options, ropts ...RunnerOption) (*Runner, error) {
	if opts.StageTimeout <= 0 {
		return nil, eris.New("poller: stage timeout must be positive")
	}

	san := sanitize.New(
		sanitize.WithMaxRunes(opts.CommentMaxRunes),
		sanitize.WithSeparator(opts.CommentSeparator),
	)
	stages, err := Stages(opts, san)
	if err != nil {
		return nil, eris.Wrap(err, "poller: build stages")
	}

	r := &Runner{
		handle:   h,
		reporter: reporter,
		opts:     opts,
		stages:   stages,
		now:      time.Now,
	}
	for _, o := range ropts {
		o(r)
	}
	return r, nil
}

// Stages returns the stages in execution order.
func (r *Runner) Stages() []Stage {
	return r.stages
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string
	Phase    Phase
	Rows     int64
	Duration time.Duration
	Err      error
}

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	Started  time.Time
	Finished time.Time
	Window   Window
	Stages   []StageResult
}

// Failed returns the names of failed stages in execution order.
func (c *CycleResult) Failed() []string {
	var out []string
	for _, s := range c.Stages {
		if s.Err != nil {
			out = append(out, s.Name)
		}
	}
	return out
}

// Rows returns rows affected per successful stage.
func (c *CycleResult) Rows() map[string]int64 {
	out := make(map[string]int64, len(c.Stages))
	for _, s := range c.Stages {
		if s.Err == nil {
			out[s.Name] = s.Rows
		}
	}
	return out
}

// Err summarizes stage failures, or returns nil when every stage succeeded.
func (c *CycleResult) Err() error {
	failed := c.Failed()
	if len(failed) == 0 {
		return nil
	}
	return eris.Errorf("poller: %d of %d stages failed: %s", len(failed), len(c.Stages), strings.Join(failed, ", "))
}

// RunCycle executes every stage exactly once, in order. A failing stage is
// rolled back and reported; the remaining stages still run. RunCycle stops
// early only when ctx itself is done.
func (r *Runner) RunCycle(ctx context.Context) *CycleResult {
	log := zap.L().With(zap.String("component", "poller.cycle"))

	started := r.now()
	res := &CycleResult{
		Started: started,
		Window:  r.opts.Window(started),
	}

	log.Info("cycle starting",
		zap.String("call_cutoff", res.Window.Calls),
		zap.String("unit_cutoff", res.Window.Units),
		zap.String("expiry_cutoff", res.Window.Expiry),
		zap.Int("stages", len(r.stages)),
	)

	for _, s := range r.stages {
		if ctx.Err() != nil {
			log.Warn("cycle cancelled", zap.String("next_stage", s.Name), zap.Error(ctx.Err()))
			break
		}
		res.Stages = append(res.Stages, r.runStage(ctx, s, res.Window))
	}

	res.Finished = r.now()
	log.Info("cycle complete",
		zap.Int("failed", len(res.Failed())),
		zap.Duration("elapsed", res.Finished.Sub(res.Started)),
	)
	return res
}

func (r *Runner) runStage(ctx context.Context, s Stage, w Window) StageResult {
	log := zap.L().With(
		zap.String("component", "poller.cycle"),
		zap.String("stage", s.Name),
		zap.String("phase", string(s.Phase)),
	)

	res := StageResult{Name: s.Name, Phase: s.Phase}
	start := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, r.opts.StageTimeout)
	defer cancel()

	var rows int64
	err := r.guard(func() error {
		return r.handle.InTx(stageCtx, func(tx store.Tx) error {
			n, err := s.Run(stageCtx, tx, w)
			rows = n
			return err
		})
	})
	res.Duration = time.Since(start)

	if err != nil {
		res.Err = eris.Wrapf(err, "poller: %s", s.Name)
		log.Error("stage failed", zap.Error(res.Err), zap.Duration("elapsed", res.Duration))
		if r.reporter != nil {
			r.reporter.Report(ctx, s.Name, res.Err)
		}
		return res
	}

	res.Rows = rows
	log.Debug("stage complete", zap.Int64("rows", rows), zap.Duration("elapsed", res.Duration))
	return res
}

// guard converts a panic in fn into an error.
func (r *Runner) guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return fn()
}

// PanicError is a recovered stage panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
