// Package poller runs one collect, stage, merge, purge and expire cycle
// against the dispatch archive and the hot-calls evaluation table.
package poller

import (
	"time"

	"github.com/sells-group/hotcalls-poller/internal/config"
	"github.com/sells-group/hotcalls-poller/internal/sanitize"
)

// TimestampLayout is the fixed-width archive timestamp format (YYYYMMDDHH24MISS).
const TimestampLayout = "20060102150405"

// Options tunes a cycle.
type Options struct {
	CallWindow       time.Duration
	CommentWindow    time.Duration
	UnitWindow       time.Duration
	MaxAge           time.Duration
	StageTimeout     time.Duration
	Location         *time.Location
	ArrivedStatus    string
	CommentMaxRunes  int
	CommentSeparator string
}

// DefaultOptions returns the production windows in UTC.
func DefaultOptions() Options {
	return Options{
		CallWindow:      8 * time.Minute,
		CommentWindow:   8 * time.Minute,
		UnitWindow:      25 * time.Minute,
		MaxAge:          2 * time.Hour,
		StageTimeout:    60 * time.Second,
		Location:        time.UTC,
		ArrivedStatus:   "AR",
		CommentMaxRunes: sanitize.DefaultMaxRunes,
	}
}

// OptionsFromConfig converts validated poller config into Options.
func OptionsFromConfig(cfg config.PollerConfig) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		CallWindow:       cfg.CallWindow(),
		CommentWindow:    cfg.CommentWindow(),
		UnitWindow:       cfg.UnitWindow(),
		MaxAge:           cfg.MaxAge(),
		StageTimeout:     cfg.StageTimeout(),
		Location:         loc,
		ArrivedStatus:    cfg.ArrivedStatus,
		CommentMaxRunes:  cfg.CommentMaxChars,
		CommentSeparator: cfg.CommentSeparator,
	}, nil
}

// Window holds the archive cutoffs for one cycle, all derived from the
// same instant.
type Window struct {
	Now      time.Time
	Calls    string // ad_ts lower bound for call attributes
	Comments string // ad_ts lower bound for comment lines
	Units    string // ad_ts lower bound for unit arrivals
	Expiry   string // rows created before this are swept
}

// Window computes the cutoffs for a cycle starting at now.
func (o Options) Window(now time.Time) Window {
	return Window{
		Now:      now,
		Calls:    Cutoff(now, o.Location, o.CallWindow),
		Comments: Cutoff(now, o.Location, o.CommentWindow),
		Units:    Cutoff(now, o.Location, o.UnitWindow),
		Expiry:   Cutoff(now, o.Location, o.MaxAge),
	}
}

// Cutoff formats now minus d as an archive timestamp in loc.
func Cutoff(now time.Time, loc *time.Location, d time.Duration) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.Add(-d).In(loc).Format(TimestampLayout)
}
