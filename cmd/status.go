package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/resilience"
	"github.com/sells-group/hotcalls-poller/internal/runlog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent poll cycles",
	Long:  "Displays the most recent cycles recorded in the run log with their failed stages and row counts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("rows")

		h, err := openStore(ctx, cfg.Store, resilience.PolicyFromConfig(cfg.Retry))
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		entries, err := runlog.New(h).Recent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(entries) == 0 {
			zap.L().Info("no cycles recorded, run 'hotcalls-poller run' to start polling")
			return nil
		}

		formatRuns(os.Stdout, entries)
		if verbose {
			formatStageRows(os.Stdout, entries[0])
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "number of cycles to show")
	statusCmd.Flags().Bool("rows", false, "print per-stage row counts for the latest cycle")
	rootCmd.AddCommand(statusCmd)
}

// formatRuns writes a tabular representation of run log entries to out.
func formatRuns(out io.Writer, entries []runlog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tROWS\tFAILED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t----\t------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}

		var total int64
		for _, n := range e.Rows {
			total += n
		}

		failed := "-"
		if len(e.FailedStages) > 0 {
			failed = strings.Join(e.FailedStages, ",")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(e.ID),
			e.Status,
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			dur,
			total,
			failed,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// formatStageRows prints the row counts of one cycle, sorted by stage name.
func formatStageRows(out io.Writer, e runlog.Entry) {
	names := make([]string, 0, len(e.Rows))
	for name := range e.Rows {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "\nSTAGE\tROWS\n")
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", name, e.Rows[name])
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
