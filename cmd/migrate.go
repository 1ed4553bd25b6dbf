package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/resilience"
	"github.com/sells-group/hotcalls-poller/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long:  "Creates the staging, evaluation and run log tables (and the archive tables on SQLite) by applying pending migrations in lexicographic order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		h, err := openStore(ctx, cfg.Store, resilience.PolicyFromConfig(cfg.Retry))
		if err != nil {
			return err
		}
		defer h.Close() //nolint:errcheck

		if err := store.Migrate(ctx, h); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("all migrations applied successfully", zap.String("driver", h.Driver()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
