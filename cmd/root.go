package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hotcalls-poller/internal/config"
)

var cfg *config.Config

// skipValidation marks commands that must work with an incomplete config.
const skipValidation = "skip-validation"

var rootCmd = &cobra.Command{
	Use:   "hotcalls-poller",
	Short: "Maintain the hot calls evaluation table",
	Long:  "Polls the CAD archive for recent calls, merges attributes, comment text and unit arrival counts into the evaluation table, and purges closed or aged calls.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Annotations[skipValidation] == "" {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
