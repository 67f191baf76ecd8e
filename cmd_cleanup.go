package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

func cleanupCmd() *cobra.Command {
	var (
		retention  time.Duration
		pruneBelow int
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old job logs and finished jobs, optionally pruning low-quality videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("retention") {
				retention = engine.Cfg.LogRetention
			}
			if retention <= 0 {
				return engine.Validationf("retention must be positive, got %s", retention)
			}
			cutoff := time.Now().Add(-retention)
			logs, err := a.db.PurgeLogs(ctx, cutoff)
			if err != nil {
				return err
			}
			jobs, err := a.db.PurgeJobs(ctx, cutoff)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deleted %d log entries and %d finished jobs older than %s\n", logs, jobs, cutoff.UTC().Format(time.RFC3339))
			if pruneBelow > 0 {
				n, err := a.db.PruneVideos(ctx, pruneBelow)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pruned %d videos scoring below %d\n", n, pruneBelow)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 30*24*time.Hour, "Age after which logs and finished jobs are deleted (default: LOG_RETENTION)")
	cmd.Flags().IntVar(&pruneBelow, "prune-below", 0, "Also delete videos scoring below this (0 = keep all)")
	return cmd
}
