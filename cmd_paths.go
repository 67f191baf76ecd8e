package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/learning"
)

func pathsCmd() *cobra.Command {
	var (
		tool       string
		difficulty string
		count      int
	)
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Generate learning paths from the catalog",
		Long:  "Generates learning paths for every tool and difficulty, or for the ones selected by flags. Regenerating replaces paths of the same name.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := engine.ParseTool(tool, true)
			if err != nil {
				return err
			}
			diffs := engine.Difficulties
			if difficulty != "" {
				d, err := engine.ParseDifficulty(difficulty)
				if err != nil {
					return err
				}
				diffs = []engine.Difficulty{d}
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			total := 0
			for _, tl := range engine.ExpandTool(t) {
				for _, d := range diffs {
					paths, err := a.paths.Generate(ctx, tl, d, count)
					if err != nil {
						return err
					}
					if len(paths) == 0 {
						fmt.Fprintf(out, "%s %s: not enough videos scoring %d+\n", tl.DisplayName(), d, learning.PoolMinScore)
						continue
					}
					for _, p := range paths {
						fmt.Fprintf(out, "%s (%d videos, %d min)\n", p.Name, len(p.VideoIDs), p.EstimatedDuration)
					}
					total += len(paths)
				}
			}
			fmt.Fprintf(out, "generated %d learning paths\n", total)
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "all", "Tool: zapier, n8n, make or all")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Difficulty (default: all)")
	cmd.Flags().IntVar(&count, "count", learning.MaxStrategies, "Strategies to try per tool and difficulty")
	return cmd
}
