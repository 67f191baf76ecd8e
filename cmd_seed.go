package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_learn/internal/engine/seed"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import curated videos into the catalog",
		Long:  "Scores, classifies and upserts a curated video table. Without --file the built-in table is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := seed.Load(file)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := seed.Import(ctx, a.db, a.scorer, entries, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d videos, %d failed\n", rep.Imported, rep.Failed)
			for _, e := range rep.Errors {
				fmt.Fprintln(out, "  "+e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed table (default: built-in)")
	return cmd
}
