package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/scrape"
)

func scrapeCmd() *cobra.Command {
	var (
		tool         string
		difficulties []string
		minScore     int
		maxPerTerm   int
		name         string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scraping job in the foreground and print its summary",
		Example: "  go_learn scrape --tool zapier --difficulty beginner,intermediate --min-score 70\n" +
			"  go_learn scrape --tool all",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := engine.ParseTool(tool, true)
			if err != nil {
				return err
			}
			diffs, err := engine.ParseDifficulties(difficulties)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			req := scrape.CreateRequest{
				Name:              name,
				Tool:              t,
				Difficulties:      diffs,
				MaxResultsPerTerm: maxPerTerm,
				JobType:           engine.JobManual,
			}
			if cmd.Flags().Changed("min-score") {
				req.MinQualityScore = &minScore
			}
			job, err := a.jobs.RunSync(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %s: %s\n", job.ID, job.Status)
			fmt.Fprintf(out, "search terms: %d/%d, videos found: %d, saved: %d, filtered: %d, errors: %d\n",
				job.SearchTermsCompleted, job.SearchTermsTotal, job.VideosFound, job.VideosSaved,
				job.VideosFiltered, job.ErrorCount)
			if job.Status == engine.JobFailed {
				return fmt.Errorf("job failed: %s", job.LastError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "Tool to scrape: zapier, n8n, make or all")
	cmd.Flags().StringSliceVar(&difficulties, "difficulty", nil, "Difficulty levels (default: all)")
	cmd.Flags().IntVar(&minScore, "min-score", engine.DefaultMinQualityScore, "Minimum quality score to save a video")
	cmd.Flags().IntVar(&maxPerTerm, "max-per-term", 0, "Maximum search hits per term (default: DEFAULT_MAX_PER_TERM)")
	cmd.Flags().StringVar(&name, "name", "", "Job name")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}
