package learnserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/scrape"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// JobCreateInput is the input of job_create.
type JobCreateInput struct {
	Name              string   `json:"name,omitempty" jsonschema:"Job name (default: generated from tool and time)"`
	Tool              string   `json:"tool" jsonschema:"Tool to scrape: zapier, n8n, make or all"`
	Difficulties      []string `json:"difficulties,omitempty" jsonschema:"Difficulty levels to search: beginner, intermediate, advanced (default: all three)"`
	MaxResultsPerTerm int      `json:"max_results_per_term,omitempty" jsonschema:"Maximum search hits per search term (default: 50)"`
	MinQualityScore   *int     `json:"min_quality_score,omitempty" jsonschema:"Videos scoring below this (0-100) are filtered out (default: 60)"`
	Start             bool     `json:"start,omitempty" jsonschema:"Start the job immediately after creating it"`
}

// JobIDInput selects one job.
type JobIDInput struct {
	ID string `json:"id" jsonschema:"Job ID (from job_create or job_list)"`
}

// JobListInput is the input of job_list.
type JobListInput struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status: pending, running, paused, completed, failed, cancelled"`
	Tool   string `json:"tool,omitempty" jsonschema:"Filter by tool: zapier, n8n, make, all"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Page size (default: 50, max: 200)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Rows to skip"`
}

// JobStatusInput selects jobs by status.
type JobStatusInput struct {
	Status string `json:"status" jsonschema:"Terminal status to delete: completed, failed or cancelled"`
}

func registerJobTools(server *mcp.Server, d Deps) {
	registerJobCreate(server, d)
	registerJobTransitions(server, d)
	registerJobList(server, d)
	registerJobGet(server, d)
	registerJobDelete(server, d)
	registerJobDeleteByStatus(server, d)
	registerJobStats(server, d)
}

func registerJobCreate(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_create",
		Description: "Create a scraping job that searches for tutorial videos of a workflow-automation tool, scores them and saves those above the quality threshold. The job is created pending; pass start=true or call job_start to run it in the background.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobCreateInput) (*mcp.CallToolResult, *engine.Job, error) {
		tool, err := engine.ParseTool(input.Tool, true)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		diffs, err := engine.ParseDifficulties(input.Difficulties)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		job, err := d.Jobs.Create(ctx, scrape.CreateRequest{
			Name:              input.Name,
			Tool:              tool,
			Difficulties:      diffs,
			MaxResultsPerTerm: input.MaxResultsPerTerm,
			MinQualityScore:   input.MinQualityScore,
			JobType:           engine.JobManual,
		})
		if err != nil {
			return nil, nil, toolErr(err)
		}
		if input.Start {
			if job, err = d.Jobs.Start(ctx, job.ID); err != nil {
				return nil, nil, toolErr(err)
			}
		}
		return nil, &job, nil
	})
}

// registerJobTransitions adds job_start, job_pause and job_cancel.
func registerJobTransitions(server *mcp.Server, d Deps) {
	transitions := []struct {
		name, desc string
		fn         func(context.Context, string) (engine.Job, error)
	}{
		{"job_start", "Start a pending job or resume a paused one. The job runs in the background; poll job_get for progress.", d.Jobs.Start},
		{"job_pause", "Pause a running job. The search term in flight finishes first; job_start resumes from the next term.", d.Jobs.Pause},
		{"job_cancel", "Cancel a pending, running or paused job. Videos saved so far are kept.", d.Jobs.Cancel},
	}
	for _, tr := range transitions {
		fn := tr.fn
		mcp.AddTool(server, &mcp.Tool{
			Name:        tr.name,
			Description: tr.desc,
		}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, *engine.Job, error) {
			if input.ID == "" {
				return nil, nil, errors.New("id is required")
			}
			job, err := fn(ctx, input.ID)
			if err != nil {
				return nil, nil, toolErr(err)
			}
			return nil, &job, nil
		})
	}
}

func registerJobList(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_list",
		Description: "List scraping jobs, newest first, with their progress counters. Optionally filter by status and tool.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobListInput) (*mcp.CallToolResult, *engine.JobList, error) {
		var f engine.JobFilter
		if input.Status != "" {
			st, err := engine.ParseJobStatus(input.Status)
			if err != nil {
				return nil, nil, toolErr(err)
			}
			f.Status = st
		}
		if input.Tool != "" {
			tool, err := engine.ParseTool(input.Tool, true)
			if err != nil {
				return nil, nil, toolErr(err)
			}
			f.Tool = tool
		}
		f.Limit = toolutil.Limit(input.Limit, 50, 200)
		f.Offset = max(input.Offset, 0)
		list, err := d.Jobs.List(ctx, f)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &list, nil
	})
}

func registerJobGet(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_get",
		Description: "Get one job with its latest log entries and per-search-term progress.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, *engine.JobDetail, error) {
		if input.ID == "" {
			return nil, nil, errors.New("id is required")
		}
		detail, err := d.Jobs.Get(ctx, input.ID)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &detail, nil
	})
}

func registerJobDelete(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_delete",
		Description: "Delete a job together with its logs and progress. Running jobs must be paused or cancelled first.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: ptr(true)},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if input.ID == "" {
			return nil, nil, errors.New("id is required")
		}
		if err := d.Jobs.Delete(ctx, input.ID); err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &DeleteResult{Deleted: 1, Message: "job " + input.ID + " deleted"}, nil
	})
}

func registerJobDeleteByStatus(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_delete_by_status",
		Description: "Delete every job in the given status, e.g. all failed jobs. Only terminal statuses are accepted.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: ptr(true)},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobStatusInput) (*mcp.CallToolResult, *DeleteResult, error) {
		st, err := engine.ParseJobStatus(input.Status)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		n, err := d.Jobs.DeleteByStatus(ctx, st)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &DeleteResult{Deleted: n, Message: fmt.Sprintf("deleted %d %s jobs", n, st)}, nil
	})
}

func registerJobStats(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_stats",
		Description: "Job counts per status and the total number of videos saved by all jobs.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, *engine.JobStats, error) {
		stats, err := d.Jobs.Stats(ctx)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &stats, nil
	})
}

func ptr[T any](v T) *T { return &v }
