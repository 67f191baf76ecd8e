package learnserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/scrape"
)

// ScheduleListInput is the input of schedule_list.
type ScheduleListInput struct {
	ActiveOnly bool `json:"active_only,omitempty" jsonschema:"Only list active schedules"`
}

// ScheduleListOutput wraps the schedule list.
type ScheduleListOutput struct {
	Schedules []engine.Schedule `json:"schedules"`
}

// ScheduleCreateInput is the input of schedule_create.
type ScheduleCreateInput struct {
	Name              string   `json:"name,omitempty" jsonschema:"Schedule name (default: tool and cron expression)"`
	CronExpr          string   `json:"cron_expr" jsonschema:"Standard 5-field cron expression, e.g. '0 3 * * *' for daily at 03:00, or a descriptor like @daily"`
	Tool              string   `json:"tool" jsonschema:"Tool to scrape: zapier, n8n, make or all"`
	Difficulties      []string `json:"difficulties,omitempty" jsonschema:"Difficulty levels (default: all three)"`
	MaxResultsPerTerm int      `json:"max_results_per_term,omitempty" jsonschema:"Maximum search hits per search term (default: 50)"`
	MinQualityScore   *int     `json:"min_quality_score,omitempty" jsonschema:"Minimum quality score 0-100 (default: 60)"`
	Inactive          bool     `json:"inactive,omitempty" jsonschema:"Create the schedule disabled"`
}

// ScheduleToggleInput is the input of schedule_toggle.
type ScheduleToggleInput struct {
	ID     string `json:"id" jsonschema:"Schedule ID"`
	Active bool   `json:"active" jsonschema:"true to enable, false to disable"`
}

// ScheduleIDInput selects one schedule.
type ScheduleIDInput struct {
	ID string `json:"id" jsonschema:"Schedule ID"`
}

func registerScheduleTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_list",
		Description: "List recurring scrape schedules with their cron expression, tool, difficulties and last run time.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ScheduleListInput) (*mcp.CallToolResult, *ScheduleListOutput, error) {
		list, err := d.Schedules.List(ctx, input.ActiveOnly)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &ScheduleListOutput{Schedules: list}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_create",
		Description: "Create a recurring scrape schedule. Each firing creates and starts a scheduled job; a firing is skipped while the previous job of the schedule is still pending, running or paused.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ScheduleCreateInput) (*mcp.CallToolResult, *engine.Schedule, error) {
		tool, err := engine.ParseTool(input.Tool, true)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		diffs, err := engine.ParseDifficulties(input.Difficulties)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		sc, err := d.Schedules.Create(ctx, scrape.ScheduleRequest{
			Name:              input.Name,
			CronExpr:          input.CronExpr,
			Tool:              tool,
			Difficulties:      diffs,
			MaxResultsPerTerm: input.MaxResultsPerTerm,
			MinQualityScore:   input.MinQualityScore,
			Inactive:          input.Inactive,
		})
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &sc, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_toggle",
		Description: "Enable or disable a schedule without deleting it.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ScheduleToggleInput) (*mcp.CallToolResult, *engine.Schedule, error) {
		if input.ID == "" {
			return nil, nil, errors.New("id is required")
		}
		sc, err := d.Schedules.Toggle(ctx, input.ID, input.Active)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &sc, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_delete",
		Description: "Delete a schedule. Jobs it already created are kept.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: ptr(true)},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ScheduleIDInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if input.ID == "" {
			return nil, nil, errors.New("id is required")
		}
		if err := d.Schedules.Delete(ctx, input.ID); err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &DeleteResult{Deleted: 1, Message: "schedule " + input.ID + " deleted"}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_dedupe",
		Description: "Remove duplicate schedules (same cron expression and tool), keeping the oldest of each group.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: ptr(true)},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, *DeleteResult, error) {
		n, err := d.Schedules.DeleteDuplicates(ctx)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &DeleteResult{Deleted: n, Message: fmt.Sprintf("removed %d duplicate schedules", n)}, nil
	})
}
