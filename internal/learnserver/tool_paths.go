package learnserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/learning"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// PathListInput is the input of path_list.
type PathListInput struct {
	Tool       string `json:"tool,omitempty" jsonschema:"Filter by tool: zapier, n8n, make (default: all)"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"Filter by difficulty (default: any)"`
}

// PathListOutput wraps a list of learning paths.
type PathListOutput struct {
	Paths []engine.LearningPath `json:"paths"`
}

// PathIDInput selects one path.
type PathIDInput struct {
	ID string `json:"id" jsonschema:"Learning path ID"`
}

// PathSaveInput creates a path, or edits one when ID is set.
type PathSaveInput struct {
	ID   string             `json:"id,omitempty" jsonschema:"ID of the path to edit; omit to create a new path"`
	Path learning.PathInput `json:"path" jsonschema:"Path fields; when editing, omitted fields keep their value"`
}

// PathGenerateInput is the input of path_generate.
type PathGenerateInput struct {
	Tool       string `json:"tool" jsonschema:"zapier, n8n or make"`
	Difficulty string `json:"difficulty" jsonschema:"beginner, intermediate or advanced"`
	Count      int    `json:"count,omitempty" jsonschema:"Number of strategies to try, 1-3 (default: 3)"`
}

func registerPathTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "path_list",
		Description: "List active learning paths ordered by tool and difficulty.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input PathListInput) (*mcp.CallToolResult, *PathListOutput, error) {
		tool, err := toolutil.NormTool(input.Tool, engine.ToolAll, true)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		diff, err := toolutil.NormDifficulty(input.Difficulty)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		paths, err := d.Paths.List(ctx, tool, diff)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &PathListOutput{Paths: paths}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "path_get",
		Description: "Get a learning path with its videos in order plus up to ten related videos of the same tool and difficulty.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input PathIDInput) (*mcp.CallToolResult, *engine.PathDetail, error) {
		if input.ID == "" {
			return nil, nil, errors.New("id is required")
		}
		detail, err := d.Paths.Detail(ctx, input.ID)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &detail, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "path_save",
		Description: "Create a hand-authored learning path, or edit an existing one when id is given. Member videos must already be in the catalog.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input PathSaveInput) (*mcp.CallToolResult, *engine.LearningPath, error) {
		var (
			p   engine.LearningPath
			err error
		)
		if input.ID != "" {
			p, err = d.Paths.Update(ctx, input.ID, input.Path)
		} else {
			p, err = d.Paths.Create(ctx, input.Path)
		}
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &p, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "path_generate",
		Description: "Generate learning paths for a tool and difficulty from the catalog's best videos (score 70+): top quality, step-by-step and business strategies. Regenerating replaces paths of the same name.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input PathGenerateInput) (*mcp.CallToolResult, *PathListOutput, error) {
		tool, err := engine.ParseTool(input.Tool, false)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		diff, err := engine.ParseDifficulty(input.Difficulty)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		paths, err := d.Paths.Generate(ctx, tool, diff, input.Count)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &PathListOutput{Paths: paths}, nil
	})
}
