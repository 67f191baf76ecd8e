package learnserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/toolutil"
)

// VideoSearchInput is the input of video_search.
type VideoSearchInput struct {
	Tool       string `json:"tool" jsonschema:"Tool: zapier, n8n or make"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"beginner, intermediate or advanced (default: any)"`
	MinScore   int    `json:"min_score,omitempty" jsonschema:"Minimum quality score 0-100"`
	Query      string `json:"query,omitempty" jsonschema:"Text to match in title, description, channel, tags or key topics"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Page size (default: 20, max: 100)"`
	Offset     int    `json:"offset,omitempty" jsonschema:"Rows to skip"`
}

// VideoStatsInput is the input of video_stats.
type VideoStatsInput struct {
	Tool string `json:"tool,omitempty" jsonschema:"Restrict to one tool (default: all tools)"`
}

// VideoStatsOutput wraps catalog aggregates.
type VideoStatsOutput struct {
	Stats []engine.VideoStat `json:"stats"`
	Total int                `json:"total"`
}

// VideoRecommendInput is the input of video_recommend.
type VideoRecommendInput struct {
	VideoID string `json:"video_id" jsonschema:"External (YouTube) ID of the video to find related videos for"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Number of recommendations (default: 5, max: 50)"`
}

// VideoRecommendOutput wraps ranked recommendations.
type VideoRecommendOutput struct {
	VideoID         string                  `json:"video_id"`
	Recommendations []engine.Recommendation `json:"recommendations"`
}

// VideoRelationshipsInput is the input of video_relationships.
type VideoRelationshipsInput struct {
	VideoID string `json:"video_id" jsonschema:"External ID of the source video"`
	Type    string `json:"type,omitempty" jsonschema:"Relationship type: next_in_path, similar, prerequisite (default: all)"`
}

// VideoRelationshipsOutput wraps outgoing links of a video.
type VideoRelationshipsOutput struct {
	VideoID       string                     `json:"video_id"`
	Relationships []engine.VideoRelationship `json:"relationships"`
}

func registerVideoTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_search",
		Description: "Search the tutorial catalog for one tool, ranked by quality score then views. status is 'empty_catalog' when the tool has no videos yet and 'no_match' when filters excluded everything.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoSearchInput) (*mcp.CallToolResult, *engine.SearchResult, error) {
		tool, err := engine.ParseTool(input.Tool, false)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		diff, err := toolutil.NormDifficulty(input.Difficulty)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		q := engine.SearchQuery{
			Tool:       tool,
			Difficulty: diff,
			MinScore:   input.MinScore,
			Text:       input.Query,
			Limit:      toolutil.Limit(input.Limit, 20, 100),
			Offset:     max(input.Offset, 0),
		}
		res, err := toolutil.Cached(ctx, toolutil.SearchKey(q), func(ctx context.Context) (engine.SearchResult, error) {
			return d.DB.SearchVideos(ctx, q)
		})
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &res, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_stats",
		Description: "Catalog aggregates per tool and difficulty: video count, average quality score and average views.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoStatsInput) (*mcp.CallToolResult, *VideoStatsOutput, error) {
		tool, err := toolutil.NormTool(input.Tool, engine.ToolAll, true)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		stats, err := d.DB.VideoStats(ctx, tool)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		out := &VideoStatsOutput{Stats: stats}
		for _, s := range stats {
			out.Total += s.Count
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_recommend",
		Description: "Recommend catalog videos related to a given video. Videos sharing both tool and difficulty rank first, then same tool, then same difficulty; only videos scoring 60 or more are returned.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoRecommendInput) (*mcp.CallToolResult, *VideoRecommendOutput, error) {
		recs, err := d.Recommender.Recommend(ctx, input.VideoID, input.Limit)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &VideoRecommendOutput{VideoID: input.VideoID, Recommendations: recs}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_relationships",
		Description: "List stored links from a video to other videos, e.g. the next video in a generated learning path.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoRelationshipsInput) (*mcp.CallToolResult, *VideoRelationshipsOutput, error) {
		if input.VideoID == "" {
			return nil, nil, errors.New("video_id is required")
		}
		switch input.Type {
		case "", engine.RelNextInPath, engine.RelSimilar, engine.RelPrereq:
		default:
			return nil, nil, toolErr(engine.Validationf("unknown relationship type %q", input.Type))
		}
		rels, err := d.DB.ListRelationships(ctx, input.VideoID, input.Type)
		if err != nil {
			return nil, nil, toolErr(err)
		}
		return nil, &VideoRelationshipsOutput{VideoID: input.VideoID, Relationships: rels}, nil
	})
}
