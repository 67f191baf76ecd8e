package learning

import (
	"context"
	"strings"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

const (
	relatedMinScore = 60
	relatedLimit    = 10
)

// Detail loads a path with its member videos in path order and up to ten
// related videos of the same tool and difficulty that are not in the path.
// Members missing from the catalog are skipped.
func (g *Generator) Detail(ctx context.Context, id string) (engine.PathDetail, error) {
	key := engine.CatalogCacheKey("path", id)
	if cached, ok := engine.CacheLoadJSON[engine.PathDetail](ctx, key); ok {
		return cached, nil
	}
	p, err := g.db.GetPath(ctx, id)
	if err != nil {
		return engine.PathDetail{}, err
	}
	videos, err := g.db.GetVideos(ctx, p.VideoIDs)
	if err != nil {
		return engine.PathDetail{}, err
	}
	related, err := g.db.RelatedVideos(ctx, p.Tool, p.Difficulty, relatedMinScore, p.VideoIDs, relatedLimit)
	if err != nil {
		return engine.PathDetail{}, err
	}
	if videos == nil {
		videos = []engine.VideoRecord{}
	}
	if related == nil {
		related = []engine.VideoRecord{}
	}
	d := engine.PathDetail{Path: p, Videos: videos, Related: related}
	engine.CacheStoreJSON(ctx, key, d)
	return d, nil
}

// List returns active paths, optionally narrowed by tool and difficulty.
func (g *Generator) List(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty) ([]engine.LearningPath, error) {
	return g.db.ListPaths(ctx, tool, difficulty)
}

// PathInput is a hand-authored path or a partial edit of one. Nil and empty
// fields keep their current (or default) value.
type PathInput struct {
	Name               string   `json:"name,omitempty" jsonschema:"Path name, unique per tool and difficulty"`
	Description        *string  `json:"description,omitempty" jsonschema:"Free-text description"`
	Tool               string   `json:"tool,omitempty" jsonschema:"zapier, n8n or make (required when creating)"`
	Difficulty         string   `json:"difficulty,omitempty" jsonschema:"beginner, intermediate or advanced (required when creating)"`
	VideoIDs           []string `json:"video_ids,omitempty" jsonschema:"Ordered external IDs of catalog videos"`
	EstimatedDuration  *int     `json:"estimated_duration,omitempty" jsonschema:"Minutes (default: sum of member durations)"`
	Prerequisites      []string `json:"prerequisites,omitempty"`
	LearningObjectives []string `json:"learning_objectives,omitempty"`
	TargetAudience     *string  `json:"target_audience,omitempty"`
	CompletionCriteria []string `json:"completion_criteria,omitempty"`
	IsActive           *bool    `json:"is_active,omitempty" jsonschema:"Inactive paths are hidden from listings"`
}

// members loads the catalog videos behind ids, rejecting unknown ones.
func (g *Generator) members(ctx context.Context, ids []string) ([]engine.VideoRecord, error) {
	ids = engine.DedupeStrings(ids)
	videos, err := g.db.GetVideos(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(videos) == len(ids) {
		return videos, nil
	}
	found := make(map[string]bool, len(videos))
	for _, v := range videos {
		found[v.ExternalID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return nil, engine.Validationf("unknown video ids: %s", strings.Join(missing, ", "))
}

func minutes(videos []engine.VideoRecord) int {
	var seconds int
	for _, v := range videos {
		seconds += v.DurationSeconds
	}
	return (seconds + 59) / 60
}

// Create stores a hand-authored path. Member videos must exist in the catalog.
func (g *Generator) Create(ctx context.Context, in PathInput) (engine.LearningPath, error) {
	tool, err := engine.ParseTool(in.Tool, false)
	if err != nil {
		return engine.LearningPath{}, err
	}
	difficulty, err := engine.ParseDifficulty(in.Difficulty)
	if err != nil {
		return engine.LearningPath{}, err
	}
	videos, err := g.members(ctx, in.VideoIDs)
	if err != nil {
		return engine.LearningPath{}, err
	}
	p := engine.LearningPath{
		Name:               strings.TrimSpace(in.Name),
		Tool:               tool,
		Difficulty:         difficulty,
		VideoIDs:           engine.DedupeStrings(in.VideoIDs),
		EstimatedDuration:  minutes(videos),
		Prerequisites:      in.Prerequisites,
		LearningObjectives: in.LearningObjectives,
		TargetAudience:     difficulty.TargetAudience(),
		CompletionCriteria: in.CompletionCriteria,
		IsActive:           true,
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.EstimatedDuration != nil {
		p.EstimatedDuration = *in.EstimatedDuration
	}
	if in.TargetAudience != nil {
		p.TargetAudience = *in.TargetAudience
	}
	if len(p.CompletionCriteria) == 0 {
		p.CompletionCriteria = engine.DefaultCompletionCriteria
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return g.db.CreatePath(ctx, p)
}

// Update edits an existing path. Tool and difficulty cannot change; replacing
// the members recomputes the estimated duration unless one is given.
func (g *Generator) Update(ctx context.Context, id string, in PathInput) (engine.LearningPath, error) {
	cur, err := g.db.GetPath(ctx, id)
	if err != nil {
		return cur, err
	}
	if in.Tool != "" {
		if tool, err := engine.ParseTool(in.Tool, false); err != nil || tool != cur.Tool {
			return cur, engine.Validationf("tool of path %s cannot be changed", id)
		}
	}
	if in.Difficulty != "" {
		if d, err := engine.ParseDifficulty(in.Difficulty); err != nil || d != cur.Difficulty {
			return cur, engine.Validationf("difficulty of path %s cannot be changed", id)
		}
	}
	patch := store.PathPatch{
		Description:        in.Description,
		EstimatedDuration:  in.EstimatedDuration,
		Prerequisites:      in.Prerequisites,
		LearningObjectives: in.LearningObjectives,
		TargetAudience:     in.TargetAudience,
		CompletionCriteria: in.CompletionCriteria,
		IsActive:           in.IsActive,
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		patch.Name = &name
	}
	if in.VideoIDs != nil {
		videos, err := g.members(ctx, in.VideoIDs)
		if err != nil {
			return cur, err
		}
		patch.VideoIDs = engine.DedupeStrings(in.VideoIDs)
		if patch.EstimatedDuration == nil {
			m := minutes(videos)
			patch.EstimatedDuration = &m
		}
	}
	return g.db.UpdatePath(ctx, id, patch)
}
