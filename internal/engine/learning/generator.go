// Package learning builds curricula from the catalog: generated learning paths
// and "what to watch next" recommendations.
package learning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

// Generation thresholds.
const (
	PoolMinScore     = 70
	PoolLimit        = 50
	MinPathVideos    = 3
	MaxStrategies    = 3
	maxObjectives    = 5
	maxPrerequisites = 3
)

// Store is the catalog access learning needs. *store.DB satisfies it.
type Store interface {
	GetVideo(ctx context.Context, id string) (engine.VideoRecord, error)
	GetVideos(ctx context.Context, ids []string) ([]engine.VideoRecord, error)
	TopVideos(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty, minScore, limit int) ([]engine.VideoRecord, error)
	RelatedVideos(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty, minScore int, exclude []string, limit int) ([]engine.VideoRecord, error)
	Recommend(ctx context.Context, src engine.VideoRecord, minScore, limit int) ([]engine.Recommendation, error)
	GetPath(ctx context.Context, id string) (engine.LearningPath, error)
	SavePath(ctx context.Context, p engine.LearningPath) (engine.LearningPath, error)
	CreatePath(ctx context.Context, p engine.LearningPath) (engine.LearningPath, error)
	UpdatePath(ctx context.Context, id string, patch store.PathPatch) (engine.LearningPath, error)
	ListPaths(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty) ([]engine.LearningPath, error)
	UpsertRelationship(ctx context.Context, r engine.VideoRelationship) error
}

// strategy picks path members out of the candidate pool.
type strategy struct {
	suffix      string
	description string
	pick        func(pool []engine.VideoRecord) []engine.VideoRecord
}

func firstN(vs []engine.VideoRecord, n int, keep func(engine.VideoRecord) bool) []engine.VideoRecord {
	out := make([]engine.VideoRecord, 0, n)
	for _, v := range vs {
		if len(out) == n {
			break
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

var strategies = []strategy{
	{
		suffix:      "Top Quality Videos",
		description: "A curated collection of the highest quality %s videos for %s.",
		pick:        func(pool []engine.VideoRecord) []engine.VideoRecord { return firstN(pool, 8, nil) },
	},
	{
		suffix:      "Step-by-Step Tutorials",
		description: "Hands-on step-by-step tutorials to master %[2]s at %[1]s level.",
		pick: func(pool []engine.VideoRecord) []engine.VideoRecord {
			return firstN(pool, 6, func(v engine.VideoRecord) bool { return v.TutorialType == "step-by-step" })
		},
	},
	{
		suffix:      "Business Applications",
		description: "Real-world business applications and use cases for %[2]s automation.",
		pick: func(pool []engine.VideoRecord) []engine.VideoRecord {
			return firstN(pool, 6, func(v engine.VideoRecord) bool { return v.UseCase == "business" })
		},
	},
}

// Generator materialises learning paths for a tool and difficulty.
type Generator struct {
	db Store
}

// NewGenerator returns a Generator over db.
func NewGenerator(db Store) *Generator {
	return &Generator{db: db}
}

// PathName is the stable name a strategy gives its path; re-generation upserts on it.
func PathName(tool engine.Tool, difficulty engine.Difficulty, suffix string) string {
	return fmt.Sprintf("%s %s - %s", tool.DisplayName(), difficulty, suffix)
}

// Generate runs up to count strategies (default and maximum 3) and persists
// every path with at least three members. Consecutive members are linked with
// next_in_path relationships. An empty pool yields no paths and no error.
func (g *Generator) Generate(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty, count int) ([]engine.LearningPath, error) {
	if tool == "" || tool == engine.ToolAll {
		return nil, engine.Validationf("a concrete tool is required")
	}
	if _, err := engine.ParseDifficulty(string(difficulty)); err != nil {
		return nil, err
	}
	if count <= 0 || count > MaxStrategies {
		count = MaxStrategies
	}

	pool, err := g.db.TopVideos(ctx, tool, difficulty, PoolMinScore, PoolLimit)
	if err != nil {
		return nil, err
	}
	out := []engine.LearningPath{}
	if len(pool) == 0 {
		slog.Info("learning: no candidate videos", slog.String("tool", string(tool)), slog.String("difficulty", string(difficulty)))
		return out, nil
	}

	for _, st := range strategies[:count] {
		members := st.pick(pool)
		if len(members) < MinPathVideos {
			continue
		}
		p := buildPath(tool, difficulty, st, members)
		saved, err := g.db.SavePath(ctx, p)
		if err != nil {
			return out, fmt.Errorf("save path %q: %w", p.Name, err)
		}
		if err := g.link(ctx, saved); err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	engine.IncrPathsGenerated(len(out))
	slog.Info("learning: paths generated",
		slog.String("tool", string(tool)),
		slog.String("difficulty", string(difficulty)),
		slog.Int("pool", len(pool)),
		slog.Int("paths", len(out)))
	return out, nil
}

func buildPath(tool engine.Tool, difficulty engine.Difficulty, st strategy, members []engine.VideoRecord) engine.LearningPath {
	ids := make([]string, len(members))
	var objectives, prereqs []string
	for i, v := range members {
		ids[i] = v.ExternalID
		objectives = append(objectives, v.LearningObjectives...)
		prereqs = append(prereqs, v.Prerequisites...)
	}
	return engine.LearningPath{
		Name:               PathName(tool, difficulty, st.suffix),
		Description:        fmt.Sprintf(st.description, difficulty, tool.DisplayName()),
		Tool:               tool,
		Difficulty:         difficulty,
		VideoIDs:           ids,
		EstimatedDuration:  minutes(members),
		LearningObjectives: head(engine.DedupeStrings(objectives), maxObjectives),
		Prerequisites:      head(engine.DedupeStrings(prereqs), maxPrerequisites),
		TargetAudience:     difficulty.TargetAudience(),
		CompletionCriteria: engine.DefaultCompletionCriteria,
		IsActive:           true,
	}
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// link records next_in_path edges between consecutive members.
func (g *Generator) link(ctx context.Context, p engine.LearningPath) error {
	for i := 0; i+1 < len(p.VideoIDs); i++ {
		err := g.db.UpsertRelationship(ctx, engine.VideoRelationship{
			SourceVideoID: p.VideoIDs[i],
			TargetVideoID: p.VideoIDs[i+1],
			Type:          engine.RelNextInPath,
			Strength:      1,
			Confidence:    0.9,
			Reason:        "Consecutive in learning path " + p.Name,
		})
		if err != nil {
			return fmt.Errorf("link path %q: %w", p.Name, err)
		}
	}
	return nil
}
