package learning

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

type fixture struct {
	id         string
	tool       engine.Tool
	difficulty engine.Difficulty
	score      int
	tutorial   string
	useCase    string
	duration   int
}

func seed(t *testing.T, db *store.DB, fs ...fixture) {
	t.Helper()
	for _, f := range fs {
		v := engine.VideoRecord{
			ExternalID:      f.id,
			Title:           "Video " + f.id,
			ViewCount:       int64(f.score) * 10,
			DurationSeconds: f.duration,
			Tool:            f.tool,
			Difficulty:      f.difficulty,
			QualityScore:    f.score,
			Classification: engine.Classification{
				TutorialType: f.tutorial, UseCase: f.useCase, Industry: "general", ComplexityLevel: "basic",
			},
			LearningMeta: engine.LearningMeta{
				LearningObjectives: []string{"Objective " + f.tutorial, "Objective " + f.id},
				Prerequisites:      []string{"Basic computer skills", "Prereq " + f.id},
			},
		}
		require.NoError(t, db.UpsertVideo(context.Background(), v))
	}
}

// catalog has ten zapier/beginner videos above the pool threshold: four
// step-by-step, two business, plus two below 70 that never enter the pool.
func catalog() []fixture {
	z, b := engine.ToolZapier, engine.Beginner
	return []fixture{
		{"v1", z, b, 95, "step-by-step", "business", 600},
		{"v2", z, b, 92, "overview", "personal", 300},
		{"v3", z, b, 90, "step-by-step", "developer", 61},
		{"v4", z, b, 88, "overview", "business", 120},
		{"v5", z, b, 85, "step-by-step", "personal", 240},
		{"v6", z, b, 80, "comparison", "general", 60},
		{"v7", z, b, 78, "step-by-step", "general", 60},
		{"v8", z, b, 75, "general", "general", 60},
		{"v9", z, b, 72, "general", "general", 60},
		{"v10", z, b, 71, "general", "general", 60},
		{"low1", z, b, 69, "step-by-step", "business", 60},
		{"low2", z, b, 65, "step-by-step", "business", 60},
	}
}

func TestGenerate_Strategies(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, catalog()...)
	g := NewGenerator(db)
	ctx := context.Background()

	paths, err := g.Generate(ctx, engine.ToolZapier, engine.Beginner, 0)
	require.NoError(t, err)
	require.Len(t, paths, 2, "business strategy has only two candidates")

	top := paths[0]
	assert.Equal(t, "Zapier beginner - Top Quality Videos", top.Name)
	assert.Equal(t, []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}, top.VideoIDs)
	assert.Equal(t, 26, top.EstimatedDuration, "1501 seconds rounds up")
	assert.Len(t, top.LearningObjectives, 5)
	assert.Equal(t, []string{"Objective step-by-step", "Objective v1", "Objective overview", "Objective v2", "Objective v3"}, top.LearningObjectives)
	assert.Equal(t, []string{"Basic computer skills", "Prereq v1", "Prereq v2"}, top.Prerequisites)
	assert.Equal(t, "Beginners", top.TargetAudience)
	assert.Equal(t, engine.DefaultCompletionCriteria, top.CompletionCriteria)
	assert.True(t, top.IsActive)

	steps := paths[1]
	assert.Equal(t, "Zapier beginner - Step-by-Step Tutorials", steps.Name)
	assert.Equal(t, []string{"v1", "v3", "v5", "v7"}, steps.VideoIDs)
	assert.Equal(t, 17, steps.EstimatedDuration)

	rels, err := db.ListRelationships(ctx, "v1", engine.RelNextInPath)
	require.NoError(t, err)
	targets := map[string]bool{}
	for _, r := range rels {
		targets[r.TargetVideoID] = true
	}
	assert.Equal(t, map[string]bool{"v2": true, "v3": true}, targets)
}

func TestGenerate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, catalog()...)
	g := NewGenerator(db)
	ctx := context.Background()

	first, err := g.Generate(ctx, engine.ToolZapier, engine.Beginner, 3)
	require.NoError(t, err)
	relsBefore, err := db.CountRelationships(ctx)
	require.NoError(t, err)

	second, err := g.Generate(ctx, engine.ToolZapier, engine.Beginner, 3)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	listed, err := db.ListPaths(ctx, engine.ToolZapier, engine.Beginner)
	require.NoError(t, err)
	assert.Len(t, listed, len(first))
	relsAfter, err := db.CountRelationships(ctx)
	require.NoError(t, err)
	assert.Equal(t, relsBefore, relsAfter)
}

func TestGenerate_CountAndEdgeCases(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, catalog()...)
	g := NewGenerator(db)
	ctx := context.Background()

	one, err := g.Generate(ctx, engine.ToolZapier, engine.Beginner, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	none, err := g.Generate(ctx, engine.ToolN8N, engine.Advanced, 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	tests := []struct {
		name string
		tool engine.Tool
		diff engine.Difficulty
	}{
		{"all tools", engine.ToolAll, engine.Beginner},
		{"missing tool", "", engine.Beginner},
		{"bad difficulty", engine.ToolMake, "expert"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(ctx, tt.tool, tt.diff, 3)
			assert.True(t, errors.Is(err, engine.ErrValidation), "got %v", err)
		})
	}
}

func TestGenerate_SkipsSmallStrategies(t *testing.T) {
	db := newTestDB(t)
	seed(t, db,
		fixture{"a", engine.ToolMake, engine.Advanced, 90, "overview", "business", 60},
		fixture{"b", engine.ToolMake, engine.Advanced, 85, "overview", "personal", 60},
	)
	paths, err := NewGenerator(db).Generate(context.Background(), engine.ToolMake, engine.Advanced, 3)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestDetail(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, catalog()...)
	seed(t, db, fixture{"other", engine.ToolN8N, engine.Beginner, 99, "overview", "general", 60})
	g := NewGenerator(db)
	ctx := context.Background()

	paths, err := g.Generate(ctx, engine.ToolZapier, engine.Beginner, 2)
	require.NoError(t, err)
	steps := paths[1]

	d, err := g.Detail(ctx, steps.ID)
	require.NoError(t, err)
	ids := make([]string, len(d.Videos))
	for i, v := range d.Videos {
		ids[i] = v.ExternalID
	}
	assert.Equal(t, steps.VideoIDs, ids)

	related := map[string]bool{}
	for _, v := range d.Related {
		related[v.ExternalID] = true
		assert.GreaterOrEqual(t, v.QualityScore, 60)
		assert.Equal(t, engine.ToolZapier, v.Tool)
	}
	assert.Len(t, d.Related, 8, "ten pool videos plus two low ones, minus four members")
	for _, id := range steps.VideoIDs {
		assert.False(t, related[id], "member %s listed as related", id)
	}

	_, err = g.Detail(ctx, "missing")
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestRecommend(t *testing.T) {
	db := newTestDB(t)
	seed(t, db,
		fixture{"src", engine.ToolZapier, engine.Beginner, 80, "overview", "general", 60},
		fixture{"both", engine.ToolZapier, engine.Beginner, 70, "overview", "general", 60},
		fixture{"tool", engine.ToolZapier, engine.Advanced, 90, "overview", "general", 60},
		fixture{"diff", engine.ToolN8N, engine.Beginner, 95, "overview", "general", 60},
		fixture{"weak", engine.ToolZapier, engine.Beginner, 59, "overview", "general", 60},
	)
	r := NewRecommender(db)
	ctx := context.Background()

	recs, err := r.Recommend(ctx, "src", 0)
	require.NoError(t, err)
	got := make([]string, len(recs))
	for i, rec := range recs {
		got[i] = fmt.Sprintf("%s:%d", rec.Video.ExternalID, rec.Relevance)
	}
	assert.Equal(t, []string{"both:100", "tool:80", "diff:60"}, got)

	limited, err := r.Recommend(ctx, "src", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = r.Recommend(ctx, "nope", 5)
	assert.True(t, errors.Is(err, engine.ErrNotFound))
	_, err = r.Recommend(ctx, "", 5)
	assert.True(t, errors.Is(err, engine.ErrValidation))
}

func TestRecommend_DefaultLimit(t *testing.T) {
	db := newTestDB(t)
	fs := []fixture{{"src", engine.ToolMake, engine.Intermediate, 80, "overview", "general", 60}}
	for i := 0; i < 8; i++ {
		fs = append(fs, fixture{fmt.Sprintf("m%d", i), engine.ToolMake, engine.Intermediate, 61 + i, "overview", "general", 60})
	}
	seed(t, db, fs...)

	recs, err := NewRecommender(db).Recommend(context.Background(), "src", 0)
	require.NoError(t, err)
	require.Len(t, recs, DefaultRecommendLimit)
	assert.Equal(t, "m7", recs[0].Video.ExternalID)
}

func TestCreateAndUpdatePath(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, catalog()...)
	g := NewGenerator(db)
	ctx := context.Background()

	desc := "Hand-picked intro"
	p, err := g.Create(ctx, PathInput{
		Name:        "My first zaps",
		Description: &desc,
		Tool:        "zapier",
		Difficulty:  "beginner",
		VideoIDs:    []string{"v2", "v1", "v2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v1"}, p.VideoIDs)
	assert.Equal(t, 15, p.EstimatedDuration)
	assert.Equal(t, "Beginners", p.TargetAudience)
	assert.Equal(t, engine.DefaultCompletionCriteria, p.CompletionCriteria)
	assert.True(t, p.IsActive)

	_, err = g.Create(ctx, PathInput{Name: "My first zaps", Tool: "zapier", Difficulty: "beginner"})
	assert.True(t, errors.Is(err, engine.ErrValidation), "duplicate name: %v", err)
	_, err = g.Create(ctx, PathInput{Name: "Ghosts", Tool: "zapier", Difficulty: "beginner", VideoIDs: []string{"v1", "nope"}})
	assert.ErrorContains(t, err, "nope")
	_, err = g.Create(ctx, PathInput{Name: "All", Tool: "all", Difficulty: "beginner"})
	assert.True(t, errors.Is(err, engine.ErrValidation))

	inactive := false
	up, err := g.Update(ctx, p.ID, PathInput{VideoIDs: []string{"v3"}, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, up.VideoIDs)
	assert.Equal(t, 2, up.EstimatedDuration, "61 seconds rounds up")
	assert.Equal(t, desc, up.Description)
	assert.False(t, up.IsActive)

	listed, err := g.List(ctx, engine.ToolZapier, "")
	require.NoError(t, err)
	assert.Empty(t, listed, "inactive paths are hidden")

	_, err = g.Update(ctx, p.ID, PathInput{Tool: "n8n"})
	assert.True(t, errors.Is(err, engine.ErrValidation))
	_, err = g.Update(ctx, "missing", PathInput{Name: "x"})
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}
