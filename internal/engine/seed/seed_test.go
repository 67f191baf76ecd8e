package seed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

type memStore struct {
	videos map[string]engine.VideoRecord
	fail   string
}

func (m *memStore) UpsertVideo(_ context.Context, v engine.VideoRecord) error {
	if v.ExternalID == m.fail {
		return errors.New("disk full")
	}
	m.videos[v.ExternalID] = v
	return nil
}

func TestLoad_Embedded(t *testing.T) {
	entries, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 9 {
		t.Fatalf("expected 9 curated videos, got %d", len(entries))
	}
	tools := map[string]int{}
	for _, e := range entries {
		tools[e.Tool]++
	}
	for _, tool := range []string{"zapier", "n8n", "make"} {
		if tools[tool] != 3 {
			t.Errorf("%s: expected 3 entries, got %d", tool, tools[tool])
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "videos: [\n"},
		{"missing title", "videos:\n  - external_id: a\n    tool: zapier\n    difficulty: beginner\n"},
		{"unknown tool", "videos:\n  - external_id: a\n    title: t\n    tool: ifttt\n    difficulty: beginner\n"},
		{"all tool", "videos:\n  - external_id: a\n    title: t\n    tool: all\n    difficulty: beginner\n"},
		{"bad difficulty", "videos:\n  - external_id: a\n    title: t\n    tool: zapier\n    difficulty: guru\n"},
		{"duplicate", "videos:\n  - {external_id: a, title: t, tool: zapier, difficulty: beginner}\n  - {external_id: a, title: u, tool: zapier, difficulty: beginner}\n"},
		{"bad date", "videos:\n  - {external_id: a, title: t, tool: zapier, difficulty: beginner, published_at: yesterday}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); !errors.Is(err, engine.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestImport_StoresRegardlessOfScore(t *testing.T) {
	entries, err := Load("testdata/small.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	db := &memStore{videos: map[string]engine.VideoRecord{}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rep, err := Import(context.Background(), db, nil, entries, now)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if rep.Imported != 2 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}

	good := db.videos["abc123"]
	if good.Tool != engine.ToolN8N || good.Difficulty != engine.Beginner {
		t.Errorf("labels = %s/%s", good.Tool, good.Difficulty)
	}
	if good.PublishedAt == nil || !good.PublishedAt.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published_at = %v", good.PublishedAt)
	}
	if good.VideoURL != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("video url = %q", good.VideoURL)
	}

	low := db.videos["low001"]
	if low.QualityScore >= good.QualityScore {
		t.Errorf("expected sparse entry to score below the tutorial: %d vs %d", low.QualityScore, good.QualityScore)
	}
	if low.QualityScore >= engine.DefaultMinQualityScore {
		t.Errorf("sparse entry scored %d; it should have been below the scrape threshold", low.QualityScore)
	}
}

func TestImport_CollectsFailures(t *testing.T) {
	entries, err := Load("testdata/small.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	db := &memStore{videos: map[string]engine.VideoRecord{}, fail: "low001"}
	rep, err := Import(context.Background(), db, nil, entries, time.Now())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if rep.Imported != 1 || rep.Failed != 1 || len(rep.Errors) != 1 {
		t.Errorf("report = %+v", rep)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Import(ctx, db, nil, entries, time.Now()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("testdata/nope.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
