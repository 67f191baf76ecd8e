package learnserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/learning"
	"github.com/anatolykoptev/go_learn/internal/engine/scrape"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

type emptySource struct{}

func (emptySource) Search(context.Context, string, int) ([]engine.RawVideo, error) { return nil, nil }

func connect(t *testing.T) (*mcp.ClientSession, *store.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	orch := scrape.New(db, emptySource{}, nil, scrape.Options{MaxConcurrent: 1})
	t.Cleanup(orch.Shutdown)
	gen := learning.NewGenerator(db)
	server := mcp.NewServer(&mcp.Implementation{Name: "go_learn", Version: "test"}, nil)
	RegisterTools(server, Deps{
		Jobs:        orch,
		Schedules:   scrape.NewScheduler(db, orch),
		DB:          db,
		Paths:       gen,
		Recommender: learning.NewRecommender(db),
	})

	st, ct := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, st, nil); err != nil {
		t.Fatal(err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs, db
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if out != nil && !res.IsError {
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("%s: decode %s: %v", name, data, err)
		}
	}
	return res
}

func errText(res *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func TestRegisterTools_ListsAll(t *testing.T) {
	cs, _ := connect(t)
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != ToolCount {
		t.Fatalf("got %d tools, want %d", len(res.Tools), ToolCount)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"job_create", "schedule_dedupe", "video_search", "path_generate", "feedback_list"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

func TestJobTools(t *testing.T) {
	cs, _ := connect(t)

	var job engine.Job
	res := call(t, cs, "job_create", map[string]any{"tool": "n8n", "difficulties": []string{"beginner"}}, &job)
	if res.IsError {
		t.Fatalf("job_create: %s", errText(res))
	}
	if job.Status != engine.JobPending || job.Tool != engine.ToolN8N {
		t.Fatalf("job = %+v", job)
	}

	res = call(t, cs, "job_pause", map[string]any{"id": job.ID}, nil)
	if !res.IsError || !strings.Contains(errText(res), "invalid_transition") {
		t.Errorf("pausing a pending job: error=%v %q", res.IsError, errText(res))
	}

	var list engine.JobList
	call(t, cs, "job_list", map[string]any{"status": "pending"}, &list)
	if list.Total != 1 {
		t.Errorf("pending jobs = %d, want 1", list.Total)
	}

	res = call(t, cs, "job_create", map[string]any{"tool": "notion"}, nil)
	if !res.IsError || !strings.Contains(errText(res), "validation_error") {
		t.Errorf("unsupported tool: error=%v %q", res.IsError, errText(res))
	}
}

func TestCatalogTools(t *testing.T) {
	cs, db := connect(t)
	ctx := context.Background()
	for i, id := range []string{"a1", "a2"} {
		if err := db.UpsertVideo(ctx, engine.VideoRecord{
			ExternalID: id, Title: "Zapier webhooks " + id, Tool: engine.ToolZapier,
			Difficulty: engine.Beginner, QualityScore: 80 - i,
		}); err != nil {
			t.Fatal(err)
		}
	}

	var found engine.SearchResult
	call(t, cs, "video_search", map[string]any{"tool": "zapier", "query": "webhooks"}, &found)
	if found.Total != 2 || found.Status != engine.SearchOK || found.Videos[0].ExternalID != "a1" {
		t.Fatalf("search = %+v", found)
	}

	var empty engine.SearchResult
	call(t, cs, "video_search", map[string]any{"tool": "make"}, &empty)
	if empty.Status != engine.SearchEmptyCatalog {
		t.Errorf("status = %q, want %q", empty.Status, engine.SearchEmptyCatalog)
	}

	var fb engine.Feedback
	res := call(t, cs, "feedback_submit", map[string]any{"video_id": "a2", "user_rating": 4}, &fb)
	if res.IsError || fb.ID == "" || fb.FeedbackType != "general" {
		t.Fatalf("feedback_submit: %s %+v", errText(res), fb)
	}
	res = call(t, cs, "feedback_submit", map[string]any{"video_id": "a2", "user_rating": 9}, nil)
	if !res.IsError {
		t.Error("rating 9 accepted")
	}

	var recs VideoRecommendOutput
	call(t, cs, "video_recommend", map[string]any{"video_id": "a1"}, &recs)
	if len(recs.Recommendations) != 1 || recs.Recommendations[0].Video.ExternalID != "a2" {
		t.Errorf("recommendations = %+v", recs)
	}
}
