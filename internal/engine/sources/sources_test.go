package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

var testBackoff = engine.Backoff{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT15M33S", 933},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"P1DT1S", 86401},
		{"P0D", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseISODuration(tt.in); got != tt.want {
				t.Errorf("ParseISODuration(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12:34", 754},
		{"1:02:03", 3723},
		{"0:59", 59},
		{"LIVE", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseClock(tt.in); got != tt.want {
			t.Errorf("parseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1,234,567 views", 1234567},
		{"987 views", 987},
		{"1.2M views", 1200000},
		{"15K views", 15000},
		{"No views", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseCount(tt.in); got != tt.want {
			t.Errorf("parseCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"3 weeks ago", now.AddDate(0, 0, -21)},
		{"Streamed 2 years ago", now.AddDate(-2, 0, 0)},
		{"1 month ago", now.AddDate(0, -1, 0)},
		{"5 hours ago", now.Add(-5 * time.Hour)},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseRelativeTime(tt.in, now); !got.Equal(tt.want) {
			t.Errorf("parseRelativeTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?list=x&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://example.com", ""},
	}
	for _, tt := range tests {
		if got := VideoID(tt.url); got != tt.want {
			t.Errorf("VideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	in := []byte(`{"a":"x}\"{y","b":{"c":1}};var other = {}`)
	got := extractJSON(in)
	want := `{"a":"x}\"{y","b":{"c":1}}`
	if string(got) != want {
		t.Errorf("extractJSON = %s, want %s", got, want)
	}
	if extractJSON([]byte(`{"open":`)) != nil {
		t.Error("unterminated object must yield nil")
	}
}

// --- Data API ---

func newAPIServer(t *testing.T, goodKey string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != goodKey {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"message":"quotaExceeded"}}`))
			return
		}
		switch r.URL.Path {
		case "/search":
			if q.Get("q") == "bad" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"items":[
				{"id":{"videoId":"vid00000001"},"snippet":{"title":"Zapier Tutorial","description":"short",
				 "channelTitle":"Zapier","publishedAt":"2026-01-10T10:00:00Z","thumbnails":{"high":{"url":"https://img/1"}}}},
				{"id":{"videoId":"vid00000002"},"snippet":{"title":"Second","channelTitle":"Someone",
				 "publishedAt":"2025-05-01T00:00:00Z"}},
				{"id":{},"snippet":{"title":"channel result"}}
			]}`))
		case "/videos":
			if q.Get("id") != "vid00000001,vid00000002" && q.Get("id") != "vid00000001" {
				t.Errorf("unexpected ids %q", q.Get("id"))
			}
			_, _ = w.Write([]byte(`{"items":[
				{"id":"vid00000001","snippet":{"description":"a much longer full description","tags":["zapier","automation"],
				 "publishedAt":"2026-01-10T10:00:00Z"},
				 "statistics":{"viewCount":"150000","likeCount":"2000"},"contentDetails":{"duration":"PT15M"}},
				{"id":"vid00000002","statistics":{"viewCount":"42"},"contentDetails":{"duration":"PT59S"}}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDataAPISearch(t *testing.T) {
	srv := newAPIServer(t, "good")
	defer srv.Close()

	api := NewDataAPI(srv.Client(), "exhausted", "good")
	api.base = srv.URL
	api.backoff = testBackoff

	videos, err := api.Search(context.Background(), "zapier tutorial", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("got %d videos, want 2", len(videos))
	}
	v := videos[0]
	if v.ExternalID != "vid00000001" || v.Channel != "Zapier" || v.ThumbnailURL != "https://img/1" {
		t.Errorf("unexpected first video: %+v", v)
	}
	if v.ViewCount != 150000 || v.LikeCount != 2000 || v.DurationSeconds != 900 {
		t.Errorf("statistics not merged: views=%d likes=%d duration=%d", v.ViewCount, v.LikeCount, v.DurationSeconds)
	}
	if v.Description != "a much longer full description" {
		t.Errorf("description = %q", v.Description)
	}
	if len(v.Tags) != 2 {
		t.Errorf("tags = %v", v.Tags)
	}
	if v.URL != "https://www.youtube.com/watch?v=vid00000001" {
		t.Errorf("url = %q", v.URL)
	}
	if videos[1].DurationSeconds != 59 || videos[1].ViewCount != 42 {
		t.Errorf("second video not enriched: %+v", videos[1])
	}

	d, err := api.FetchDetails(context.Background(), "vid00000001")
	if err != nil {
		t.Fatalf("FetchDetails: %v", err)
	}
	if d.DurationSeconds != 900 || d.PublishedAt.IsZero() {
		t.Errorf("details = %+v", d)
	}
}

func TestDataAPIErrors(t *testing.T) {
	srv := newAPIServer(t, "good")
	defer srv.Close()

	t.Run("all keys rejected", func(t *testing.T) {
		api := NewDataAPI(srv.Client(), "k1", "k2")
		api.base = srv.URL
		api.backoff = testBackoff
		_, err := api.Search(context.Background(), "n8n", 5)
		if !errors.Is(err, engine.ErrSourceUnavailable) {
			t.Fatalf("want ErrSourceUnavailable, got %v", err)
		}
	})
	t.Run("no key", func(t *testing.T) {
		api := NewDataAPI(srv.Client())
		_, err := api.Search(context.Background(), "n8n", 5)
		if !errors.Is(err, engine.ErrSourceUnavailable) {
			t.Fatalf("want ErrSourceUnavailable, got %v", err)
		}
	})
	t.Run("bad query is not an outage", func(t *testing.T) {
		api := NewDataAPI(srv.Client(), "good")
		api.base = srv.URL
		api.backoff = testBackoff
		_, err := api.Search(context.Background(), "bad", 5)
		if err == nil || errors.Is(err, engine.ErrSourceUnavailable) {
			t.Fatalf("want plain error, got %v", err)
		}
	})
}

// --- Page scraper ---

const resultsPage = `<html><script>var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":
{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[
{"videoRenderer":{"videoId":"aaaaaaaaaaa","title":{"runs":[{"text":"n8n Beginner Course"}]},
 "ownerText":{"runs":[{"text":"n8n"}]},"viewCountText":{"simpleText":"12,345 views"},
 "lengthText":{"simpleText":"20:00"},"publishedTimeText":{"simpleText":"2 weeks ago"},
 "descriptionSnippet":{"runs":[{"text":"Learn "},{"text":"n8n"}]},
 "thumbnail":{"thumbnails":[{"url":"small"},{"url":"large"}]}}},
{"adSlotRenderer":{}},
{"videoRenderer":{"videoId":"bbbbbbbbbbb","title":{"runs":[{"text":"Second {tricky} \"title\""}]},
 "viewCountText":{"simpleText":"1.5M views"},"lengthText":{"simpleText":"1:00:00"}}},
{"videoRenderer":{"videoId":"aaaaaaaaaaa","title":{"runs":[{"text":"dup"}]}}}
]}}]}}}}};</script></html>`

func TestPageScraperSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/results":
			if r.URL.Query().Get("search_query") == "" {
				t.Error("missing search_query")
			}
			_, _ = w.Write([]byte(resultsPage))
		case "/empty":
			_, _ = w.Write([]byte("<html>consent wall</html>"))
		}
	}))
	defer srv.Close()

	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	p := NewPageScraper(nil, srv.Client())
	p.resultsURL = srv.URL + "/results"
	p.backoff = testBackoff
	p.now = func() time.Time { return now }

	videos, err := p.Search(context.Background(), "n8n beginner", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("got %d videos, want 2 (duplicate dropped)", len(videos))
	}
	v := videos[0]
	if v.ExternalID != "aaaaaaaaaaa" || v.Title != "n8n Beginner Course" || v.Channel != "n8n" {
		t.Errorf("first video: %+v", v)
	}
	if v.ViewCount != 12345 || v.DurationSeconds != 1200 || v.Description != "Learn n8n" || v.ThumbnailURL != "large" {
		t.Errorf("first video fields: %+v", v)
	}
	if !v.PublishedAt.Equal(now.AddDate(0, 0, -14)) {
		t.Errorf("published = %v", v.PublishedAt)
	}
	if videos[1].Title != `Second {tricky} "title"` || videos[1].DurationSeconds != 3600 || videos[1].ViewCount != 1500000 {
		t.Errorf("second video: %+v", videos[1])
	}

	limited, err := p.Search(context.Background(), "n8n", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit not honoured: %d, %v", len(limited), err)
	}

	p.resultsURL = srv.URL + "/empty"
	if _, err := p.Search(context.Background(), "x", 5); !errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("page without ytInitialData: want ErrSourceUnavailable, got %v", err)
	}
}

func TestPageScraperFetchDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req innertubeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Context.Client.ClientName != "ANDROID" {
			t.Errorf("client = %q", req.Context.Client.ClientName)
		}
		if req.VideoID == "gone0000000" {
			_, _ = w.Write([]byte(`{"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"videoDetails":{"videoId":%q,"lengthSeconds":"754","keywords":["make","tutorial"],
			"shortDescription":"Full description","viewCount":"9001"},
			"microformat":{"playerMicroformatRenderer":{"publishDate":"2025-11-02"}}}`, req.VideoID)
	}))
	defer srv.Close()

	p := NewPageScraper(nil, srv.Client())
	p.playerURL = srv.URL
	p.backoff = testBackoff

	d, err := p.FetchDetails(context.Background(), "ccccccccccc")
	if err != nil {
		t.Fatalf("FetchDetails: %v", err)
	}
	if d.DurationSeconds != 754 || d.ViewCount != 9001 || d.Description != "Full description" || len(d.Tags) != 2 {
		t.Errorf("details = %+v", d)
	}
	if !d.PublishedAt.Equal(time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", d.PublishedAt)
	}

	if _, err := p.FetchDetails(context.Background(), "gone0000000"); err == nil || !strings.Contains(err.Error(), "Video unavailable") {
		t.Errorf("want playability reason, got %v", err)
	}
}

// --- yt-dlp ---

func TestYtDlpSearch(t *testing.T) {
	out := strings.Join([]string{
		`{"id":"ddddddddddd","title":"Make scenario walkthrough","channel":"Make","view_count":5000,"like_count":40,` +
			`"duration":612.5,"upload_date":"20260102","tags":["make"],"webpage_url":"https://www.youtube.com/watch?v=ddddddddddd"}`,
		`WARNING: not json`,
		`{"id":"eeeeeeeeeee","title":"Second","uploader":"Someone","duration":30,"timestamp":1767225600}`,
		`{"id":"fffffffffff","title":"Third"}`,
	}, "\n")

	var gotArgs []string
	y := NewYtDlp("yt-dlp")
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(out), nil
	}

	videos, err := y.Search(context.Background(), "make tutorial", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if last := gotArgs[len(gotArgs)-1]; last != "ytsearch2:make tutorial" {
		t.Errorf("query arg = %q", last)
	}
	if len(videos) != 2 {
		t.Fatalf("got %d videos, want 2", len(videos))
	}
	v := videos[0]
	if v.DurationSeconds != 612 || v.ViewCount != 5000 || v.Channel != "Make" {
		t.Errorf("first: %+v", v)
	}
	if !v.PublishedAt.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", v.PublishedAt)
	}
	if videos[1].Channel != "Someone" || videos[1].PublishedAt.IsZero() {
		t.Errorf("second: %+v", videos[1])
	}
	if videos[1].URL != watchURL("eeeeeeeeeee") {
		t.Errorf("url fallback = %q", videos[1].URL)
	}
}

func TestYtDlpMissingBinary(t *testing.T) {
	y := NewYtDlp("yt-dlp")
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if _, err := y.Search(context.Background(), "q", 5); !errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("want ErrSourceUnavailable, got %v", err)
	}
}

// --- Fallback ---

type stubSource struct {
	videos []engine.RawVideo
	err    error
	calls  int
}

func (s *stubSource) Search(context.Context, string, int) ([]engine.RawVideo, error) {
	s.calls++
	return s.videos, s.err
}

func TestFallback(t *testing.T) {
	down := &stubSource{err: unavailable("first", errors.New("quota"))}
	up := &stubSource{videos: []engine.RawVideo{{ExternalID: "x"}}}

	f := (&Fallback{}).Add("first", down).Add("second", up)
	got, err := f.Search(context.Background(), "q", 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("fallback: %v, %v", got, err)
	}
	if down.calls != 1 || up.calls != 1 {
		t.Errorf("calls = %d, %d", down.calls, up.calls)
	}

	broken := &stubSource{err: errors.New("bad query")}
	after := &stubSource{}
	f = (&Fallback{}).Add("broken", broken).Add("after", after)
	if _, err := f.Search(context.Background(), "q", 5); err == nil || errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("non-outage error must be returned as is, got %v", err)
	}
	if after.calls != 0 {
		t.Error("non-outage error must not fall through")
	}

	f = (&Fallback{}).Add("a", down)
	if _, err := f.Search(context.Background(), "q", 5); !errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("all down: want ErrSourceUnavailable, got %v", err)
	}
	if _, err := (&Fallback{}).Search(context.Background(), "q", 5); !errors.Is(err, engine.ErrSourceUnavailable) {
		t.Errorf("empty chain: want ErrSourceUnavailable, got %v", err)
	}
}
