// Package seed imports curated video tables into the catalog. Curated entries
// go through the scorer and classifier like scraped results, but are stored
// whatever their score.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/quality"
)

//go:embed curated.yaml
var curatedYAML []byte

// Entry is one curated video.
type Entry struct {
	ExternalID      string   `yaml:"external_id"`
	Title           string   `yaml:"title"`
	Description     string   `yaml:"description"`
	Channel         string   `yaml:"channel"`
	DurationSeconds int      `yaml:"duration_seconds"`
	ViewCount       int64    `yaml:"view_count"`
	LikeCount       int64    `yaml:"like_count"`
	PublishedAt     string   `yaml:"published_at"`
	URL             string   `yaml:"url"`
	ThumbnailURL    string   `yaml:"thumbnail_url"`
	Tool            string   `yaml:"tool"`
	Difficulty      string   `yaml:"difficulty"`
	Tags            []string `yaml:"tags"`
}

type file struct {
	Videos []Entry `yaml:"videos"`
}

// Parse decodes and validates a seed table.
func Parse(data []byte) ([]Entry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, engine.Validationf("seed table: %v", err)
	}
	seen := make(map[string]bool, len(f.Videos))
	for i, e := range f.Videos {
		if e.ExternalID == "" || strings.TrimSpace(e.Title) == "" {
			return nil, engine.Validationf("seed entry %d: external_id and title are required", i)
		}
		if seen[e.ExternalID] {
			return nil, engine.Validationf("seed entry %d: duplicate external_id %s", i, e.ExternalID)
		}
		seen[e.ExternalID] = true
		if _, err := engine.ParseTool(e.Tool, false); err != nil {
			return nil, fmt.Errorf("seed entry %s: %w", e.ExternalID, err)
		}
		if _, err := engine.ParseDifficulty(e.Difficulty); err != nil {
			return nil, fmt.Errorf("seed entry %s: %w", e.ExternalID, err)
		}
		if e.PublishedAt != "" {
			if _, err := parseDate(e.PublishedAt); err != nil {
				return nil, engine.Validationf("seed entry %s: published_at %q: %v", e.ExternalID, e.PublishedAt, err)
			}
		}
	}
	return f.Videos, nil
}

// Load reads a seed table from path, or the embedded curated table when path is empty.
func Load(path string) ([]Entry, error) {
	if path == "" {
		return Parse(curatedYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed table: %w", err)
	}
	return Parse(data)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// Raw converts an entry into the record shape a Source Connector produces.
func (e Entry) Raw() engine.RawVideo {
	v := engine.RawVideo{
		ExternalID:      e.ExternalID,
		Title:           e.Title,
		Description:     e.Description,
		Channel:         e.Channel,
		ViewCount:       e.ViewCount,
		LikeCount:       e.LikeCount,
		DurationSeconds: e.DurationSeconds,
		URL:             e.URL,
		ThumbnailURL:    e.ThumbnailURL,
		Tags:            e.Tags,
	}
	if v.URL == "" {
		v.URL = "https://www.youtube.com/watch?v=" + e.ExternalID
	}
	if v.ThumbnailURL == "" {
		v.ThumbnailURL = "https://i.ytimg.com/vi/" + e.ExternalID + "/hqdefault.jpg"
	}
	if t, err := parseDate(e.PublishedAt); err == nil {
		v.PublishedAt = t.UTC()
	}
	return v
}

// Upserter stores catalog records. *store.DB satisfies it.
type Upserter interface {
	UpsertVideo(ctx context.Context, v engine.VideoRecord) error
}

// Report summarises an import.
type Report struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Import scores, classifies and upserts every entry. Individual failures are
// collected in the report; only a cancelled context aborts the run.
func Import(ctx context.Context, db Upserter, scorer *quality.Scorer, entries []Entry, now time.Time) (Report, error) {
	if scorer == nil {
		scorer = quality.Default()
	}
	var rep Report
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		tool, _ := engine.ParseTool(e.Tool, false)
		diff, _ := engine.ParseDifficulty(e.Difficulty)
		rec, res := scorer.Annotate(e.Raw(), tool, diff, now)
		if err := db.UpsertVideo(ctx, rec); err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", e.ExternalID, err))
			slog.Warn("seed: upsert failed", slog.String("video", e.ExternalID), slog.Any("error", err))
			continue
		}
		rep.Imported++
		slog.Debug("seed: imported", slog.String("video", e.ExternalID), slog.Int("score", res.Overall))
	}
	slog.Info("seed: import finished", slog.Int("imported", rep.Imported), slog.Int("failed", rep.Failed))
	return rep, nil
}
