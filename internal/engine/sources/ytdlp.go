package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// YtDlp searches by running `yt-dlp --dump-json ytsearchN:<query>`, which
// returns full metadata (description, tags, upload date) in one pass.
type YtDlp struct {
	binary  string
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewYtDlp returns a connector for the binary at path.
func NewYtDlp(path string) *YtDlp {
	return &YtDlp{binary: path, timeout: 2 * time.Minute, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// yt-dlp exits non-zero when a single entry fails but still prints the rest.
		if stdout.Len() > 0 {
			slog.Debug("yt-dlp partial failure", slog.String("stderr", engine.TruncateRunes(stderr.String(), 300, "...")))
			return stdout.Bytes(), nil
		}
		return nil, fmt.Errorf("%w, stderr: %s", err, engine.TruncateRunes(strings.TrimSpace(stderr.String()), 300, "..."))
	}
	return stdout.Bytes(), nil
}

type ytDlpEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Channel     string   `json:"channel"`
	Uploader    string   `json:"uploader"`
	ViewCount   int64    `json:"view_count"`
	LikeCount   int64    `json:"like_count"`
	Duration    float64  `json:"duration"`
	UploadDate  string   `json:"upload_date"` // YYYYMMDD
	Timestamp   int64    `json:"timestamp"`
	Tags        []string `json:"tags"`
	Thumbnail   string   `json:"thumbnail"`
	WebpageURL  string   `json:"webpage_url"`
}

func (e ytDlpEntry) raw() engine.RawVideo {
	channel := e.Channel
	if channel == "" {
		channel = e.Uploader
	}
	var published time.Time
	switch {
	case e.Timestamp > 0:
		published = time.Unix(e.Timestamp, 0).UTC()
	case e.UploadDate != "":
		published, _ = time.Parse("20060102", e.UploadDate)
	}
	u := e.WebpageURL
	if u == "" {
		u = watchURL(e.ID)
	}
	thumb := e.Thumbnail
	if thumb == "" {
		thumb = thumbnailURL(e.ID)
	}
	return engine.RawVideo{
		ExternalID:      e.ID,
		Title:           e.Title,
		Description:     e.Description,
		Channel:         channel,
		ViewCount:       e.ViewCount,
		LikeCount:       e.LikeCount,
		DurationSeconds: int(e.Duration),
		PublishedAt:     published,
		ThumbnailURL:    thumb,
		URL:             u,
		Tags:            e.Tags,
	}
}

// Search runs one ytsearch query. A missing binary makes the source unavailable.
func (y *YtDlp) Search(ctx context.Context, query string, limit int) ([]engine.RawVideo, error) {
	if limit <= 0 {
		limit = engine.DefaultMaxResultsPerTerm
	}
	engine.IncrSourceSearches()
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	out, err := y.run(ctx, y.binary, "--dump-json", "--no-warnings", "--skip-download", "--ignore-errors",
		fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		engine.IncrSourceErrors()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, context.DeadlineExceeded) {
			return nil, unavailable("yt-dlp", err)
		}
		return nil, fmt.Errorf("yt-dlp search %q: %w", query, err)
	}
	return parseYtDlpLines(out, limit), nil
}

// FetchDetails runs yt-dlp against one video.
func (y *YtDlp) FetchDetails(ctx context.Context, id string) (engine.RawVideoDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()
	out, err := y.run(ctx, y.binary, "--dump-json", "--no-warnings", "--skip-download", watchURL(id))
	if err != nil {
		return engine.RawVideoDetails{}, fmt.Errorf("yt-dlp details %s: %w", id, err)
	}
	videos := parseYtDlpLines(out, 1)
	if len(videos) == 0 {
		return engine.RawVideoDetails{}, engine.NotFoundf("yt-dlp video %s", id)
	}
	v := videos[0]
	return engine.RawVideoDetails{
		Description:     v.Description,
		PublishedAt:     v.PublishedAt,
		Tags:            v.Tags,
		DurationSeconds: v.DurationSeconds,
		ViewCount:       v.ViewCount,
		LikeCount:       v.LikeCount,
	}, nil
}

// parseYtDlpLines decodes one JSON object per line, skipping malformed lines.
func parseYtDlpLines(out []byte, limit int) []engine.RawVideo {
	var videos []engine.RawVideo
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() && len(videos) < limit {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var e ytDlpEntry
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
			continue
		}
		videos = append(videos, e.raw())
	}
	return videos
}
