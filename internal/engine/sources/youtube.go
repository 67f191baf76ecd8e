// Package sources implements the video Source Connectors: the YouTube Data
// API v3, a results-page scraper (ytInitialData + Innertube player details)
// and a yt-dlp subprocess. Every connector returns engine.RawVideo records and
// wraps outages in engine.ErrSourceUnavailable so the orchestrator can tell a
// dead source from a single bad query.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

func watchURL(id string) string { return watchURLPrefix + id }

func thumbnailURL(id string) string { return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg" }

var videoIDRE = regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// VideoID pulls the 11-char video id out of any YouTube URL form.
func VideoID(rawURL string) string {
	if m := videoIDRE.FindStringSubmatch(rawURL); len(m) >= 2 {
		return m[1]
	}
	return ""
}

var isoDurationRE = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO-8601 duration such as "PT1H2M3S" to seconds.
// Unparseable input yields 0, which the scorer treats as unknown length.
func ParseISODuration(s string) int {
	m := isoDurationRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	mult := []int{86400, 3600, 60, 1}
	total := 0
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, _ := strconv.Atoi(part)
		total += n * mult[i]
	}
	return total
}

// parseClock converts "12:34" or "1:02:03" to seconds.
func parseClock(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// parseCount reads the digits out of "1,234,567 views" style labels.
// Abbreviated labels ("1.2M views") are expanded.
func parseCount(s string) int64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || strings.HasPrefix(s, "no ") {
		return 0
	}
	fields := strings.Fields(s)
	num := strings.ReplaceAll(fields[0], ",", "")
	mult := 1.0
	switch {
	case strings.HasSuffix(num, "k"):
		mult, num = 1e3, strings.TrimSuffix(num, "k")
	case strings.HasSuffix(num, "m"):
		mult, num = 1e6, strings.TrimSuffix(num, "m")
	case strings.HasSuffix(num, "b"):
		mult, num = 1e9, strings.TrimSuffix(num, "b")
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return int64(f * mult)
}

var relTimeRE = regexp.MustCompile(`(\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago`)

// parseRelativeTime turns "3 weeks ago" into an approximate timestamp.
func parseRelativeTime(s string, now time.Time) time.Time {
	m := relTimeRE.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return time.Time{}
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "second":
		return now.Add(-time.Duration(n) * time.Second)
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	}
	return now.AddDate(-n, 0, 0)
}

// unavailable tags err as a source outage.
func unavailable(source string, err error) error {
	return fmt.Errorf("%s: %w: %w", source, engine.ErrSourceUnavailable, err)
}

// Fallback tries connectors in order. A connector that reports
// ErrSourceUnavailable hands the query to the next one; any other error (or
// success) is returned as is.
type Fallback struct {
	chain []namedSource
}

type namedSource struct {
	name string
	src  searcher
}

type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]engine.RawVideo, error)
}

type detailer interface {
	FetchDetails(ctx context.Context, id string) (engine.RawVideoDetails, error)
}

// Add appends a connector to the chain.
func (f *Fallback) Add(name string, src searcher) *Fallback {
	f.chain = append(f.chain, namedSource{name: name, src: src})
	return f
}

// Len reports how many connectors are configured.
func (f *Fallback) Len() int { return len(f.chain) }

// Search runs query against the first connector that is up.
func (f *Fallback) Search(ctx context.Context, query string, limit int) ([]engine.RawVideo, error) {
	if len(f.chain) == 0 {
		return nil, fmt.Errorf("%w: no video source configured", engine.ErrSourceUnavailable)
	}
	var lastErr error
	for _, s := range f.chain {
		videos, err := s.src.Search(ctx, query, limit)
		if err == nil {
			return videos, nil
		}
		if !errors.Is(err, engine.ErrSourceUnavailable) {
			return nil, err
		}
		slog.Warn("video source unavailable, trying next", slog.String("source", s.name), slog.Any("error", err))
		lastErr = err
	}
	return nil, lastErr
}

// FetchDetails asks each connector able to fetch details, in order.
func (f *Fallback) FetchDetails(ctx context.Context, id string) (engine.RawVideoDetails, error) {
	var lastErr error = fmt.Errorf("no detail-capable source for %s", id)
	for _, s := range f.chain {
		d, ok := s.src.(detailer)
		if !ok {
			continue
		}
		out, err := d.FetchDetails(ctx, id)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return engine.RawVideoDetails{}, lastErr
}

// FromConfig assembles the connector chain from engine.Cfg: Data API when a
// key is set, yt-dlp when a binary path is set, and the page scraper always.
func FromConfig() *Fallback {
	c := engine.Cfg
	f := &Fallback{}
	if c.YouTubeAPIKey != "" {
		f.Add("youtube_api", NewDataAPI(c.HTTPClient, c.YouTubeAPIKey, c.YouTubeAPIKeyFallback))
	}
	if c.YtDlpPath != "" {
		f.Add("yt-dlp", NewYtDlp(c.YtDlpPath))
	}
	f.Add("youtube_page", NewPageScraper(c.BrowserClient, c.HTTPClient))
	return f
}
