package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	JobsStarted       atomic.Int64
	JobsCompleted     atomic.Int64
	JobsFailed        atomic.Int64
	JobsCancelled     atomic.Int64
	SourceSearches    atomic.Int64
	SourceErrors      atomic.Int64
	VideosFound       atomic.Int64
	VideosSaved       atomic.Int64
	VideosFiltered    atomic.Int64
	UpsertErrors      atomic.Int64
	PathsGenerated    atomic.Int64
	FeedbackSubmitted atomic.Int64
}

var metricKeys = []string{
	"jobs_started", "jobs_completed", "jobs_failed", "jobs_cancelled",
	"source_searches", "source_errors",
	"videos_found", "videos_saved", "videos_filtered", "upsert_errors",
	"paths_generated", "feedback_submitted",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"jobs_started":       metrics.JobsStarted.Load(),
		"jobs_completed":     metrics.JobsCompleted.Load(),
		"jobs_failed":        metrics.JobsFailed.Load(),
		"jobs_cancelled":     metrics.JobsCancelled.Load(),
		"source_searches":    metrics.SourceSearches.Load(),
		"source_errors":      metrics.SourceErrors.Load(),
		"videos_found":       metrics.VideosFound.Load(),
		"videos_saved":       metrics.VideosSaved.Load(),
		"videos_filtered":    metrics.VideosFiltered.Load(),
		"upsert_errors":      metrics.UpsertErrors.Load(),
		"paths_generated":    metrics.PathsGenerated.Load(),
		"feedback_submitted": metrics.FeedbackSubmitted.Load(),
		"cache_hits":         hits,
		"cache_misses":       misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for scrape/ sub-package.
func IncrJobsStarted()      { metrics.JobsStarted.Add(1) }
func IncrJobsCompleted()    { metrics.JobsCompleted.Add(1) }
func IncrJobsFailed()       { metrics.JobsFailed.Add(1) }
func IncrJobsCancelled()    { metrics.JobsCancelled.Add(1) }
func IncrVideosFound(n int) { metrics.VideosFound.Add(int64(n)) }
func IncrVideosSaved()      { metrics.VideosSaved.Add(1) }
func IncrVideosFiltered()   { metrics.VideosFiltered.Add(1) }
func IncrUpsertErrors()     { metrics.UpsertErrors.Add(1) }

// Incrementors for sources/ sub-package.
func IncrSourceSearches() { metrics.SourceSearches.Add(1) }
func IncrSourceErrors()   { metrics.SourceErrors.Add(1) }

// Incrementors for learning/ and store/.
func IncrPathsGenerated(n int) { metrics.PathsGenerated.Add(int64(n)) }
func IncrFeedbackSubmitted()   { metrics.FeedbackSubmitted.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
