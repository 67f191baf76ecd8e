// Package toolutil provides helpers shared by the MCP tool handlers and the
// REST handlers: input normalisation, cached catalog reads and error kinds.
package toolutil

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// NormTool parses a tool field. Empty input becomes def when def is set.
func NormTool(s string, def engine.Tool, allowAll bool) (engine.Tool, error) {
	if strings.TrimSpace(s) == "" && def != "" {
		return def, nil
	}
	return engine.ParseTool(s, allowAll)
}

// NormDifficulty parses an optional difficulty; empty input means "any".
func NormDifficulty(s string) (engine.Difficulty, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return engine.ParseDifficulty(s)
}

// SplitList splits a comma-separated query value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Limit returns n clamped to [1, max], or def when n is not positive.
func Limit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Cached returns the cached value under key or computes, stores and returns it.
// Failed computations are never cached.
func Cached[T any](ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := engine.CacheLoadJSON[T](ctx, key); ok {
		return v, nil
	}
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	engine.CacheStoreJSON(ctx, key, v)
	return v, nil
}

// Error kinds reported to clients.
const (
	KindValidation = "validation_error"
	KindNotFound   = "not_found"
	KindConflict   = "invalid_transition"
	KindSource     = "source_unavailable"
	KindInternal   = "internal_error"
)

// ErrorKind classifies err against the engine sentinels.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return KindValidation
	case errors.Is(err, engine.ErrNotFound):
		return KindNotFound
	case errors.Is(err, engine.ErrInvalidTransition):
		return KindConflict
	case errors.Is(err, engine.ErrSourceUnavailable):
		return KindSource
	}
	return KindInternal
}

// SearchKey is the catalog cache key of a search query.
func SearchKey(q engine.SearchQuery) string {
	return engine.CatalogCacheKey("search", string(q.Tool), string(q.Difficulty), strconv.Itoa(q.MinScore),
		strings.ToLower(strings.TrimSpace(q.Text)), strconv.Itoa(q.Limit), strconv.Itoa(q.Offset))
}
