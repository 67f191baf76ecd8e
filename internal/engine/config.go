package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	DatabaseURL           string
	RedisURL              string
	CacheTTL              time.Duration
	CacheMaxEntries       int
	CacheCleanupInterval  time.Duration
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string
	YtDlpPath             string // empty = yt-dlp connector disabled
	KeywordsFile          string // empty = embedded keyword tables
	CourtesyDelay         time.Duration
	MaxConcurrentJobs     int
	DefaultMinQuality     int
	DefaultMaxPerTerm     int
	MaxSearchTerms        int
	LogRetention          time.Duration
	HTTPClient            *http.Client
	BrowserClient         *BrowserClient // nil = page scraping uses HTTPClient
}

// Defaults used when a Config field is left zero.
const (
	DefaultMinQualityScore   = 60
	DefaultMaxResultsPerTerm = 50
	DefaultMaxSearchTerms    = 8
	DefaultCourtesyDelay     = time.Second
)

var cfg = Config{
	CourtesyDelay:     DefaultCourtesyDelay,
	MaxConcurrentJobs: 2,
	DefaultMinQuality: DefaultMinQualityScore,
	DefaultMaxPerTerm: DefaultMaxResultsPerTerm,
	MaxSearchTerms:    DefaultMaxSearchTerms,
	LogRetention:      30 * 24 * time.Hour,
	HTTPClient:        &http.Client{Timeout: 15 * time.Second},
}

// Cfg exposes the engine configuration for sub-packages (sources, scrape, store).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.DefaultMinQuality <= 0 {
		c.DefaultMinQuality = DefaultMinQualityScore
	}
	if c.DefaultMaxPerTerm <= 0 {
		c.DefaultMaxPerTerm = DefaultMaxResultsPerTerm
	}
	if c.MaxSearchTerms <= 0 {
		c.MaxSearchTerms = DefaultMaxSearchTerms
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 1
	}
	cfg = c
	Cfg = &cfg
}
