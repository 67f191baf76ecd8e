// Command go_learn catalogs workflow-automation tutorials, runs scraping jobs and builds learning paths.
//
// serve (the default command) exposes the MCP tools over HTTP and, when
// HTTP_PORT is set, the REST API. scrape, paths, seed and cleanup run one
// operation against the catalog and exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/engine/learning"
	"github.com/anatolykoptev/go_learn/internal/engine/quality"
	"github.com/anatolykoptev/go_learn/internal/engine/scrape"
	"github.com/anatolykoptev/go_learn/internal/engine/sources"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

var (
	version = "dev"
	dbFlag  string
)

func main() {
	_ = godotenv.Load()
	initLogging(env.Str("LOG_LEVEL", "info"))

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := serveCmd()
	root := &cobra.Command{
		Use:           "go_learn",
		Short:         "Tutorial catalog, scraping orchestrator and learning paths for Zapier, n8n and Make",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&dbFlag, "db", "", "Catalog database: PostgreSQL URL or SQLite path (overrides DATABASE_URL)")
	root.AddCommand(serve, scrapeCmd(), pathsCmd(), seedCmd(), cleanupCmd())
	return root
}

func initLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// initEngine publishes the env configuration. withSources builds the stealth
// browser client the page connector needs.
func initEngine(withSources bool) {
	c := engine.Config{
		DatabaseURL:           env.Str("DATABASE_URL", "~/.go_learn/catalog.db"),
		RedisURL:              env.Str("REDIS_URL", ""),
		CacheTTL:              env.Duration("CACHE_TTL", 15*time.Minute),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval:  env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		YtDlpPath:             env.Str("YTDLP_PATH", ""),
		KeywordsFile:          env.Str("KEYWORDS_FILE", ""),
		CourtesyDelay:         env.Duration("COURTESY_DELAY", engine.DefaultCourtesyDelay),
		MaxConcurrentJobs:     env.Int("MAX_CONCURRENT_JOBS", 2),
		DefaultMinQuality:     env.Int("DEFAULT_MIN_QUALITY", engine.DefaultMinQualityScore),
		DefaultMaxPerTerm:     env.Int("DEFAULT_MAX_PER_TERM", engine.DefaultMaxResultsPerTerm),
		MaxSearchTerms:        env.Int("MAX_SEARCH_TERMS", engine.DefaultMaxSearchTerms),
		LogRetention:          env.Duration("LOG_RETENTION", 30*24*time.Hour),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
	if dbFlag != "" {
		c.DatabaseURL = dbFlag
	}
	if withSources {
		c.BrowserClient = engine.NewBrowserClient(env.Str("WEBSHARE_API_KEY", ""))
	}
	engine.Init(c)
	engine.InitCache(c.RedisURL, c.CacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

// app holds the services every command is built from.
type app struct {
	db     *store.DB
	scorer *quality.Scorer
	jobs   *scrape.Orchestrator
	sched  *scrape.Scheduler
	paths  *learning.Generator
	rec    *learning.Recommender
}

func openApp(ctx context.Context, withSources bool) (*app, error) {
	initEngine(withSources)
	scorer, err := quality.New(engine.Cfg.KeywordsFile)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, engine.Cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{
		db:     db,
		scorer: scorer,
		paths:  learning.NewGenerator(db),
		rec:    learning.NewRecommender(db),
	}
	if withSources {
		chain := sources.FromConfig()
		slog.Info("source connectors ready", slog.Int("connectors", chain.Len()))
		a.jobs = scrape.New(db, chain, scorer, scrape.Options{CourtesyDelay: engine.Cfg.CourtesyDelay})
		a.sched = scrape.NewScheduler(db, a.jobs)
	}
	return a, nil
}

func (a *app) Close() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.jobs != nil {
		a.jobs.Shutdown()
	}
	a.db.Close()
}
