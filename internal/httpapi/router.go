// Package httpapi serves the catalog, learning paths, recommendations and
// feedback over a JSON REST API for the presentation layer.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/anatolykoptev/go_learn/internal/engine/learning"
	"github.com/anatolykoptev/go_learn/internal/engine/store"
)

// Config wires the router to its services.
type Config struct {
	DB           *store.DB
	Paths        *learning.Generator
	Recommender  *learning.Recommender
	AllowOrigins []string // empty = any origin
}

// NewRouter builds the gin engine with every /api route mounted.
func NewRouter(cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	router.Use(cors.New(corsCfg))

	h := &handler{db: cfg.DB, paths: cfg.Paths, rec: cfg.Recommender}

	router.GET("/healthz", h.health)
	api := router.Group("/api")
	{
		api.GET("/videos/search", h.searchVideos)
		api.GET("/videos/stats", h.videoStats)

		api.GET("/paths", h.listPaths)
		api.GET("/paths/:id", h.getPath)
		api.POST("/paths", h.createPath)
		api.PUT("/paths/:id", h.updatePath)
		api.DELETE("/paths/:id", h.deactivatePath)
		api.POST("/paths/generate", h.generatePaths)

		api.GET("/recommendations/:videoId", h.recommend)

		api.POST("/feedback", h.submitFeedback)
		api.GET("/feedback/:videoId", h.listFeedback)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			slog.Error("http: request failed", append(attrs, slog.String("error", c.Errors.String()))...)
			return
		}
		slog.Debug("http: request", attrs...)
	}
}

// Serve starts listening on addr in the background. Shut the returned server down to stop it.
func Serve(addr string, router http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http: listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http: server failed", slog.Any("error", err))
		}
	}()
	return srv
}
