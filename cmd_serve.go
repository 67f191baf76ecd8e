package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_learn/internal/engine"
	"github.com/anatolykoptev/go_learn/internal/httpapi"
	"github.com/anatolykoptev/go_learn/internal/learnserver"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server, the job scheduler and (with HTTP_PORT) the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	mcpPort := env.Str("MCP_PORT", "8895")
	httpPort := env.Str("HTTP_PORT", "")

	if _, err := a.jobs.Reconcile(ctx); err != nil {
		return err
	}
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	if httpPort != "" {
		gin.SetMode(gin.ReleaseMode)
		router := httpapi.NewRouter(httpapi.Config{
			DB:           a.db,
			Paths:        a.paths,
			Recommender:  a.rec,
			AllowOrigins: env.List("CORS_ORIGINS", ""),
		})
		srv := httpapi.Serve(":"+httpPort, router)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	slog.Info("starting go_learn", slog.String("port", mcpPort), slog.String("version", version))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_learn",
		Version: version,
	}, nil)

	learnserver.RegisterTools(server, learnserver.Deps{
		Jobs:        a.jobs,
		Schedules:   a.sched,
		DB:          a.db,
		Paths:       a.paths,
		Recommender: a.rec,
	})
	slog.Info("tools registered", slog.Int("count", learnserver.ToolCount))

	return mcpserver.Run(server, mcpserver.Config{
		Name:         "go_learn",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 120 * time.Second,
		Metrics:      engine.FormatMetrics,
	})
}
