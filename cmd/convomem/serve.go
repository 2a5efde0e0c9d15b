package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/pkg/app"
	"github.com/convomem/convomem/pkg/httpapi"
	"github.com/convomem/convomem/pkg/logger"
	"github.com/convomem/convomem/pkg/mcpserver"
	"github.com/convomem/convomem/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the convomem MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:      cfg.TracingEnabled,
		SamplerType:  cfg.TracingSampler,
		SamplerRatio: cfg.TracingRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.L.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	a, err := app.Build(ctx, cfg, false)
	if err != nil {
		// Startup failure exits 1; only errors after startup reach main's exit 2.
		logger.L.WithError(err).Error("startup failed")
		_ = shutdownTracing(context.Background())
		os.Exit(1)
	}
	defer a.Close()

	if cfg.HTTPAddr != "" {
		admin := httpapi.New(a.Registry, a.Store, a.Cache)
		go func() {
			if err := admin.ListenAndServe(cfg.HTTPAddr); err != nil {
				logger.L.WithError(err).Error("admin HTTP surface stopped")
			}
		}()
	}

	srv := mcpserver.Build(a.Registry)
	return mcpserver.Serve(ctx, srv)
}
