package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/pkg/app"
	"github.com/convomem/convomem/pkg/config"
	"github.com/convomem/convomem/pkg/logger"
)

// runHealthCheck opens the store, runs migrations, and builds the full tool
// registry, then reports per-tool health. It never starts the MCP server.
// Returns the process exit code: 0 healthy, 1 otherwise.
func runHealthCheck(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		logger.L.WithError(err).Error("failed to load configuration")
		return 1
	}
	return healthCheckWithConfig(ctx, cfg)
}

func healthCheckWithConfig(ctx context.Context, cfg *config.Config) int {
	a, err := app.Build(ctx, cfg, false)
	if err != nil {
		logger.L.WithError(err).Error("startup failed")
		return 1
	}
	defer a.Close()

	results, ok := a.Registry.HealthCheck()
	logger.L.WithField("tools", results).WithField("healthy", ok).Info("health check complete")
	if !ok {
		return 1
	}
	return 0
}

var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Run startup checks and report tool registry health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if code := healthCheckWithConfig(cmd.Context(), cfg); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}
