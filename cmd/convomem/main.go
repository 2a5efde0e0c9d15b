// Package main is the entry point for convomem: a conversation-memory MCP
// server that persists messages, builds an entity/relationship knowledge
// graph, and assembles token-budgeted context on request.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/pkg/config"
	"github.com/convomem/convomem/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "convomem",
	Short: "convomem is a persistent conversation-memory MCP server",
	Long:  `convomem stores conversation history in a local SQLite file, indexes it for full-text and hybrid search, and serves it to MCP clients over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if hc, _ := cmd.Flags().GetBool("health-check"); hc {
			os.Exit(runHealthCheck(cmd.Context()))
		}
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	ctx := context.Background()

	rootCmd.PersistentFlags().Bool("health-check", false, "run startup checks and report tool registry health, then exit")
	logLevel := rootCmd.PersistentFlags().String("log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	logFormat := rootCmd.PersistentFlags().String("log-format", "fmt", "log format (json, text, fmt)")

	cobra.OnInitialize(func() {
		if *logLevel != "" {
			if err := logger.SetLogLevel(*logLevel); err != nil {
				logger.L.WithField("log_level", *logLevel).Warn("invalid log level, using default")
			}
		}
		if *logFormat != "" {
			logger.SetLogFormat(*logFormat)
		}
	})

	rootCmd.PersistentFlags().String("db-path", "", "path to the SQLite database file (overrides config)")
	rootCmd.PersistentFlags().String("http-addr", "", "address for the admin HTTP surface, e.g. :9090 (disabled when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCheckCmd)
	rootCmd.AddCommand(dbStatusCmd)
	rootCmd.AddCommand(dbRollbackCmd)
	rootCmd.AddCommand(benchmarkCmd)

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.L.WithError(err).Error("convomem exited with an error")
		os.Exit(2)
	}
}

// loadConfig applies any --db-path/--http-addr flag overrides on top of the
// file/environment-derived config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("http-addr"); v != "" {
		cfg.HTTPAddr = v
	}
	return cfg, nil
}
