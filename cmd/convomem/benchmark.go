package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/pkg/app"
	"github.com/convomem/convomem/pkg/benchmark"
)

var (
	benchIterations  int
	benchConcurrency int
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run stress/perf scenarios over the storage, search, and context-assembly layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		a, err := app.Build(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		deps := benchmark.Deps{
			Conversations: a.Conversations,
			Messages:      a.Messages,
			SearchEngine:  a.SearchEng,
			Assembler:     a.Assembler,
		}
		runner := benchmark.NewRunner()

		scenarios := []benchmark.Scenario{
			benchmark.MessageWriteScenario(deps, benchIterations, benchConcurrency),
			benchmark.SearchLatencyScenario(deps, "benchmark", benchIterations, benchConcurrency),
			benchmark.ContextAssemblyScenario(deps, "benchmark-conversation", 2000, benchIterations, benchConcurrency),
		}

		for _, s := range scenarios {
			result, err := runner.Run(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Printf("%-20s iters=%-6d errors=%-4d p50=%-10s p95=%-10s p99=%-10s max=%-10s cpu=%.1f%%->%.1f%% rss=%d->%d\n",
				result.Name, result.Iterations, result.Errors,
				result.P50, result.P95, result.P99, result.Max,
				result.Before.CPUPercent, result.After.CPUPercent,
				result.Before.ProcessRSS, result.After.ProcessRSS,
			)
		}
		return nil
	},
}

func init() {
	benchmarkCmd.Flags().IntVar(&benchIterations, "iterations", 100, "iterations per scenario")
	benchmarkCmd.Flags().IntVar(&benchConcurrency, "concurrency", 1, "concurrent workers per scenario")
}
