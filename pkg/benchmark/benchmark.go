// Package benchmark runs scripted stress/perf scenarios over the storage,
// search, and context-assembly layers and reports latency percentiles
// alongside host resource usage, grounded on the teacher's pattern of
// table-driven conversation benchmarks (pkg/conversations/benchmark_test.go)
// but built as a runnable harness rather than a go test -bench suite.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/convomem/convomem/pkg/logger"
)

// Scenario is one named unit of work a Runner can execute repeatedly.
// Setup runs once before the iterations and may return a cleanup func;
// Step runs once per iteration and its wall-clock time is recorded.
type Scenario struct {
	Name       string
	Iterations int
	Concurrency int
	Setup      func(ctx context.Context) (func(), error)
	Step       func(ctx context.Context, i int) error
}

// ResourceSnapshot captures host CPU/memory usage and this process's RSS at
// a point in time, via gopsutil/v4.
type ResourceSnapshot struct {
	CPUPercent  float64 `json:"cpuPercent"`
	MemPercent  float64 `json:"memPercent"`
	ProcessRSS  uint64  `json:"processRssBytes"`
}

// Result is one Scenario's outcome: latency percentiles over every
// iteration plus before/after resource snapshots.
type Result struct {
	Name       string           `json:"name"`
	Iterations int              `json:"iterations"`
	Errors     int              `json:"errors"`
	Total      time.Duration    `json:"total"`
	P50        time.Duration    `json:"p50"`
	P95        time.Duration    `json:"p95"`
	P99        time.Duration    `json:"p99"`
	Max        time.Duration    `json:"max"`
	Before     ResourceSnapshot `json:"before"`
	After      ResourceSnapshot `json:"after"`
}

// Runner executes Scenarios sequentially, isolating each one's resource
// snapshot and latency distribution.
type Runner struct{}

// NewRunner builds a Runner. It carries no state: every Scenario is
// self-contained via its Setup/Step closures, which typically close over an
// *app.App built by the caller.
func NewRunner() *Runner { return &Runner{} }

// Run executes scenario's Setup once, then Step Iterations times
// sequentially (Concurrency <= 1) or fanned across Concurrency workers,
// recording per-iteration latency and a before/after resource snapshot.
func (r *Runner) Run(ctx context.Context, s Scenario) (Result, error) {
	if s.Iterations <= 0 {
		s.Iterations = 1
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}

	before := snapshot()

	var cleanup func()
	if s.Setup != nil {
		c, err := s.Setup(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("scenario %s: setup failed: %w", s.Name, err)
		}
		cleanup = c
	}
	if cleanup != nil {
		defer cleanup()
	}

	durations := make([]time.Duration, s.Iterations)
	errs := make([]error, s.Iterations)

	start := time.Now()
	if s.Concurrency == 1 {
		for i := 0; i < s.Iterations; i++ {
			durations[i], errs[i] = timeStep(ctx, s.Step, i)
		}
	} else {
		jobs := make(chan int)
		done := make(chan struct{})
		for w := 0; w < s.Concurrency; w++ {
			go func() {
				for i := range jobs {
					durations[i], errs[i] = timeStep(ctx, s.Step, i)
				}
				done <- struct{}{}
			}()
		}
		go func() {
			for i := 0; i < s.Iterations; i++ {
				jobs <- i
			}
			close(jobs)
		}()
		for w := 0; w < s.Concurrency; w++ {
			<-done
		}
	}
	total := time.Since(start)

	errCount := 0
	for _, e := range errs {
		if e != nil {
			errCount++
			logger.L.WithError(e).WithField("scenario", s.Name).Debug("benchmark iteration failed")
		}
	}

	p50, p95, p99, max := percentiles(durations)
	return Result{
		Name:       s.Name,
		Iterations: s.Iterations,
		Errors:     errCount,
		Total:      total,
		P50:        p50,
		P95:        p95,
		P99:        p99,
		Max:        max,
		Before:     before,
		After:      snapshot(),
	}, nil
}

func timeStep(ctx context.Context, step func(context.Context, int) error, i int) (time.Duration, error) {
	start := time.Now()
	err := step(ctx, i)
	return time.Since(start), err
}

func percentiles(durations []time.Duration) (p50, p95, p99, max time.Duration) {
	if len(durations) == 0 {
		return 0, 0, 0, 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		idx := int(math.Ceil(q*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return at(0.50), at(0.95), at(0.99), sorted[len(sorted)-1]
}

// snapshot reads instantaneous CPU/memory figures. Any gopsutil failure
// (e.g. sandboxed environments without /proc) yields a zero-value
// snapshot rather than aborting the scenario.
func snapshot() ResourceSnapshot {
	var s ResourceSnapshot

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemPercent = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			s.ProcessRSS = info.RSS
		}
	}
	return s
}
