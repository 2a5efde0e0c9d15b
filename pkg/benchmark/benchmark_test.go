package benchmark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentiles(t *testing.T) {
	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		100 * time.Millisecond,
	}
	p50, p95, p99, max := percentiles(durations)
	assert.Equal(t, 30*time.Millisecond, p50)
	assert.Equal(t, 100*time.Millisecond, p95)
	assert.Equal(t, 100*time.Millisecond, p99)
	assert.Equal(t, 100*time.Millisecond, max)
}

func TestPercentiles_Empty(t *testing.T) {
	p50, p95, p99, max := percentiles(nil)
	assert.Zero(t, p50)
	assert.Zero(t, p95)
	assert.Zero(t, p99)
	assert.Zero(t, max)
}

func TestRunner_RunSequential(t *testing.T) {
	runner := NewRunner()
	var calls int
	result, err := runner.Run(context.Background(), Scenario{
		Name:       "sequential",
		Iterations: 5,
		Step: func(ctx context.Context, i int) error {
			calls++
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, result.Iterations)
	assert.Zero(t, result.Errors)
}

func TestRunner_RunRecordsErrors(t *testing.T) {
	runner := NewRunner()
	result, err := runner.Run(context.Background(), Scenario{
		Name:       "flaky",
		Iterations: 4,
		Step: func(ctx context.Context, i int) error {
			if i%2 == 0 {
				return errors.New("boom")
			}
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Errors)
}

func TestRunner_SetupFailurePropagates(t *testing.T) {
	runner := NewRunner()
	_, err := runner.Run(context.Background(), Scenario{
		Name:       "setup-fails",
		Iterations: 1,
		Setup: func(ctx context.Context) (func(), error) {
			return nil, errors.New("setup broke")
		},
		Step: func(ctx context.Context, i int) error { return nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup broke")
}

func TestRunner_ConcurrentRunsEveryIteration(t *testing.T) {
	runner := NewRunner()
	seen := make(chan int, 10)
	result, err := runner.Run(context.Background(), Scenario{
		Name:        "concurrent",
		Iterations:  10,
		Concurrency: 4,
		Step: func(ctx context.Context, i int) error {
			seen <- i
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Iterations)
	close(seen)
	count := 0
	for range seen {
		count++
	}
	assert.Equal(t, 10, count)
}
