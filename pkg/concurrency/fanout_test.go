package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut_AllSucceed(t *testing.T) {
	calls := make(chan struct{}, 3)
	err := FanOut(context.Background(),
		func(context.Context) error { calls <- struct{}{}; return nil },
		func(context.Context) error { calls <- struct{}{}; return nil },
		func(context.Context) error { calls <- struct{}{}; return nil },
	)
	require.NoError(t, err)
	assert.Len(t, calls, 3)
}

func TestFanOut_AggregatesAllErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	err := FanOut(context.Background(),
		func(context.Context) error { return errA },
		func(context.Context) error { return nil },
		func(context.Context) error { return errB },
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
}

func TestFanOut_CancelsSiblingsOnError(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{}, 1)

	err := FanOut(context.Background(),
		func(context.Context) error {
			return errors.New("boom")
		},
		func(ctx context.Context) error {
			close(started)
			select {
			case <-ctx.Done():
				cancelled <- struct{}{}
			case <-time.After(time.Second):
			}
			return ctx.Err()
		},
	)

	<-started
	require.Error(t, err)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("sibling goroutine was never cancelled")
	}
}

func TestDeadline_NonPositiveDisablesTimeout(t *testing.T) {
	ctx, cancel := Deadline(context.Background(), 0)
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)
}

func TestDeadline_PositiveSetsTimeout(t *testing.T) {
	ctx, cancel := Deadline(context.Background(), 50)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.True(t, time.Until(deadline) <= 50*time.Millisecond)
}
