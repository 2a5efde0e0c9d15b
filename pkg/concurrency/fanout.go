package concurrency

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// FanOut runs each of fns concurrently on an errgroup-derived context: if
// any fn returns an error, the derived context is cancelled so the
// remaining goroutines can stop early, but FanOut still waits for every
// goroutine to return before producing its result (a join, not an
// abandon) so callers can do fallback bookkeeping on partial results.
// Unlike errgroup.Group.Wait, which reports only the first error, FanOut
// aggregates every goroutine's error via hashicorp/go-multierror so
// callers see the whole failure set.
func FanOut(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var result error

	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			err := fn(gctx)
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return err
		})
	}

	_ = g.Wait()
	return result
}

// Deadline derives a context with the given millisecond budget from ctx,
// used by tool execution to enforce toolTimeoutMs without every call site
// re-deriving the duration math.
func Deadline(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, msToDuration(ms))
}
