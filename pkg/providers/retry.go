package providers

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy configures the bounded-attempt, context-aware backoff every
// external adapter wraps its API call with.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy mirrors the conservative defaults used elsewhere in the
// pack for outbound LLM calls: a handful of attempts with exponential
// backoff, bounded so a flaky provider never stalls a tool call indefinitely.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:     3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// withRetry runs fn under policy, retrying every error fn returns until
// Attempts are used up or ctx is done, and returns the last error (wrapped
// by the caller) on exhaustion.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(policy.Attempts)),
		retry.Delay(policy.InitialDelay),
		retry.MaxDelay(policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
