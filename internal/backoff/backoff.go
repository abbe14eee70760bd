// Package backoff provides exponential backoff with jitter for retrying
// flaky upstream calls, primarily per-row LLM classification.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines how retry delays grow across attempts.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration

	// Max caps the delay regardless of attempt number.
	Max time.Duration

	// Factor is the multiplier applied per attempt.
	Factor float64

	// Jitter in [0, 1] randomizes the delay to avoid synchronized retries.
	Jitter float64
}

// DefaultPolicy is tuned for rate-limited HTTP APIs.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay computes the backoff for an attempt. Attempts are 1-indexed.
func Delay(policy Policy, attempt int) time.Duration {
	return delayWithRand(policy, attempt, rand.Float64())
}

func delayWithRand(policy Policy, attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(policy.Initial) * math.Pow(policy.Factor, exp)
	jittered := base + base*policy.Jitter*random
	capped := math.Min(float64(policy.Max), jittered)
	return time.Duration(capped)
}

// Sleep waits for the given duration or until the context is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepForAttempt combines Delay and Sleep.
func SleepForAttempt(ctx context.Context, policy Policy, attempt int) error {
	return Sleep(ctx, Delay(policy, attempt))
}
