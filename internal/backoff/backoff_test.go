package backoff

import (
	"context"
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	policy := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{0, 100 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := delayWithRand(policy, tc.attempt, 0); got != tc.want {
			t.Fatalf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayRespectsMax(t *testing.T) {
	policy := Policy{Initial: time.Second, Max: 2 * time.Second, Factor: 10}

	if got := delayWithRand(policy, 5, 0); got != 2*time.Second {
		t.Fatalf("got %v, want cap of 2s", got)
	}
}

func TestDelayAddsJitter(t *testing.T) {
	policy := Policy{Initial: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.5}

	got := delayWithRand(policy, 1, 1.0)
	if got != 1500*time.Millisecond {
		t.Fatalf("got %v, want 1.5s", got)
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep did not return promptly on cancellation")
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
