// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds a single retry-wrapped invocation.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Jitter caps the fraction of BaseDelay*2^attempt added as random
	// jitter. Zero disables jitter.
	Jitter float64
	// Sleep is overridable for deterministic tests; defaults to a
	// context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Op is a unit of work classified by the caller on failure: the returned
// FailureClass decides whether WithRetry retries or re-raises immediately.
type Op func(ctx context.Context) (FailureClass, error)

// WithRetry runs op; on a retryable failure it sleeps
// BaseDelay*2^attempt plus jitter, up to MaxRetries times, then re-raises
// the last error. Terminal failures are re-raised immediately without
// sleeping. A nil error short-circuits successfully.
func WithRetry(ctx context.Context, cfg RetryConfig, op Op) error {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	for attempt := 0; ; attempt++ {
		class, err := op(ctx)
		if err == nil {
			return nil
		}

		if !class.Retryable() {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		delay := cfg.BaseDelay * time.Duration(1<<uint(attempt))
		if cfg.Jitter > 0 {
			delay += time.Duration(rand.Float64() * cfg.Jitter * float64(delay))
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
