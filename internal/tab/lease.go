// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tab

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
	"github.com/svcadvisor/estimate-pipeline/internal/resilience"
)

const pollInterval = 50 * time.Millisecond

// Acquire blocks until platform's tab is free for runID or ctx is done. A
// contended lease fails TAB_CONTENDED on ctx expiry: the stage's
// own deadline bounds the wait, never the pipeline root directly.
func (r *Registry) Acquire(ctx context.Context, platform, runID string) (domain.TabLease, error) {
	for {
		if held, ok := r.HeldByOtherRun(platform, runID); ok {
			metrics.IncTabContention(platform)
			select {
			case <-ctx.Done():
				return held, &resilience.ClassifiedError{Class: resilience.FailureTabContended, Code: "TAB_CONTENDED", Err: ctx.Err()}
			case <-time.After(pollInterval):
				continue
			}
		}

		tabID := uuid.NewString()
		return r.Register(tabID, platform, runID), nil
	}
}

// ReleaseGuard returns a cleanup func that releases lease exactly once,
// meant to be deferred immediately after Acquire so failures, cancellations
// and panics all free the lease.
func (r *Registry) ReleaseGuard(lease domain.TabLease) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		r.Release(lease.TabID)
	}
}
