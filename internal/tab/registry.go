// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tab implements the Tab Registry: the process-wide
// arbiter that prevents two concurrent orchestrator runs from fighting over
// the same logical page in the single shared remote-controlled browser.
package tab

import (
	"sync"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
)

// DefaultStaleness is the default threshold past which a TabLease is
// considered stale and eligible for forced release.
const DefaultStaleness = time.Minute

// Registry is the sole owner of TabLease records. Safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	leases     map[string]domain.TabLease // tab_id -> lease
	staleAfter time.Duration
	now        func() time.Time
}

// NewRegistry creates a Registry with the given staleness threshold. A
// zero threshold uses DefaultStaleness.
func NewRegistry(staleAfter time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleness
	}
	return &Registry{
		leases:     make(map[string]domain.TabLease),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Register records run_id's ownership of tab_id on platform. Registering
// an already-held tab_id replaces the previous lease record (the caller is
// expected to have gone through Acquire/contention handling first).
func (r *Registry) Register(tabID, platform, runID string) domain.TabLease {
	r.mu.Lock()
	defer r.mu.Unlock()

	lease := domain.TabLease{TabID: tabID, Platform: platform, RunID: runID, AcquiredAt: r.now()}
	r.leases[tabID] = lease
	metrics.SetTabLeasesHeld(len(r.leases))
	log.L().Debug().Str("tab_id", tabID).Str("platform", platform).Str("run_id", runID).Msg("tab lease registered")
	return lease
}

// Touch refreshes a lease's acquired_at so it is not mistaken for stale
// while still in active use.
func (r *Registry) Touch(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leases[tabID]; ok {
		l.AcquiredAt = r.now()
		r.leases[tabID] = l
	}
}

// Release drops the lease for tabID, if any.
func (r *Registry) Release(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.leases, tabID)
	metrics.SetTabLeasesHeld(len(r.leases))
}

// ReleaseRun releases every lease owned by runID. Called at Finalize and
// on pipeline cancellation so no lease with that run_id survives a
// completed run.
func (r *Registry) ReleaseRun(runID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, l := range r.leases {
		if l.RunID == runID {
			delete(r.leases, id)
			n++
		}
	}
	metrics.SetTabLeasesHeld(len(r.leases))
	if n > 0 {
		log.L().Debug().Str("run_id", runID).Int("released", n).Msg("tab leases released for run")
	}
	return n
}

// StaleTabs returns leases older than the configured staleness threshold.
func (r *Registry) StaleTabs() []domain.TabLease {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.staleAfter)
	var stale []domain.TabLease
	for _, l := range r.leases {
		if l.AcquiredAt.Before(cutoff) {
			stale = append(stale, l)
		}
	}
	return stale
}

// CleanupStale releases every stale lease and returns the count released.
func (r *Registry) CleanupStale() int {
	r.mu.Lock()
	cutoff := r.now().Add(-r.staleAfter)
	var staleIDs []string
	for id, l := range r.leases {
		if l.AcquiredAt.Before(cutoff) {
			staleIDs = append(staleIDs, id)
		}
	}
	for _, id := range staleIDs {
		delete(r.leases, id)
	}
	metrics.SetTabLeasesHeld(len(r.leases))
	r.mu.Unlock()

	if len(staleIDs) > 0 {
		log.L().Warn().Int("count", len(staleIDs)).Msg("released stale tab leases")
	}
	return len(staleIDs)
}

// HeldByOtherRun reports whether platform's tab is currently leased by a
// run other than runID, which is the TAB_CONTENDED condition.
func (r *Registry) HeldByOtherRun(platform, runID string) (domain.TabLease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leases {
		if l.Platform == platform && l.RunID != runID {
			return l, true
		}
	}
	return domain.TabLease{}, false
}
