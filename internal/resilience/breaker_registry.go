// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"sync"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
)

// PlatformState represents the state of a per-platform circuit breaker.
type PlatformState int

const (
	PlatformClosed PlatformState = iota
	PlatformOpen
	PlatformHalfOpen
)

// PlatformConfig holds the trip thresholds for a platform's breaker.
type PlatformConfig struct {
	Name        string
	Window      time.Duration
	MinRequests int
	FailureRate float64 // 0.0-1.0
	Consecutive int
	RetryAfter  time.Duration
}

// PlatformBreaker guards outbound calls to a single vendor platform
// (MOTOR, ALLDATA, ARI, ProDemand, a parts-pricing API, ...). It trips on
// either a run of consecutive failures or a failure rate over a sliding
// window, independent of the transport-level CircuitBreaker used around
// individual requests.
type PlatformBreaker struct {
	mu          sync.RWMutex
	name        string
	state       PlatformState
	counts      *windowCounts
	consecutive int
	expiry      time.Time
	cfg         PlatformConfig
}

type windowCounts struct {
	buckets        [10]bucket
	currentIdx     int
	lastRotate     time.Time
	bucketDuration time.Duration
	mu             sync.Mutex
}

type bucket struct {
	success int
	failure int
}

func newWindowCounts(bucketDuration time.Duration) *windowCounts {
	if bucketDuration == 0 {
		bucketDuration = 1 * time.Minute
	}
	return &windowCounts{
		lastRotate:     time.Now(),
		bucketDuration: bucketDuration,
	}
}

func (w *windowCounts) add(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotateIfNeeded()
	if success {
		w.buckets[w.currentIdx].success++
	} else {
		w.buckets[w.currentIdx].failure++
	}
}

func (w *windowCounts) rotateIfNeeded() {
	now := time.Now()
	elapsed := now.Sub(w.lastRotate)
	bucketsToRotate := int(elapsed / w.bucketDuration)

	if bucketsToRotate > 0 {
		for i := 0; i < bucketsToRotate && i < 10; i++ {
			w.currentIdx = (w.currentIdx + 1) % 10
			w.buckets[w.currentIdx] = bucket{}
		}
		w.lastRotate = now
	}
}

func (w *windowCounts) stats() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotateIfNeeded()

	s, f := 0, 0
	for _, b := range w.buckets {
		s += b.success
		f += b.failure
	}
	return s, f
}

// NewPlatformBreaker creates a breaker for one platform. The 10-bucket
// sliding window spans cfg.Window, so each bucket covers cfg.Window/10.
func NewPlatformBreaker(cfg PlatformConfig) *PlatformBreaker {
	if cfg.Window == 0 {
		cfg.Window = 10 * time.Minute
	}
	return &PlatformBreaker{
		name:   cfg.Name,
		state:  PlatformClosed,
		counts: newWindowCounts(cfg.Window / 10),
		cfg:    cfg,
	}
}

// Allow reports whether a call against this platform may proceed. The
// first call after RetryAfter moves an open breaker to half-open; while
// half-open every call is let through, and the next reported outcome
// closes or re-opens the breaker.
func (b *PlatformBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch b.state {
	case PlatformOpen:
		if now.After(b.expiry) {
			b.state = PlatformHalfOpen
			metrics.IncPlatformCircuitHalfOpen(b.name)
			log.L().Info().Str("platform", b.name).Msg("platform breaker entering half-open")
			return true
		}
		return false
	case PlatformHalfOpen:
		return true
	default:
		return true
	}
}

// Report records the outcome of a call made after Allow returned true.
func (b *PlatformBreaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == PlatformHalfOpen {
		if success {
			b.state = PlatformClosed
			b.consecutive = 0
			metrics.SetPlatformCircuitClosed(b.name)
			log.L().Info().Str("platform", b.name).Msg("platform breaker closed (probe succeeded)")
		} else {
			b.state = PlatformOpen
			b.expiry = time.Now().Add(b.cfg.RetryAfter)
			metrics.IncPlatformCircuitOpen(b.name)
			log.L().Warn().Str("platform", b.name).Msg("platform breaker re-opened (probe failed)")
		}
		return
	}

	b.counts.add(success)

	if success {
		b.consecutive = 0
	} else {
		b.consecutive++
	}

	if b.state == PlatformClosed && !success {
		if b.consecutive >= b.cfg.Consecutive {
			b.trip("consecutive_failures")
			return
		}

		totalS, totalF := b.counts.stats()
		total := totalS + totalF
		if total >= b.cfg.MinRequests {
			rate := float64(totalF) / float64(total)
			if rate > b.cfg.FailureRate {
				b.trip("failure_rate")
			}
		}
	}
}

// State returns the current breaker state.
func (b *PlatformBreaker) State() PlatformState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *PlatformBreaker) trip(reason string) {
	b.state = PlatformOpen
	b.expiry = time.Now().Add(b.cfg.RetryAfter)
	metrics.IncPlatformCircuitTrips(b.name, reason)
	metrics.IncPlatformCircuitOpen(b.name)
	log.L().Error().
		Str("platform", b.name).
		Str("reason", reason).
		Msg("platform breaker tripped open")
}

// PlatformRegistry holds one breaker per platform name, created lazily.
type PlatformRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*PlatformBreaker
}

// GlobalPlatformRegistry is the process-wide registry used by source
// adapters. Tests may construct their own *PlatformRegistry instead.
var GlobalPlatformRegistry = NewPlatformRegistry()

// NewPlatformRegistry creates an empty platform breaker registry.
func NewPlatformRegistry() *PlatformRegistry {
	return &PlatformRegistry{breakers: make(map[string]*PlatformBreaker)}
}

// GetOrRegister returns the existing breaker for name, or creates one from
// cfg if none exists yet.
func (r *PlatformRegistry) GetOrRegister(name string, cfg PlatformConfig) *PlatformBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	cfg.Name = name
	b := NewPlatformBreaker(cfg)
	r.breakers[name] = b
	return b
}

// OpenPlatforms returns the names of all platforms whose breaker is
// currently open or half-open, for use by a health checker.
func (r *PlatformRegistry) OpenPlatforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, b := range r.breakers {
		if b.State() != PlatformClosed {
			open = append(open, name)
		}
	}
	return open
}

// GetOrRegisterPlatform registers (or fetches) a breaker in the global
// registry.
func GetOrRegisterPlatform(name string, cfg PlatformConfig) *PlatformBreaker {
	return GlobalPlatformRegistry.GetOrRegister(name, cfg)
}
