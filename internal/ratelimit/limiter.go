// SPDX-License-Identifier: MIT

// Package ratelimit provides outbound token-bucket rate limiting for calls
// made to vendor platforms, layered underneath the per-platform circuit
// breaker so a shop's own request volume never trips a vendor's abuse
// detection.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcadvisor",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total outbound vendor requests rejected by the rate limiter",
		},
		[]string{"platform"},
	)
)

// Config holds outbound rate limiting configuration.
type Config struct {
	// GlobalRate/GlobalBurst cap total outbound calls across all platforms.
	GlobalRate  rate.Limit
	GlobalBurst int

	// PlatformRate/PlatformBurst are the defaults applied to a platform that
	// has no entry in PlatformRates/PlatformBursts.
	PlatformRate  rate.Limit
	PlatformBurst int

	// PlatformRates/PlatformBursts override the default per named platform
	// (e.g. a vendor portal known to throttle aggressively gets a lower
	// rate than the shop-wide default).
	PlatformRates  map[string]rate.Limit
	PlatformBursts map[string]int

	CleanupInterval time.Duration
}

// DefaultConfig returns conservative defaults suitable for a single shop's
// outbound traffic to vendor portals.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  10,
		GlobalBurst: 20,

		PlatformRate:  2,
		PlatformBurst: 5,

		PlatformRates:  map[string]rate.Limit{},
		PlatformBursts: map[string]int{},

		CleanupInterval: 30 * time.Minute,
	}
}

// Limiter rate-limits outbound calls to vendor platforms: one global ceiling
// plus one token bucket per platform name.
type Limiter struct {
	config Config

	global      *rate.Limiter
	perPlatform map[string]*rate.Limiter
	mu          sync.RWMutex

	lastCleanup time.Time
}

// New creates a rate limiter from config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perPlatform: make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a call to the named platform may proceed now. It
// does not block; callers that need to wait should use Wait instead.
func (l *Limiter) Allow(platform string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	limiter := l.getPlatformLimiter(platform)
	if !limiter.Allow() {
		rateLimitExceeded.WithLabelValues(platform).Inc()
		return false
	}

	l.maybeCleanup()
	return true
}

// Wait blocks until both the global and the platform bucket grant a token,
// or ctx expires. Pipeline stages call this at the top of each outbound
// vendor request so their own deadline bounds the wait.
func (l *Limiter) Wait(ctx context.Context, platform string) error {
	if err := l.global.Wait(ctx); err != nil {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return err
	}
	if err := l.getPlatformLimiter(platform).Wait(ctx); err != nil {
		rateLimitExceeded.WithLabelValues(platform).Inc()
		return err
	}
	l.maybeCleanup()
	return nil
}

func (l *Limiter) getPlatformLimiter(platform string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perPlatform[platform]
	if !exists {
		r := l.config.PlatformRate
		b := l.config.PlatformBurst
		if pr, ok := l.config.PlatformRates[platform]; ok {
			r = pr
		}
		if pb, ok := l.config.PlatformBursts[platform]; ok {
			b = pb
		}
		limiter = rate.NewLimiter(r, b)
		l.perPlatform[platform] = limiter
	}

	return limiter
}

func (l *Limiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.perPlatform = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
