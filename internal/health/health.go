// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health provides health and readiness check functionality for production deployments.
// It supports Docker HEALTHCHECK and Kubernetes probes with detailed component status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"golang.org/x/sync/singleflight"
)

// CheckType defines the scope of a health check
type CheckType uint8

const (
	CheckHealth    CheckType = 1 << 0
	CheckReadiness CheckType = 1 << 1
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptime,omitempty"` // Uptime in seconds since startup
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Type() CheckType
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version       string
	checkers      []Checker
	startTime     time.Time // Track startup time for uptime calculation
	readyStrict   bool
	mu            sync.RWMutex
	sfg           singleflight.Group
	lastReadyResp ReadinessResponse
	lastReadyTime time.Time
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:   version,
		checkers:  make([]Checker, 0),
		startTime: time.Now(),
	}
}

// SetReadyStrict stores the strict-readiness flag. Ready does not read it: it always runs only the READINESS-scoped checkers.
func (m *Manager) SetReadyStrict(strict bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyStrict = strict
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Health performs a health check (liveness probe)
// Returns 200 if the process is alive, regardless of service state
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.startTime).Seconds()),
		Timestamp: time.Now(),
	}

	if verbose {
		resp.Checks = make(map[string]CheckResult)
		m.mu.RLock()
		checkers := append([]Checker(nil), m.checkers...)
		m.mu.RUnlock()

		hasUnhealthy := false
		hasDegraded := false

		for _, c := range checkers {
			res := c.Check(ctx)
			resp.Checks[c.Name()] = res
			switch res.Status {
			case StatusUnhealthy:
				hasUnhealthy = true
			case StatusDegraded:
				hasDegraded = true
			}
		}

		if hasUnhealthy {
			resp.Status = StatusUnhealthy
		} else if hasDegraded {
			resp.Status = StatusDegraded
		}
	}

	return resp
}

// Ready performs a readiness check (readiness probe)
// Returns 200 if services are initialized and ready to serve traffic
func (m *Manager) Ready(ctx context.Context, verbose bool) ReadinessResponse {
	// Always run readiness-scoped checkers to ensure 503 until first successful refresh
	// (Production-ready behavior: don't route traffic until data is loaded)

	// Check cache first (1s TTL) to prevent sequential churn
	m.mu.RLock()
	if !m.lastReadyTime.IsZero() && time.Since(m.lastReadyTime) < 1*time.Second {
		cached := m.lastReadyResp
		m.mu.RUnlock()
		// Return computed-at timestamp (preserve original)
		if verbose {
			cached.Checks = cloneChecks(cached.Checks)
		} else {
			cached.Checks = nil
		}
		return cached
	}
	m.mu.RUnlock()

	// Use singleflight to prevent thundering herd on upstream.
	val, err, _ := m.sfg.Do("readiness", func() (interface{}, error) {
		// Use DETACHED context for the shared probe.
		// This prevents the first caller's context cancellation from aborting the shared run.
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		m.mu.RLock()
		checkers := append([]Checker(nil), m.checkers...)
		m.mu.RUnlock()

		var wg sync.WaitGroup
		var mu sync.Mutex

		// Default to ready/healthy, will be downgraded by failures
		result := ReadinessResponse{
			Ready:     true,
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Checks:    make(map[string]CheckResult),
		}

		for _, c := range checkers {
			// Filter: Only run checks explicitly marked for Readiness
			if c.Type()&CheckReadiness == 0 {
				continue
			}

			wg.Add(1)
			go func(checker Checker) {
				defer wg.Done()
				// Use the shared probeCtx
				res := checker.Check(probeCtx)

				mu.Lock()
				defer mu.Unlock()
				result.Checks[checker.Name()] = res

				// Aggregation logic
				if res.Status == StatusUnhealthy {
					result.Status = StatusUnhealthy
					result.Ready = false
				} else if res.Status == StatusDegraded && result.Status != StatusUnhealthy {
					result.Status = StatusDegraded
				}
			}(c)
		}
		wg.Wait()

		if probeCtx.Err() != nil {
			return result, probeCtx.Err()
		}

		// Update cache
		m.mu.Lock()
		cachedResult := result
		cachedResult.Checks = cloneChecks(result.Checks)
		m.lastReadyResp = cachedResult
		m.lastReadyTime = result.Timestamp // Use computed-at time
		m.mu.Unlock()

		return result, nil
	})

	if err != nil {
		// Stale-on-error fallback: if upstream fails, serve stale cache for up to 5s
		// This prevents transient network glitches from flapping readiness
		m.mu.RLock()
		cached := m.lastReadyResp
		lastTime := m.lastReadyTime
		m.mu.RUnlock()

		if !lastTime.IsZero() && time.Since(lastTime) < 5*time.Second {
			cached.Error = err.Error() // Surface fallback cause
			if verbose {
				cached.Checks = cloneChecks(cached.Checks)
			} else {
				cached.Checks = nil
			}
			return cached
		}

		return ReadinessResponse{
			Ready:     false,
			Status:    StatusUnhealthy,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}
	}

	// Safer type assertion
	respStrict, ok := val.(ReadinessResponse)
	if !ok {
		// Should never happen, but handle gracefully
		resp := ReadinessResponse{
			Ready:     false,
			Status:    StatusUnhealthy,
			Timestamp: time.Now(),
			Error:     "internal type assertion failed",
		}
		if verbose {
			resp.Checks = map[string]CheckResult{"internal": {Status: StatusUnhealthy, Error: "type assertion failed"}}
		}
		return resp
	}

	if !verbose {
		respStrict.Checks = nil
	}

	return respStrict
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // Always 200 for liveness

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Ready(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Bool("verbose", verbose).
		Msg("readiness check performed")
}

// DirWritableChecker verifies a directory the daemon persists state into
// (token caches, artifacts) exists and is writable.
type DirWritableChecker struct {
	name string
	path string
}

// NewDirWritableChecker creates a checker for a persisted-state directory.
func NewDirWritableChecker(name, path string) *DirWritableChecker {
	return &DirWritableChecker{name: name, path: path}
}

func (c *DirWritableChecker) Name() string { return c.name }

func (c *DirWritableChecker) Type() CheckType {
	return CheckHealth | CheckReadiness
}

func (c *DirWritableChecker) Check(ctx context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (optional)",
		}
	}

	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "directory not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file"}
	}

	probe, err := os.CreateTemp(c.path, ".healthcheck-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: "directory not writable: " + err.Error()}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return CheckResult{Status: StatusHealthy, Message: "directory writable"}
}

// BrowserRunningChecker reports whether the shared remote-debugging browser
// process backing the CDP tab registry is alive.
type BrowserRunningChecker struct {
	isRunning func() bool
}

// NewBrowserRunningChecker creates a checker for the browser process.
func NewBrowserRunningChecker(isRunning func() bool) *BrowserRunningChecker {
	return &BrowserRunningChecker{isRunning: isRunning}
}

func (c *BrowserRunningChecker) Name() string     { return "browser_running" }
func (c *BrowserRunningChecker) Type() CheckType   { return CheckHealth | CheckReadiness }
func (c *BrowserRunningChecker) Check(ctx context.Context) CheckResult {
	if !c.isRunning() {
		return CheckResult{Status: StatusUnhealthy, Message: "browser process not running"}
	}
	return CheckResult{Status: StatusHealthy, Message: "browser process running"}
}

// CDPReachableChecker dials the Chrome DevTools Protocol endpoint.
type CDPReachableChecker struct {
	ping func(context.Context) error
}

// NewCDPReachableChecker creates a checker for CDP reachability.
func NewCDPReachableChecker(ping func(context.Context) error) *CDPReachableChecker {
	return &CDPReachableChecker{ping: ping}
}

func (c *CDPReachableChecker) Name() string   { return "cdp_reachable" }
func (c *CDPReachableChecker) Type() CheckType { return CheckReadiness | CheckHealth }
func (c *CDPReachableChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "cdp endpoint unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "cdp endpoint reachable"}
}

// DiskFreeChecker reports free space on the artifact directory's filesystem.
type DiskFreeChecker struct {
	freeMB     func() (int64, error)
	minFreeMB  int64
}

// NewDiskFreeChecker creates a checker that degrades below minFreeMB and is
// unhealthy at zero.
func NewDiskFreeChecker(minFreeMB int64, freeMB func() (int64, error)) *DiskFreeChecker {
	return &DiskFreeChecker{freeMB: freeMB, minFreeMB: minFreeMB}
}

func (c *DiskFreeChecker) Name() string   { return "disk_free_mb" }
func (c *DiskFreeChecker) Type() CheckType { return CheckHealth }
func (c *DiskFreeChecker) Check(ctx context.Context) CheckResult {
	free, err := c.freeMB()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if free <= 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "artifact disk full"}
	}
	if free < c.minFreeMB {
		return CheckResult{Status: StatusDegraded, Message: "artifact disk low"}
	}
	return CheckResult{Status: StatusHealthy, Message: "artifact disk ok"}
}

// PlatformBreakerChecker reports degraded when any registered per-platform
// circuit breaker is open.
type PlatformBreakerChecker struct {
	openPlatforms func() []string
}

// NewPlatformBreakerChecker creates a checker over the breaker registry.
func NewPlatformBreakerChecker(openPlatforms func() []string) *PlatformBreakerChecker {
	return &PlatformBreakerChecker{openPlatforms: openPlatforms}
}

func (c *PlatformBreakerChecker) Name() string   { return "platform_breakers" }
func (c *PlatformBreakerChecker) Type() CheckType { return CheckHealth | CheckReadiness }
func (c *PlatformBreakerChecker) Check(ctx context.Context) CheckResult {
	open := c.openPlatforms()
	if len(open) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "all platform breakers closed"}
	}
	return CheckResult{
		Status:  StatusDegraded,
		Message: "one or more platform breakers open",
		Error:   fmtJoin(open),
	}
}

func fmtJoin(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// SessionStoreChecker reports whether the session store backend (Redis or
// the embedded sqlite idempotency window) answers a ping.
type SessionStoreChecker struct {
	ping func(context.Context) error
}

// NewSessionStoreChecker creates a checker for the session store backend.
func NewSessionStoreChecker(ping func(context.Context) error) *SessionStoreChecker {
	return &SessionStoreChecker{ping: ping}
}

func (c *SessionStoreChecker) Name() string   { return "session_store" }
func (c *SessionStoreChecker) Type() CheckType { return CheckReadiness | CheckHealth }
func (c *SessionStoreChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "session store unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "session store reachable"}
}

func cloneChecks(in map[string]CheckResult) map[string]CheckResult {
	if in == nil {
		return nil
	}
	out := make(map[string]CheckResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
