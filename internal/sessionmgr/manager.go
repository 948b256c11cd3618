// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sessionmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/pipeline/fsm"
	"github.com/svcadvisor/estimate-pipeline/internal/resilience"
)

// PlatformAuthenticator performs the actual vendor-specific login flow.
// Concrete implementations (HTTP bearer exchange, shared-browser re-login)
// live outside this package; sessionmgr only owns the
// state machine and token cache around them.
type PlatformAuthenticator interface {
	// Login performs a fresh authentication and returns a token plus its
	// expiry. ctx carries the heal stage's own deadline.
	Login(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// PlatformConfig describes one integrated vendor platform.
type PlatformConfig struct {
	Name    string
	Enabled bool // false when the platform's credential env vars are absent
	Auth    PlatformAuthenticator
}

type event string

const (
	evCheck   event = "check"
	evFound   event = "found_valid"
	evExpired event = "found_expired"
	evDisable event = "disabled"
	evHeal    event = "heal"
	evHealOK  event = "heal_ok"
	evHealBad event = "heal_failed"
)

func transitions() []fsm.Transition[domain.AuthStatus, event] {
	return []fsm.Transition[domain.AuthStatus, event]{
		{From: domain.AuthUnknown, Event: evCheck, To: domain.AuthChecking},
		{From: domain.AuthChecking, Event: evFound, To: domain.AuthAuthenticated},
		{From: domain.AuthChecking, Event: evExpired, To: domain.AuthNeedsBrowserCheck},
		{From: domain.AuthChecking, Event: evDisable, To: domain.AuthDisabled},
		{From: domain.AuthNeedsBrowserCheck, Event: evHeal, To: domain.AuthHealing},
		{From: domain.AuthDegraded, Event: evHeal, To: domain.AuthHealing},
		{From: domain.AuthHealing, Event: evHealOK, To: domain.AuthAuthenticated},
		{From: domain.AuthHealing, Event: evHealBad, To: domain.AuthDegraded},
		{From: domain.AuthAuthenticated, Event: evCheck, To: domain.AuthChecking},
		{From: domain.AuthDegraded, Event: evCheck, To: domain.AuthChecking},
	}
}

type platformEntry struct {
	cfg     PlatformConfig
	machine *fsm.Machine[domain.AuthStatus, event]
	mu      sync.Mutex
	state   domain.AuthState
	// healBreaker fails heals fast after repeated login failures, so a
	// vendor with a broken login page doesn't eat a browser slot on every
	// preflight.
	healBreaker *resilience.CircuitBreaker
}

// Manager holds one AuthState per integrated platform.
type Manager struct {
	mu        sync.RWMutex
	platforms map[string]*platformEntry
	cache     *TokenCache
	sfg       singleflight.Group
	now       func() time.Time
}

// New creates a Manager with platforms registered from cfgs.
func New(cache *TokenCache, cfgs []PlatformConfig) *Manager {
	m := &Manager{
		platforms: make(map[string]*platformEntry, len(cfgs)),
		cache:     cache,
		now:       time.Now,
	}
	for _, cfg := range cfgs {
		mach, _ := fsm.New(domain.AuthUnknown, transitions())
		m.platforms[cfg.Name] = &platformEntry{
			cfg:         cfg,
			machine:     mach,
			state:       domain.AuthState{Platform: cfg.Name, Status: domain.AuthUnknown},
			healBreaker: resilience.NewCircuitBreaker("heal:"+cfg.Name, 3, time.Minute),
		}
	}
	return m
}

// Check queries the current state for platform, consulting the token cache
// where applicable. A platform with no configured credentials always
// reports PLATFORM_DISABLED.
func (m *Manager) Check(ctx context.Context, platform string) (domain.AuthState, error) {
	m.mu.RLock()
	entry, ok := m.platforms[platform]
	m.mu.RUnlock()
	if !ok {
		return domain.AuthState{Platform: platform, Status: domain.AuthDisabled, ReasonCode: "PLATFORM_DISABLED"}, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.cfg.Enabled {
		entry.state = domain.AuthState{Platform: platform, Status: domain.AuthDisabled, ReasonCode: "PLATFORM_DISABLED"}
		return entry.state, nil
	}

	if _, err := entry.machine.Fire(ctx, evCheck); err != nil {
		// Re-checking from AUTHENTICATED/DEGRADED is allowed by the
		// transition table; any other error means a genuinely invalid
		// state for this event, which we surface rather than hide.
		return entry.state, err
	}

	rec, found, err := m.cache.Read(platform)
	if err != nil {
		log.L().Warn().Err(err).Str("platform", platform).Msg("token cache read failed, treating as expired")
		found = false
	}

	if found && !rec.Expired(m.now()) {
		expires := time.Unix(rec.ExpiresAtMonotonicSeconds, 0)
		entry.state = domain.AuthState{
			Platform:      platform,
			Authenticated: true,
			Status:        domain.AuthAuthenticated,
			TokenSource:   "cache",
			ExpiresAt:     &expires,
		}
		if _, err := entry.machine.Fire(ctx, evFound); err != nil {
			return entry.state, err
		}
		return entry.state, nil
	}

	entry.state = domain.AuthState{Platform: platform, Status: domain.AuthNeedsBrowserCheck, ReasonCode: "NEEDS_BROWSER_CHECK"}
	if _, err := entry.machine.Fire(ctx, evExpired); err != nil {
		return entry.state, err
	}
	return entry.state, nil
}

// Heal attempts to restore authentication for platform by re-running its
// login flow and persisting the resulting token.
func (m *Manager) Heal(ctx context.Context, platform string) (domain.AuthState, error) {
	m.mu.RLock()
	entry, ok := m.platforms[platform]
	m.mu.RUnlock()
	if !ok || !entry.cfg.Enabled {
		return domain.AuthState{Platform: platform, Status: domain.AuthDisabled, ReasonCode: "PLATFORM_DISABLED"}, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if _, err := entry.machine.Fire(ctx, evHeal); err != nil {
		return entry.state, err
	}

	if entry.cfg.Auth == nil {
		entry.state = domain.AuthState{Platform: platform, Status: domain.AuthDegraded, ReasonCode: "AUTH_NOT_CONFIGURED"}
		if _, ferr := entry.machine.Fire(ctx, evHealBad); ferr != nil {
			log.L().Error().Err(ferr).Str("platform", platform).Msg("heal->degraded transition failed")
		}
		return entry.state, nil
	}

	var token string
	var expiresAt time.Time
	err := entry.healBreaker.Execute(func() error {
		var lerr error
		token, expiresAt, lerr = entry.cfg.Auth.Login(ctx)
		return lerr
	})
	if err != nil {
		reason := "AUTH_FAILED"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			reason = "CIRCUIT_OPEN"
		}
		entry.state = domain.AuthState{Platform: platform, Status: domain.AuthDegraded, ReasonCode: reason}
		if _, ferr := entry.machine.Fire(ctx, evHealBad); ferr != nil {
			log.L().Error().Err(ferr).Str("platform", platform).Msg("heal->degraded transition failed")
		}
		return entry.state, err
	}

	rec := TokenRecord{Platform: platform, Token: token, ExpiresAtMonotonicSeconds: expiresAt.Unix(), CachedAt: m.now()}
	if werr := m.cache.Write(rec); werr != nil {
		log.L().Warn().Err(werr).Str("platform", platform).Msg("failed to persist healed token")
	}

	entry.state = domain.AuthState{
		Platform:      platform,
		Authenticated: true,
		Status:        domain.AuthAuthenticated,
		TokenSource:   "heal",
		ExpiresAt:     &expiresAt,
	}
	if _, ferr := entry.machine.Fire(ctx, evHealOK); ferr != nil {
		return entry.state, ferr
	}
	return entry.state, nil
}

// CheckThenHeal runs check, and if the result needs a browser check or is
// degraded, immediately attempts heal. This is the composite operation the
// orchestrator's preflight runs per platform.
func (m *Manager) CheckThenHeal(ctx context.Context, platform string) (domain.AuthState, error) {
	state, err := m.Check(ctx, platform)
	if err != nil {
		return state, err
	}
	if state.Status == domain.AuthAuthenticated || state.Status == domain.AuthDisabled {
		return state, nil
	}
	return m.Heal(ctx, platform)
}

// Preflight runs check->heal for every registered platform in parallel
// (a disabled one reports PLATFORM_DISABLED),
// collapsing concurrent calls for the same platform via singleflight.
// Returns a map of outcomes keyed by platform name.
func (m *Manager) Preflight(ctx context.Context) map[string]domain.AuthState {
	m.mu.RLock()
	names := make([]string, 0, len(m.platforms))
	for name := range m.platforms {
		names = append(names, name)
	}
	m.mu.RUnlock()

	results := make(map[string]domain.AuthState, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(platform string) {
			defer wg.Done()
			v, err, _ := m.sfg.Do(platform, func() (interface{}, error) {
				return m.CheckThenHeal(ctx, platform)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.L().Warn().Err(err).Str("platform", platform).Msg("preflight failed")
			}
			if state, ok := v.(domain.AuthState); ok {
				results[platform] = state
			}
		}(name)
	}
	wg.Wait()
	return results
}

// State returns the last-known AuthState for platform without performing a
// new check.
func (m *Manager) State(platform string) (domain.AuthState, bool) {
	m.mu.RLock()
	entry, ok := m.platforms[platform]
	m.mu.RUnlock()
	if !ok {
		return domain.AuthState{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// Platforms returns the configured platform names.
func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.platforms))
	for name := range m.platforms {
		names = append(names, name)
	}
	return names
}
