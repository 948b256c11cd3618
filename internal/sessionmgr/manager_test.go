// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sessionmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	token   string
	expires time.Time
	err     error
	calls   int
}

func (f *fakeAuth) Login(ctx context.Context) (string, time.Time, error) {
	f.calls++
	return f.token, f.expires, f.err
}

func newTestCache(t *testing.T) *TokenCache {
	c, err := NewTokenCache(t.TempDir())
	require.NoError(t, err)
	return c
}

func TestManager_CheckThenHeal_NeverAuthenticatedPlatformHeals(t *testing.T) {
	cache := newTestCache(t)
	auth := &fakeAuth{token: "tok-123", expires: time.Now().Add(time.Hour)}
	m := New(cache, []PlatformConfig{{Name: "prodemand", Enabled: true, Auth: auth}})

	state, err := m.CheckThenHeal(context.Background(), "prodemand")
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Equal(t, domainAuthenticated, string(state.Status))
	assert.Equal(t, 1, auth.calls)
}

func TestManager_DisabledPlatformReportsDisabled(t *testing.T) {
	cache := newTestCache(t)
	m := New(cache, []PlatformConfig{{Name: "ari", Enabled: false}})

	state, err := m.Check(context.Background(), "ari")
	require.NoError(t, err)
	assert.Equal(t, "PLATFORM_DISABLED", state.ReasonCode)
	assert.False(t, state.Authenticated)
}

func TestManager_CachedValidTokenSkipsHeal(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, cache.Write(TokenRecord{Platform: "alldata", Token: "cached", ExpiresAtMonotonicSeconds: time.Now().Add(time.Hour).Unix()}))
	auth := &fakeAuth{token: "should-not-be-used"}
	m := New(cache, []PlatformConfig{{Name: "alldata", Enabled: true, Auth: auth}})

	state, err := m.CheckThenHeal(context.Background(), "alldata")
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
	assert.Equal(t, 0, auth.calls)
}

func TestManager_HealFailureReportsDegraded(t *testing.T) {
	cache := newTestCache(t)
	auth := &fakeAuth{err: errors.New("bad creds")}
	m := New(cache, []PlatformConfig{{Name: "motor", Enabled: true, Auth: auth}})

	state, err := m.CheckThenHeal(context.Background(), "motor")
	require.Error(t, err)
	assert.False(t, state.Authenticated)
	assert.Equal(t, domainDegraded, string(state.Status))
}

func TestManager_HealWithNilAuthReportsDegradedWithoutPanic(t *testing.T) {
	cache := newTestCache(t)
	m := New(cache, []PlatformConfig{{Name: "identifix", Enabled: true}})

	state, err := m.CheckThenHeal(context.Background(), "identifix")
	require.NoError(t, err)
	assert.False(t, state.Authenticated)
	assert.Equal(t, domainDegraded, string(state.Status))
	assert.Equal(t, "AUTH_NOT_CONFIGURED", state.ReasonCode)

	// A platform stuck without a configured authenticator must still be
	// re-checkable on a later preflight, not wedged in an FSM dead end.
	state, err = m.CheckThenHeal(context.Background(), "identifix")
	require.NoError(t, err)
	assert.Equal(t, "AUTH_NOT_CONFIGURED", state.ReasonCode)
}

func TestManager_PreflightCoversAllPlatforms(t *testing.T) {
	cache := newTestCache(t)
	m := New(cache, []PlatformConfig{
		{Name: "prodemand", Enabled: true, Auth: &fakeAuth{token: "a", expires: time.Now().Add(time.Hour)}},
		{Name: "ari", Enabled: false},
	})

	results := m.Preflight(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results["prodemand"].Authenticated)
	assert.Equal(t, "PLATFORM_DISABLED", results["ari"].ReasonCode)
}

const (
	domainAuthenticated = "AUTHENTICATED"
	domainDegraded       = "DEGRADED"
)

func TestManager_RepeatedHealFailuresTripBreaker(t *testing.T) {
	cache := newTestCache(t)
	auth := &fakeAuth{err: errors.New("login page broken")}
	m := New(cache, []PlatformConfig{{Name: "prodemand", Enabled: true, Auth: auth}})

	for i := 0; i < 3; i++ {
		_, err := m.CheckThenHeal(context.Background(), "prodemand")
		require.Error(t, err)
	}
	require.Equal(t, 3, auth.calls)

	// The breaker now fails the heal fast without another login attempt.
	state, err := m.CheckThenHeal(context.Background(), "prodemand")
	require.Error(t, err)
	assert.Equal(t, "CIRCUIT_OPEN", state.ReasonCode)
	assert.Equal(t, 3, auth.calls)
}
