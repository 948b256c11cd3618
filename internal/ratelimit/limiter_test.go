// SPDX-License-Identifier: MIT

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAllowWithinBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlatformBurst = 3
	cfg.PlatformRate = rate.Limit(0.001)
	l := New(cfg)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("prodemand"), "call %d should be within burst", i)
	}
	assert.False(t, l.Allow("prodemand"), "burst exhausted")
}

func TestAllowIsPerPlatform(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlatformBurst = 1
	cfg.PlatformRate = rate.Limit(0.001)
	l := New(cfg)

	require.True(t, l.Allow("alldata"))
	require.False(t, l.Allow("alldata"))
	// A different platform has its own bucket.
	require.True(t, l.Allow("ari"))
}

func TestPlatformOverrideApplies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlatformBurst = 5
	cfg.PlatformRates = map[string]rate.Limit{"identifix": rate.Limit(0.001)}
	cfg.PlatformBursts = map[string]int{"identifix": 1}
	l := New(cfg)

	require.True(t, l.Allow("identifix"))
	require.False(t, l.Allow("identifix"))
}

func TestWaitHonorsContextDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlatformBurst = 1
	cfg.PlatformRate = rate.Limit(0.001)
	l := New(cfg)

	require.NoError(t, l.Wait(context.Background(), "motor"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx, "motor")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGlobalCeilingCapsAllPlatforms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalBurst = 2
	cfg.GlobalRate = rate.Limit(0.001)
	cfg.PlatformBurst = 10
	l := New(cfg)

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	require.False(t, l.Allow("c"), "global ceiling reached")
}
