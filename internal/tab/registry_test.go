// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndReleaseRun(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("tab-1", "prodemand", "run-a")
	r.Register("tab-2", "alldata", "run-a")
	r.Register("tab-3", "ari", "run-b")

	n := r.ReleaseRun("run-a")
	assert.Equal(t, 2, n)

	_, held := r.HeldByOtherRun("ari", "run-a")
	assert.True(t, held)
	_, held = r.HeldByOtherRun("prodemand", "run-a")
	assert.False(t, held)
}

func TestRegistry_StaleTabsAndCleanup(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.Register("tab-1", "prodemand", "run-a")

	time.Sleep(20 * time.Millisecond)
	stale := r.StaleTabs()
	require.Len(t, stale, 1)

	n := r.CleanupStale()
	assert.Equal(t, 1, n)
	assert.Empty(t, r.StaleTabs())
}

func TestRegistry_AcquireWaitsThenSucceedsAfterRelease(t *testing.T) {
	r := NewRegistry(time.Minute)
	lease := r.Register("tab-1", "prodemand", "run-a")

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := r.Acquire(ctx, "prodemand", "run-b")
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	r.Release(lease.TabID)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire never returned")
	}
}

func TestRegistry_AcquireFailsTabContendedOnDeadline(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("tab-1", "prodemand", "run-a")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Acquire(ctx, "prodemand", "run-b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAB_CONTENDED")
}
