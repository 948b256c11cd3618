// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestWithRetry_TerminalFailsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 5, Sleep: noSleep}, func(ctx context.Context) (FailureClass, error) {
		calls++
		return FailureAuthFailed, errors.New("bad creds")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetryableExhaustsThenReturnsLastError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: noSleep}, func(ctx context.Context) (FailureClass, error) {
		calls++
		return FailureTimeout, errors.New("timed out")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // 1 + max_retries
}

func TestWithRetry_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, Sleep: noSleep}, func(ctx context.Context) (FailureClass, error) {
		calls++
		if calls < 3 {
			return FailureNetwork, errors.New("transient")
		}
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ContextCancelDuringSleepAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) (FailureClass, error) {
		calls++
		cancel()
		return FailureNetwork, errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
