// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithDeadline_CancelsChildContextAfterBudget(t *testing.T) {
	scope := WithDeadline(context.Background(), 20*time.Millisecond)
	defer scope.Cancel()

	select {
	case <-scope.Context().Done():
		t.Fatal("context done before budget elapsed")
	case <-time.After(5 * time.Millisecond):
	}

	<-scope.Context().Done()
	assert.True(t, scope.DeadlineElapsed())
}

func TestScope_CheckDeadlineReturnsErrorAfterExpiry(t *testing.T) {
	scope := WithDeadline(context.Background(), 10*time.Millisecond)
	defer scope.Cancel()

	assert.NoError(t, scope.CheckDeadline())
	time.Sleep(20 * time.Millisecond)
	err := scope.CheckDeadline()
	assert.Error(t, err)
	var deadlineErr *ErrDeadlineExceeded
	assert.ErrorAs(t, err, &deadlineErr)
}

func TestScope_RemainingNeverNegative(t *testing.T) {
	scope := WithDeadline(context.Background(), 5*time.Millisecond)
	defer scope.Cancel()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, time.Duration(0), scope.Remaining())
}
