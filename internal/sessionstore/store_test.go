// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sessionstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

func TestStore_InMemoryPutThenLast(t *testing.T) {
	s, err := New(Options{TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	result := domain.EstimateResult{RunID: "run-1", ChatID: "chat-1", EstimateID: "EST-1"}
	require.NoError(t, s.Put(context.Background(), "chat-1", result))

	got, ok := s.Last(context.Background(), "chat-1")
	require.True(t, ok)
	assert.Equal(t, "EST-1", got.EstimateID)
}

func TestStore_InMemoryExpires(t *testing.T) {
	s, err := New(Options{TTL: time.Millisecond})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "chat-2", domain.EstimateResult{EstimateID: "EST-2"}))
	time.Sleep(5 * time.Millisecond)

	_, ok := s.Last(context.Background(), "chat-2")
	assert.False(t, ok)
}

func TestStore_RedisBackedRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Options{RedisAddr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	result := domain.EstimateResult{RunID: "run-3", ChatID: "chat-3", EstimateID: "EST-3", PartsBundle: domain.PartsBundle{PartsCost: 42.5}}
	require.NoError(t, s.Put(context.Background(), "chat-3", result))

	got, ok := s.Last(context.Background(), "chat-3")
	require.True(t, ok)
	assert.Equal(t, "EST-3", got.EstimateID)
	assert.Equal(t, 42.5, got.PartsBundle.PartsCost)
}

func TestStore_RedisUnreachableFallsBackToMemory(t *testing.T) {
	s, err := New(Options{RedisAddr: "127.0.0.1:1", TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(context.Background(), "chat-4", domain.EstimateResult{EstimateID: "EST-4"}))
	got, ok := s.Last(context.Background(), "chat-4")
	require.True(t, ok)
	assert.Equal(t, "EST-4", got.EstimateID)
}

func TestStore_IdempotencyWindow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idempotency.db")
	s, err := New(Options{SQLitePath: dbPath})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.CheckIdempotency(context.Background(), "chat-5", "run-5")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.RecordIdempotency(context.Background(), "chat-5", "run-5", "EST-5"))

	id, found, err := s.CheckIdempotency(context.Background(), "chat-5", "run-5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "EST-5", id)
}

func TestStore_IdempotencyDisabledWithoutSQLitePath(t *testing.T) {
	s, err := New(Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordIdempotency(context.Background(), "chat-6", "run-6", "EST-6"))
	_, found, err := s.CheckIdempotency(context.Background(), "chat-6", "run-6")
	require.NoError(t, err)
	assert.False(t, found)
}
