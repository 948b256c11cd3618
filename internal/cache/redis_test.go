// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

func newRedisStore(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisGetSetRoundTrip(t *testing.T) {
	r := newRedisStore(t)

	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), time.Minute)

	got, ok := r.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestRedisMissOnAbsentKey(t *testing.T) {
	r := newRedisStore(t)

	_, ok := r.Get(context.Background(), "absent")
	assert.False(t, ok)
	assert.Equal(t, int64(1), r.Stats().Misses)
}

func TestRedisDelete(t *testing.T) {
	r := newRedisStore(t)

	ctx := context.Background()
	r.Set(ctx, "k", []byte("v"), time.Minute)
	r.Delete(ctx, "k")

	_, ok := r.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisConnectFailureIsAnError(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.Error(t, err)
}

func TestRedisBackedLaborTimes(t *testing.T) {
	r := newRedisStore(t)
	l := NewLaborTimes(r, time.Hour)

	ctx := context.Background()
	vehicle := domain.Vehicle{VIN: "1HGBH41JXMN109186"}
	l.Put(ctx, vehicle, "oil change", domain.LaborResult{Hours: 0.6, Source: domain.LaborSourceMOTOR})

	got, ok := l.Get(ctx, vehicle, "oil change")
	require.True(t, ok)
	assert.Equal(t, 0.6, got.Hours)
	assert.Equal(t, domain.LaborSourceLaborCache, got.Source)
}

func TestRedisPing(t *testing.T) {
	r := newRedisStore(t)
	assert.NoError(t, r.Ping(context.Background()))
}
