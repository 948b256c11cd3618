// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// opTimeout bounds every single Redis round trip so a slow cache never
// eats into a stage's deadline by more than this.
const opTimeout = 2 * time.Second

// Redis is a Store shared by every daemon replica pointed at the same
// Redis instance, so one shop's VIN decodes warm the cache for all of
// them.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// RedisConfig holds the connection settings for a Redis-backed Store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects to Redis and verifies the connection before returning.
func NewRedis(cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis lookup cache unavailable: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("redis lookup cache connected")
	return &Redis{client: client, logger: logger}, nil
}

// Get returns the value stored under key; Redis owns expiry.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		r.misses.Add(1)
		return nil, false
	case err != nil:
		r.logger.Warn().Err(err).Str("key", key).Msg("lookup cache get failed")
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return val, true
}

// Set stores value under key with ttl. Failures are logged, not returned:
// a cache write that misses only costs the next caller a vendor round
// trip.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("lookup cache set failed")
		return
	}
	r.sets.Add(1)
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("lookup cache delete failed")
	}
}

// Stats reports traffic counters; Entries is the server-side key count.
func (r *Redis) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	size, err := r.client.DBSize(ctx).Result()
	if err != nil {
		r.logger.Warn().Err(err).Msg("lookup cache dbsize failed")
	}
	return Stats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Sets:    r.sets.Load(),
		Entries: int(size),
	}
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping reports whether the Redis backend is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ Store = (*Redis)(nil)
