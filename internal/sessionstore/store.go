// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sessionstore keeps the per-chat memory the chat-dispatch adapter
// needs to resolve a follow-up action ("order the parts", "customer
// approved") against the most recent EstimateResult, and an idempotency
// window mapping (chat_id, run_id) to the estimate it already produced so a
// retried request never double-creates an estimate.
package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/persistence/sqlite"
)

// DefaultTTL is how long a chat's last result stays resolvable for a
// follow-up action before it must re-run the pipeline.
const DefaultTTL = 24 * time.Hour

// Store is the C11 Session Store: last-result memory plus an idempotency
// window. Both backends are optional; New always returns a usable Store
// (falling back to in-memory / disabled idempotency) so callers never have
// to branch on which backend is active.
type Store struct {
	redis *redis.Client
	mem   sync.Map // chat_id -> cachedResult, used only when redis is nil

	db *sql.DB // idempotency window; nil disables it silently

	ttl time.Duration
}

type cachedResult struct {
	result    domain.EstimateResult
	expiresAt time.Time
}

// Options configures a Store's backends. Either may be left zero to use
// the in-memory / disabled fallback.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	TTL           time.Duration
}

// New builds a Store from opts. A Redis connection failure degrades to the
// in-memory backend rather than failing startup — last-result memory is a
// convenience, not the pipeline's source of truth.
func New(opts Options) (*Store, error) {
	s := &Store{ttl: opts.TTL}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}

	if opts.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.L().Warn().Err(err).Str("addr", opts.RedisAddr).Msg("session store: redis unavailable, falling back to in-memory")
		} else {
			s.redis = client
		}
	}

	if opts.SQLitePath != "" {
		db, err := sqlite.Open(opts.SQLitePath, sqlite.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("session store: idempotency db: %w", err)
		}
		if err := migrate(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("session store: migration failed: %w", err)
		}
		s.db = db
	}

	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS idempotency (
			chat_id      TEXT NOT NULL,
			run_id       TEXT NOT NULL,
			estimate_id  TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (chat_id, run_id)
		);
	`)
	return err
}

// Close releases backend connections. Safe to call on a Store with no
// configured backends.
func (s *Store) Close() error {
	var err error
	if s.redis != nil {
		err = s.redis.Close()
	}
	if s.db != nil {
		if derr := s.db.Close(); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

// Put persists result as chatID's most recent estimate, keyed for
// retrieval by Last.
func (s *Store) Put(ctx context.Context, chatID string, result domain.EstimateResult) error {
	if s.redis != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("session store: marshal: %w", err)
		}
		if err := s.redis.Set(ctx, sessionKey(chatID), data, s.ttl).Err(); err != nil {
			return fmt.Errorf("session store: redis set: %w", err)
		}
		return nil
	}
	s.mem.Store(chatID, cachedResult{result: result, expiresAt: time.Now().Add(s.ttl)})
	return nil
}

// Last returns chatID's most recently stored EstimateResult, or false if
// none exists or it has expired.
func (s *Store) Last(ctx context.Context, chatID string) (domain.EstimateResult, bool) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, sessionKey(chatID)).Bytes()
		if err != nil {
			return domain.EstimateResult{}, false
		}
		var result domain.EstimateResult
		if err := json.Unmarshal(data, &result); err != nil {
			log.L().Warn().Err(err).Str("chat_id", chatID).Msg("session store: corrupt cached result")
			return domain.EstimateResult{}, false
		}
		return result, true
	}
	v, ok := s.mem.Load(chatID)
	if !ok {
		return domain.EstimateResult{}, false
	}
	cached := v.(cachedResult)
	if time.Now().After(cached.expiresAt) {
		s.mem.Delete(chatID)
		return domain.EstimateResult{}, false
	}
	return cached.result, true
}

func sessionKey(chatID string) string { return "svcadvisor:session:" + chatID }

// Ping verifies the store's active backends are reachable. The in-memory
// fallback always reports healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("session store: redis: %w", err)
		}
	}
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("session store: idempotency db: %w", err)
		}
	}
	return nil
}

// ErrIdempotencyDisabled names the state with no SQLite backend
// configured. The idempotency methods do not return it: without SQLite a
// check reports a miss and a record is a no-op.
var ErrIdempotencyDisabled = errors.New("session store: idempotency window not configured")

// CheckIdempotency returns the estimate_id already produced for
// (chatID, runID), if any. A miss is reported as ("", false, nil), never an
// error, so callers treat "never seen" and "not configured" the same way
// except when they specifically need to know the window is disabled.
func (s *Store) CheckIdempotency(ctx context.Context, chatID, runID string) (string, bool, error) {
	if s.db == nil {
		return "", false, nil
	}
	var estimateID string
	err := s.db.QueryRowContext(ctx,
		"SELECT estimate_id FROM idempotency WHERE chat_id = ? AND run_id = ?", chatID, runID,
	).Scan(&estimateID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session store: idempotency lookup: %w", err)
	}
	return estimateID, true, nil
}

// RecordIdempotency remembers that (chatID, runID) already produced
// estimateID, so a retried request can be answered without re-running the
// pipeline. A no-op (not an error) when no SQLite backend is configured.
func (s *Store) RecordIdempotency(ctx context.Context, chatID, runID, estimateID string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO idempotency (chat_id, run_id, estimate_id, created_at) VALUES (?, ?, ?, ?)",
		chatID, runID, estimateID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("session store: record idempotency: %w", err)
	}
	return nil
}
