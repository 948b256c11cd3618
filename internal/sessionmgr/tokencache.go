// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sessionmgr implements the Session Manager: one
// AuthState per integrated vendor platform, a check/heal state machine,
// and a preflight that collapses concurrent checks for the same platform.
package sessionmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
)

// TokenRecord is the self-describing persisted record for one platform's
// cached auth token.
type TokenRecord struct {
	Platform                 string    `json:"platform"`
	Token                     string    `json:"token"`
	ExpiresAtMonotonicSeconds int64     `json:"expires_at_monotonic_seconds"`
	CachedAt                  time.Time `json:"cached_at"`
}

// Expired reports whether the record is past its expiry, using the wall
// clock supplied by the caller (sessionmgr never reaches for time.Now
// directly so tests can fake it).
func (t TokenRecord) Expired(now time.Time) bool {
	if t.ExpiresAtMonotonicSeconds == 0 {
		return true
	}
	return now.Unix() >= t.ExpiresAtMonotonicSeconds
}

// TokenCache reads/writes per-platform token cache files under a base
// directory (the OS temp dir in production), using write-then-rename so a
// crash mid-write never leaves a torn record behind.
type TokenCache struct {
	mu      sync.Mutex
	baseDir string
}

// NewTokenCache creates a TokenCache rooted at baseDir, creating it if
// necessary. An empty baseDir defaults to os.TempDir()/svcadvisor-tokens.
func NewTokenCache(baseDir string) (*TokenCache, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "svcadvisor-tokens")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create token cache dir: %w", err)
	}
	return &TokenCache{baseDir: baseDir}, nil
}

func (c *TokenCache) path(platform string) string {
	return filepath.Join(c.baseDir, platform+".json")
}

// Read loads the cached record for platform. Returns (zero, false, nil) if
// no record exists yet.
func (c *TokenCache) Read(platform string) (TokenRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(platform))
	if err != nil {
		if os.IsNotExist(err) {
			return TokenRecord{}, false, nil
		}
		return TokenRecord{}, false, fmt.Errorf("read token cache for %s: %w", platform, err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TokenRecord{}, false, fmt.Errorf("decode token cache for %s: %w", platform, err)
	}
	return rec, true, nil
}

// Write atomically persists rec via write-then-rename.
func (c *TokenCache) Write(rec TokenRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token cache for %s: %w", rec.Platform, err)
	}

	pending, err := renameio.NewPendingFile(c.path(rec.Platform))
	if err != nil {
		return fmt.Errorf("create pending token file for %s: %w", rec.Platform, err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			log.L().Debug().Err(cerr).Str("platform", rec.Platform).Msg("cleanup pending token file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write token cache for %s: %w", rec.Platform, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace token cache for %s: %w", rec.Platform, err)
	}
	return nil
}
