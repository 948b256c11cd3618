// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_DefaultsWithNoFile(t *testing.T) {
	l := NewLoader("")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().ShopMarkupRate, cfg.ShopMarkupRate)
	assert.Equal(t, 8, cfg.MaxParallel)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
shopId: shop-42
pricing:
  shopMarkupRate: 0.3
stages:
  default: 15s
  maxParallel: 4
vendors:
  motor:
    username: tech1
    breakerConsecutive: 5
    breakerFailureRate: 0.5
`), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "shop-42", cfg.ShopID)
	assert.Equal(t, 0.3, cfg.ShopMarkupRate)
	assert.Equal(t, 15*time.Second, cfg.StageTimeout)
	assert.Equal(t, 4, cfg.MaxParallel)
	require.Contains(t, cfg.VendorCredentials, "motor")
	assert.Equal(t, "tech1", cfg.VendorCredentials["motor"].Username)
	assert.Equal(t, 5, cfg.Vendors["motor"].Consecutive)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	t.Setenv("SVCADVISOR_SHOP_MARKUP_RATE", "0.45")
	t.Setenv("SVCADVISOR_VENDOR_ALLDATA_API_KEY", "secret-key")

	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, 0.45, cfg.ShopMarkupRate)
	require.Contains(t, cfg.VendorCredentials, "alldata")
	assert.Equal(t, "secret-key", cfg.VendorCredentials["alldata"].APIKey)
}

func TestValidate_RejectsNonPositiveTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StageTimeout = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsOutOfRangeFailureRate(t *testing.T) {
	cfg := DefaultConfig()
	vendor := cfg.Vendors["motor"]
	vendor.Name = "motor"
	vendor.FailureRate = 1.5
	cfg.Vendors["motor"] = vendor
	assert.Error(t, Validate(cfg))
}

func TestHolder_ReloadSwapsConfigOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shopId: shop-1\n"), 0o600))

	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader, path)

	assert.Equal(t, "shop-1", h.Get().ShopID)

	require.NoError(t, os.WriteFile(path, []byte("shopId: shop-2\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, "shop-2", h.Get().ShopID)
}

func TestHolder_ReloadKeepsOldConfigOnValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shopId: shop-1\n"), 0o600))

	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("stages:\n  default: -1s\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "shop-1", h.Get().ShopID)
}
