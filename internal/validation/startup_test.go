// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcadvisor/estimate-pipeline/internal/config"
	"github.com/svcadvisor/estimate-pipeline/internal/resilience"
)

func TestPerformStartupChecks_FlagsMissingVendorCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Vendors["motor"] = resilience.PlatformConfig{Name: "motor"}

	report, err := PerformStartupChecks(cfg)
	require.NoError(t, err)
	assert.Contains(t, report.MissingCredentials, "motor")
	assert.NotEmpty(t, report.Warnings)
}

func TestPerformStartupChecks_ConfiguredVendorNotFlagged(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Vendors["alldata"] = resilience.PlatformConfig{Name: "alldata"}
	cfg.VendorCredentials["alldata"] = config.VendorCredential{APIKey: "secret"}

	report, err := PerformStartupChecks(cfg)
	require.NoError(t, err)
	assert.NotContains(t, report.MissingCredentials, "alldata")
}

func TestPerformStartupChecks_NoDispatchTokenWarns(t *testing.T) {
	cfg := config.DefaultConfig()

	report, err := PerformStartupChecks(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Warnings)
}
