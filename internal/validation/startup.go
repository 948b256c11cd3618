// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validation runs pre-flight checks before the orchestrator starts
// accepting dispatch traffic: every configured vendor platform has the
// credentials it needs, and storage paths are writable.
package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/svcadvisor/estimate-pipeline/internal/config"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
)

// Report summarizes what PerformStartupChecks found. Missing vendor
// credentials are warnings, not hard failures — a shop can run with fewer
// platforms wired, falling back to AI-only diagnosis and matrix pricing.
type Report struct {
	MissingCredentials []string
	Warnings           []string
}

// PerformStartupChecks validates storage paths and vendor credential
// presence before the dispatch server starts listening.
func PerformStartupChecks(cfg config.AppConfig) (Report, error) {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	var report Report

	if cfg.SQLitePath != "" {
		if err := checkParentDirWritable(cfg.SQLitePath); err != nil {
			return report, fmt.Errorf("sqlite path check failed: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("idempotency database path is writable")
	}

	for name := range cfg.Vendors {
		cred, ok := cfg.VendorCredentials[name]
		if !ok || (cred.Username == "" && cred.Password == "" && cred.APIKey == "") {
			report.MissingCredentials = append(report.MissingCredentials, name)
			report.Warnings = append(report.Warnings, fmt.Sprintf("vendor %q has breaker thresholds configured but no credentials; it will start DISABLED", name))
			logVendorMissing(logger, name)
			continue
		}
		logger.Info().Str("vendor", name).Msg("vendor credentials present")
	}

	if cfg.DispatchToken == "" {
		report.Warnings = append(report.Warnings, "no dispatch token configured; the chat-dispatch surface is open to any caller")
		logger.Warn().Msg("no dispatch token configured")
	}

	logger.Info().Int("missing_credentials", len(report.MissingCredentials)).Msg("startup checks complete")
	return report, nil
}

func logVendorMissing(logger zerolog.Logger, name string) {
	logger.Warn().Str("vendor", name).Msg("vendor has no credentials configured, will start DISABLED")
}

func checkParentDirWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", dir)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	_ = os.Remove(probe)
	return nil
}
