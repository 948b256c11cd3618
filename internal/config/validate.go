// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "fmt"

// Validate rejects a configuration that the orchestrator could not safely
// run with. It never checks vendor credential presence — a shop with no
// vendors configured is valid, just unable to price anything but AI
// fallback; startup checks surface that as a warning, not a load error.
func Validate(cfg AppConfig) error {
	if cfg.ShopMarkupRate < 0 {
		return fmt.Errorf("config: shopMarkupRate must not be negative, got %v", cfg.ShopMarkupRate)
	}
	if cfg.StageTimeout <= 0 {
		return fmt.Errorf("config: stages.default must be positive, got %v", cfg.StageTimeout)
	}
	if cfg.ResearchTimeout <= 0 {
		return fmt.Errorf("config: stages.research must be positive, got %v", cfg.ResearchTimeout)
	}
	if cfg.MaxParallel <= 0 {
		return fmt.Errorf("config: stages.maxParallel must be positive, got %d", cfg.MaxParallel)
	}
	if cfg.TabStaleAfter <= 0 {
		return fmt.Errorf("config: tabs.staleAfter must be positive, got %v", cfg.TabStaleAfter)
	}
	for name, v := range cfg.Vendors {
		if v.Consecutive < 0 || v.MinRequests < 0 {
			return fmt.Errorf("config: vendors.%s: breaker thresholds must not be negative", name)
		}
		if v.FailureRate < 0 || v.FailureRate > 1 {
			return fmt.Errorf("config: vendors.%s: breakerFailureRate must be within [0,1], got %v", name, v.FailureRate)
		}
	}
	return nil
}
