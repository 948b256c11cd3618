// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and hot-reloads the shop-level configuration: markup
// policy, per-stage timeouts, vendor credentials, and the breaker/rate
// thresholds that guard outbound calls to vendor platforms.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/svcadvisor/estimate-pipeline/internal/resilience"
)

// FileConfig is the on-disk YAML shape. Every field is optional; ENV
// overrides and defaults fill in whatever the file omits.
type FileConfig struct {
	ShopID        string             `yaml:"shopId,omitempty"`
	ListenAddr    string             `yaml:"listenAddr,omitempty"`
	DispatchToken string             `yaml:"dispatchToken,omitempty"`
	LogLevel      string             `yaml:"logLevel,omitempty"`
	LogFormat     string             `yaml:"logFormat,omitempty"`
	BrowserEndpoint string           `yaml:"browserEndpoint,omitempty"`

	Pricing   PricingConfig           `yaml:"pricing,omitempty"`
	Stages    StageTimeoutConfig      `yaml:"stages,omitempty"`
	Tabs      TabConfig               `yaml:"tabs,omitempty"`
	RateLimit RateLimitConfig         `yaml:"rateLimit,omitempty"`
	Redis     RedisConfig             `yaml:"redis,omitempty"`
	SQLite    SQLiteConfig            `yaml:"sqlite,omitempty"`
	Vendors   map[string]VendorConfig `yaml:"vendors,omitempty"`
}

// PricingConfig controls the shop markup applied to fallback (non-native)
// parts pricing sources.
type PricingConfig struct {
	ShopMarkupRate float64 `yaml:"shopMarkupRate,omitempty"`
}

// StageTimeoutConfig bounds how long a single pipeline stage, and the
// research fan-out as a whole, may run before being classified
// DEADLINE_EXCEEDED.
type StageTimeoutConfig struct {
	Default         string `yaml:"default,omitempty"`
	Research        string `yaml:"research,omitempty"`
	MaxParallel     int    `yaml:"maxParallel,omitempty"`
}

// TabConfig governs the shared-browser tab registry.
type TabConfig struct {
	StaleAfter string `yaml:"staleAfter,omitempty"`
}

// RateLimitConfig bounds inbound dispatch traffic from the chat gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute,omitempty"`
}

// RedisConfig configures the session store's last-result cache.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SQLiteConfig configures the idempotency window. Empty Path disables it.
type SQLiteConfig struct {
	Path string `yaml:"path,omitempty"`
}

// VendorConfig holds one vendor platform's credentials and breaker
// thresholds (MOTOR, ALLDATA, ProDemand, ARI, a parts-pricing API, ...).
type VendorConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`

	BreakerWindow      string  `yaml:"breakerWindow,omitempty"`
	BreakerMinRequests int     `yaml:"breakerMinRequests,omitempty"`
	BreakerFailureRate float64 `yaml:"breakerFailureRate,omitempty"`
	BreakerConsecutive int     `yaml:"breakerConsecutive,omitempty"`
	BreakerRetryAfter  string  `yaml:"breakerRetryAfter,omitempty"`
}

// AppConfig is the fully resolved, runtime-ready configuration: durations
// parsed, defaults applied, ENV overrides merged in.
type AppConfig struct {
	ShopID        string
	ListenAddr    string
	DispatchToken string
	LogLevel      string
	LogFormat     string

	// BrowserEndpoint is the debugging endpoint of the pre-started shared
	// browser; the daemon never spawns the browser itself.
	BrowserEndpoint string

	ShopMarkupRate float64

	StageTimeout    time.Duration
	ResearchTimeout time.Duration
	MaxParallel     int

	TabStaleAfter time.Duration

	RateLimitPerMinute int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SQLitePath string

	Vendors map[string]resilience.PlatformConfig

	// VendorCredentials mirrors Vendors' auth material; kept separate from
	// resilience.PlatformConfig, which only carries breaker thresholds.
	VendorCredentials map[string]VendorCredential
}

// VendorCredential is the auth material a session/adapter needs to log
// into one vendor platform.
type VendorCredential struct {
	Username string
	Password string
	APIKey   string
}

// DefaultConfig returns the configuration a single shop runs with out of
// the box: conservative breaker thresholds, a 10s per-stage budget, no
// vendor credentials (every platform starts DISABLED until configured).
func DefaultConfig() AppConfig {
	return AppConfig{
		ListenAddr:         ":8088",
		LogLevel:           "info",
		LogFormat:          "json",
		BrowserEndpoint:    "http://127.0.0.1:18800",
		ShopMarkupRate:     0.25,
		StageTimeout:       10 * time.Second,
		ResearchTimeout:    20 * time.Second,
		MaxParallel:        8,
		TabStaleAfter:      5 * time.Minute,
		RateLimitPerMinute: 60,
		Vendors:            map[string]resilience.PlatformConfig{},
		VendorCredentials:  map[string]VendorCredential{},
	}
}

// Loader builds an AppConfig from an optional YAML file plus ENV overrides.
type Loader struct {
	configPath string
}

// NewLoader builds a Loader that reads configPath (may be empty, meaning
// ENV-only configuration).
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configured file (if any), applies defaults for anything
// left unset, then layers ENV overrides on top.
func (l *Loader) Load() (AppConfig, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		file, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, err
		}
		if err := mergeFileConfig(&cfg, file); err != nil {
			return AppConfig{}, err
		}
	}

	l.mergeEnvConfig(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

func mergeFileConfig(cfg *AppConfig, fc *FileConfig) error {
	if fc.ShopID != "" {
		cfg.ShopID = fc.ShopID
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DispatchToken != "" {
		cfg.DispatchToken = fc.DispatchToken
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.BrowserEndpoint != "" {
		cfg.BrowserEndpoint = fc.BrowserEndpoint
	}
	if fc.Pricing.ShopMarkupRate != 0 {
		cfg.ShopMarkupRate = fc.Pricing.ShopMarkupRate
	}

	if fc.Stages.Default != "" {
		d, err := time.ParseDuration(fc.Stages.Default)
		if err != nil {
			return fmt.Errorf("config: stages.default: %w", err)
		}
		cfg.StageTimeout = d
	}
	if fc.Stages.Research != "" {
		d, err := time.ParseDuration(fc.Stages.Research)
		if err != nil {
			return fmt.Errorf("config: stages.research: %w", err)
		}
		cfg.ResearchTimeout = d
	}
	if fc.Stages.MaxParallel != 0 {
		cfg.MaxParallel = fc.Stages.MaxParallel
	}

	if fc.Tabs.StaleAfter != "" {
		d, err := time.ParseDuration(fc.Tabs.StaleAfter)
		if err != nil {
			return fmt.Errorf("config: tabs.staleAfter: %w", err)
		}
		cfg.TabStaleAfter = d
	}

	if fc.RateLimit.RequestsPerMinute != 0 {
		cfg.RateLimitPerMinute = fc.RateLimit.RequestsPerMinute
	}

	if fc.Redis.Addr != "" {
		cfg.RedisAddr = fc.Redis.Addr
	}
	cfg.RedisPassword = fc.Redis.Password
	cfg.RedisDB = fc.Redis.DB

	if fc.SQLite.Path != "" {
		cfg.SQLitePath = fc.SQLite.Path
	}

	for name, v := range fc.Vendors {
		pc := resilience.PlatformConfig{
			Name:        name,
			MinRequests: v.BreakerMinRequests,
			FailureRate: v.BreakerFailureRate,
			Consecutive: v.BreakerConsecutive,
		}
		if v.BreakerWindow != "" {
			d, err := time.ParseDuration(v.BreakerWindow)
			if err != nil {
				return fmt.Errorf("config: vendors.%s.breakerWindow: %w", name, err)
			}
			pc.Window = d
		}
		if v.BreakerRetryAfter != "" {
			d, err := time.ParseDuration(v.BreakerRetryAfter)
			if err != nil {
				return fmt.Errorf("config: vendors.%s.breakerRetryAfter: %w", name, err)
			}
			pc.RetryAfter = d
		}
		cfg.Vendors[name] = pc
		cfg.VendorCredentials[name] = VendorCredential{Username: v.Username, Password: v.Password, APIKey: v.APIKey}
	}

	return nil
}

// mergeEnvConfig layers ENV overrides on top of file+default values. Vendor
// credentials can come from the YAML vendors map or from ENV
// (SVCADVISOR_VENDOR_<NAME>_*); a non-empty ENV value overrides the file.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.ShopID = envString("SVCADVISOR_SHOP_ID", cfg.ShopID)
	cfg.ListenAddr = envString("SVCADVISOR_LISTEN_ADDR", cfg.ListenAddr)
	cfg.DispatchToken = envString("SVCADVISOR_DISPATCH_TOKEN", cfg.DispatchToken)
	cfg.LogLevel = envString("SVCADVISOR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("SVCADVISOR_LOG_FORMAT", cfg.LogFormat)
	cfg.BrowserEndpoint = envString("SVCADVISOR_BROWSER_ENDPOINT", cfg.BrowserEndpoint)
	cfg.ShopMarkupRate = envFloat("SVCADVISOR_SHOP_MARKUP_RATE", cfg.ShopMarkupRate)
	cfg.StageTimeout = envDuration("SVCADVISOR_STAGE_TIMEOUT", cfg.StageTimeout)
	cfg.ResearchTimeout = envDuration("SVCADVISOR_RESEARCH_TIMEOUT", cfg.ResearchTimeout)
	cfg.MaxParallel = envInt("SVCADVISOR_MAX_PARALLEL", cfg.MaxParallel)
	cfg.TabStaleAfter = envDuration("SVCADVISOR_TAB_STALE_AFTER", cfg.TabStaleAfter)
	cfg.RateLimitPerMinute = envInt("SVCADVISOR_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.RedisAddr = envString("SVCADVISOR_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("SVCADVISOR_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("SVCADVISOR_REDIS_DB", cfg.RedisDB)
	cfg.SQLitePath = envString("SVCADVISOR_SQLITE_PATH", cfg.SQLitePath)

	for _, name := range knownVendorEnvNames() {
		prefix := "SVCADVISOR_VENDOR_" + strings.ToUpper(name) + "_"
		user, hasUser := os.LookupEnv(prefix + "USERNAME")
		pass, hasPass := os.LookupEnv(prefix + "PASSWORD")
		key, hasKey := os.LookupEnv(prefix + "API_KEY")
		if !hasUser && !hasPass && !hasKey {
			continue
		}
		cred := cfg.VendorCredentials[name]
		if hasUser {
			cred.Username = user
		}
		if hasPass {
			cred.Password = pass
		}
		if hasKey {
			cred.APIKey = key
		}
		cfg.VendorCredentials[name] = cred
		if _, ok := cfg.Vendors[name]; !ok {
			cfg.Vendors[name] = resilience.PlatformConfig{Name: name}
		}
	}
}

// knownVendorEnvNames lists the platform names the dispatch surface and
// orchestrator know about by convention; an operator can still add
// unlisted vendors purely via the YAML file's vendors: map.
func knownVendorEnvNames() []string {
	return []string{"motor", "alldata", "prodemand", "ari", "identifix", "mitchell1", "autoleap"}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
