// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/svcadvisor/estimate-pipeline/internal/artifacts"
	"github.com/svcadvisor/estimate-pipeline/internal/cache"
	"github.com/svcadvisor/estimate-pipeline/internal/config"
	"github.com/svcadvisor/estimate-pipeline/internal/dispatch"
	"github.com/svcadvisor/estimate-pipeline/internal/health"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/orchestrator"
	"github.com/svcadvisor/estimate-pipeline/internal/pipeline/bus"
	"github.com/svcadvisor/estimate-pipeline/internal/ratelimit"
	"github.com/svcadvisor/estimate-pipeline/internal/scheduler"
	"github.com/svcadvisor/estimate-pipeline/internal/sessionmgr"
	"github.com/svcadvisor/estimate-pipeline/internal/sessionstore"
	"github.com/svcadvisor/estimate-pipeline/internal/tab"
	"github.com/svcadvisor/estimate-pipeline/internal/validation"
	"github.com/svcadvisor/estimate-pipeline/internal/version"
)

// runDaemon loads configuration, wires every long-lived collaborator
// (C1-C12), and blocks serving the dispatch HTTP surface until the
// process receives SIGINT/SIGTERM.
func runDaemon(ctx context.Context, configPath string) error {
	log.Configure(log.Config{Level: "info", Service: "svcadvisor", Version: version.Version})
	logger := log.WithComponent("daemon")

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return errors.Join(errors.New("config load failed"), err)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "svcadvisor", Version: version.Version})
	logger = log.WithComponent("daemon")

	report, err := validation.PerformStartupChecks(cfg)
	if err != nil {
		return errors.Join(errors.New("startup checks failed"), err)
	}
	for _, w := range report.Warnings {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder := config.NewHolder(cfg, loader, configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config hot-reload watcher not started")
	}
	defer holder.Stop()

	tokenDir := filepath.Join(os.TempDir(), "svcadvisor-tokens")
	tokenCache, err := sessionmgr.NewTokenCache(tokenDir)
	if err != nil {
		return errors.Join(errors.New("token cache init failed"), err)
	}

	var platformCfgs []sessionmgr.PlatformConfig
	for name := range cfg.Vendors {
		cred := cfg.VendorCredentials[name]
		hasCreds := cred.Username != "" || cred.Password != "" || cred.APIKey != ""
		platformCfgs = append(platformCfgs, sessionmgr.PlatformConfig{
			Name:    name,
			Enabled: hasCreds, // no Auth wired: concrete vendor login flows live outside this binary
		})
	}
	sessions := sessionmgr.New(tokenCache, platformCfgs)

	tabs := tab.NewRegistry(cfg.TabStaleAfter)
	sched := scheduler.New(cfg.MaxParallel)

	store, err := sessionstore.New(sessionstore.Options{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		SQLitePath:    cfg.SQLitePath,
	})
	if err != nil {
		return errors.Join(errors.New("session store init failed"), err)
	}
	defer func() { _ = store.Close() }()

	artifactStore, err := artifacts.New(artifacts.Config{Root: filepath.Join(os.TempDir(), "svcadvisor-artifacts")})
	if err != nil {
		return errors.Join(errors.New("artifact store init failed"), err)
	}
	sweepStop := make(chan struct{})
	go artifactStore.RunLoop(time.Hour, sweepStop)
	defer close(sweepStop)

	// Vendor lookups (VIN decodes, canned-job labor times) are cached in
	// Redis when it is configured so replicas share warm entries, and in
	// process memory otherwise.
	var lookupStore cache.Store
	if cfg.RedisAddr != "" {
		rs, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log.WithComponent("cache"))
		if err != nil {
			logger.Warn().Err(err).Msg("redis lookup cache unavailable, using in-memory cache")
		} else {
			lookupStore = rs
		}
	}
	if lookupStore == nil {
		lookupStore = cache.NewMemory(10 * time.Minute)
	}
	defer func() { _ = lookupStore.Close() }()

	orch := orchestrator.New(orchestrator.Config{
		ShopMarkupRate:  cfg.ShopMarkupRate,
		Sessions:        sessions,
		Tabs:            tabs,
		Scheduler:       sched,
		Outbound:        ratelimit.New(ratelimit.DefaultConfig()),
		VINCache:        cache.NewVehicles(lookupStore, 0),
		LaborCache:      cache.NewLaborTimes(lookupStore, 0),
		StageTimeout:    cfg.StageTimeout,
		ResearchTimeout: cfg.ResearchTimeout,
		Sink:            store,
		VendorBreakers:  cfg.Vendors,
	})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(tabStalenessChecker{registry: tabs})

	// The chat gateway polls /healthz for browser_running, cdp_reachable
	// and disk_free_mb before it routes an estimate this way.
	cdpPing := func(pingCtx context.Context) error {
		req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, cfg.BrowserEndpoint+"/json/version", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cdp endpoint returned %d", resp.StatusCode)
		}
		return nil
	}
	hm.RegisterChecker(health.NewBrowserRunningChecker(func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return cdpPing(pingCtx) == nil
	}))
	hm.RegisterChecker(health.NewCDPReachableChecker(cdpPing))
	hm.RegisterChecker(health.NewDiskFreeChecker(100, func() (int64, error) {
		var stat unix.Statfs_t
		if err := unix.Statfs(artifactStore.Root(), &stat); err != nil {
			return 0, err
		}
		return int64(stat.Bavail) * stat.Bsize / (1 << 20), nil
	}))
	hm.RegisterChecker(health.NewPlatformBreakerChecker(sched.Breakers().OpenPlatforms))
	hm.RegisterChecker(health.NewSessionStoreChecker(store.Ping))
	hm.RegisterChecker(health.NewDirWritableChecker("token_cache_dir", tokenDir))
	hm.RegisterChecker(health.NewDirWritableChecker("artifact_dir", artifactStore.Root()))

	dispatchServer := dispatch.NewServer(dispatch.Config{
		Orchestrator:       orch,
		Sessions:           store,
		Progress:           bus.NewMemoryBus(),
		DispatchToken:      cfg.DispatchToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/", dispatchServer.Router())
	mux.HandleFunc("/healthz", hm.ServeHealth)
	mux.HandleFunc("/readyz", hm.ServeReady)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("dispatch server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer log.Flush(2 * time.Second)
	return srv.Shutdown(shutdownCtx)
}

// tabStalenessChecker reports degraded when stale tab leases accumulate,
// which usually means a browser-driven adapter stopped releasing its
// lease on cancellation.
type tabStalenessChecker struct {
	registry *tab.Registry
}

func (c tabStalenessChecker) Name() string { return "tab_registry" }
func (c tabStalenessChecker) Type() health.CheckType {
	return health.CheckHealth | health.CheckReadiness
}
func (c tabStalenessChecker) Check(ctx context.Context) health.CheckResult {
	stale := c.registry.StaleTabs()
	if len(stale) == 0 {
		return health.CheckResult{Status: health.StatusHealthy}
	}
	return health.CheckResult{Status: health.StatusDegraded, Message: "stale tab leases pending cleanup"}
}
