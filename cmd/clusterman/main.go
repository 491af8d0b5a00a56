// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"golang.org/x/sync/errgroup"

	"github.com/clusterman/clusterman/internal/api"
	"github.com/clusterman/clusterman/internal/audit"
	"github.com/clusterman/clusterman/internal/autoscaler"
	"github.com/clusterman/clusterman/internal/cache"
	"github.com/clusterman/clusterman/internal/config"
	"github.com/clusterman/clusterman/internal/connector"
	"github.com/clusterman/clusterman/internal/groups"
	"github.com/clusterman/clusterman/internal/health"
	cmanlog "github.com/clusterman/clusterman/internal/log"
	"github.com/clusterman/clusterman/internal/markets"
	"github.com/clusterman/clusterman/internal/pool"
	"github.com/clusterman/clusterman/internal/pricing"
	"github.com/clusterman/clusterman/internal/signals"
	"github.com/clusterman/clusterman/internal/store"
	"github.com/clusterman/clusterman/internal/telemetry"
	"github.com/clusterman/clusterman/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	dryRun := flag.Bool("dry-run", false, "log capacity decisions without applying them")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	cfg := config.FromEnv(version.Version)
	cmanlog.Configure(cmanlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	logger := cmanlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.Validate(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.invalid").
			Msg("invalid configuration")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("cluster", cfg.Cluster).
		Str("pool", cfg.Pool).
		Str("scheduler", cfg.Scheduler).
		Bool("dry_run", *dryRun).
		Msg("starting clusterman")

	tracing, err := telemetry.NewProvider(ctx, telemetry.FromConfig(cfg, version.Version))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	// Pool configuration: file-backed with hot reload, or defaults.
	poolCfg, err := config.LoadPoolConfig(cfg.PoolConfigPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.pool_load_failed").
			Str("path", cfg.PoolConfigPath).
			Msg("failed to load pool configuration")
	}
	holder := config.NewHolder(poolCfg, cfg.PoolConfigPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.watcher_failed").
			Msg("failed to watch pool configuration")
	}

	// Capacity and price history store.
	st, err := store.Open(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Msg("failed to open state store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	// AWS clients.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "aws.config_failed").
			Msg("failed to load AWS configuration")
	}
	ec2Client := ec2.NewFromConfig(awsCfg)
	asgClient := autoscaling.NewFromConfig(awsCfg)

	// Subnet-to-AZ lookups are cached; Redis when configured, in-memory
	// otherwise.
	var azCache cache.Cache
	if cfg.RedisAddr != "" {
		azCache, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cmanlog.WithComponent("cache"))
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "cache.redis_failed").
				Msg("failed to connect to redis")
		}
	} else {
		azCache = cache.NewMemoryCache(time.Minute)
	}
	defer func() { _ = azCache.Close() }()

	resolver := markets.NewResolver(ec2Client, azCache)

	conn, err := connector.New(cfg, holder)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "connector.init_failed").
			Msg("failed to build cluster connector")
	}

	loader := groups.NewLoader(ec2Client, asgClient, resolver, cfg.Cluster, cfg.Pool)
	manager := pool.NewManager(cfg, holder, conn, loader)

	sig, err := signals.New(holder.Get().Autoscaling.Signal, cfg, holder, conn)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "signals.init_failed").
			Msg("failed to build autoscaling signal")
	}

	auditor := audit.NewLogger()
	scaler := autoscaler.New(cfg, holder, manager, sig, st, auditor, *dryRun)

	// Health and readiness surface.
	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewFileChecker("pool-config", cfg.PoolConfigPath))
	hm.RegisterChecker(health.NewStoreChecker(func(ctx context.Context) error {
		_, err := st.LatestCapacity(ctx, cfg.Cluster, cfg.Pool)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}))
	hm.RegisterChecker(health.NewLastRunChecker("last_autoscale_run", 3*cfg.AutoscaleInterval, scaler.LastRun))

	var collector *pricing.Collector
	if cfg.PriceCollectorEnabled {
		collector = pricing.NewCollector(ec2Client, st, cfg)
		hm.RegisterChecker(health.NewLastRunChecker("last_price_collection", 3*cfg.PriceCollectorRunInterval, collector.LastRun))
	}

	server := api.NewServer(cfg, manager, holder, st, hm, auditor)

	// Config changes re-resolve the pool immediately rather than waiting
	// for the next autoscale run.
	poolCfgUpdates := make(chan config.PoolConfig, 1)
	holder.Subscribe(poolCfgUpdates)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.WatchConfig(gctx, poolCfgUpdates) })
	g.Go(func() error { return scaler.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })
	if collector != nil {
		g.Go(func() error { return collector.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
	}

	logger.Info().Msg("clusterman exiting")
}
