package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/rainwatch/internal/adapter/http"
	"github.com/couchcryptid/rainwatch/internal/alert"
	"github.com/couchcryptid/rainwatch/internal/batch"
	"github.com/couchcryptid/rainwatch/internal/broadcast"
	"github.com/couchcryptid/rainwatch/internal/config"
	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/evaluate"
	"github.com/couchcryptid/rainwatch/internal/gateway"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/couchcryptid/rainwatch/internal/registry"
	"github.com/couchcryptid/rainwatch/internal/scheduler"
	"github.com/couchcryptid/rainwatch/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Region registry (REGIONS_FILE, or the built-in demo set in mock mode).
	var regions *registry.Registry
	if cfg.RegionsFile != "" {
		regions, err = registry.Load(cfg.RegionsFile)
		if err != nil {
			logger.Error("failed to load regions", "path", cfg.RegionsFile, "error", err)
			os.Exit(1)
		}
	} else if cfg.MockMode {
		regions = registry.Demo()
	} else {
		logger.Error("REGIONS_FILE is required outside mock mode")
		os.Exit(1)
	}
	logger.Info("region registry loaded",
		"regions", len(regions.RegionIDs()), "stations", len(regions.AllStations()))

	// Store (DATABASE_URL selects Postgres; empty keeps everything in memory).
	var (
		st    domain.ReadingStore
		ready httpadapter.ReadinessChecker
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st, ready = pg, pg
		logger.Info("using postgres store")
	} else {
		mem := store.NewMemory(clock)
		st, ready = mem, mem
		logger.Info("using in-memory store")
	}

	// Upstream provider.
	loc := cfg.ProviderLocation()
	var (
		provider domain.WeatherProvider
		usage    httpadapter.UsageReporter
	)
	if cfg.MockMode {
		mock := gateway.NewMockSource(regions.AllStations(), loc, clock)
		provider, usage = mock, mock
		logger.Info("mock mode enabled, using synthetic provider")
	} else {
		quota := gateway.NewDailyQuota(cfg.DailyQuota, loc, clock)
		client := gateway.NewClient(cfg, quota, clock, logger, metrics)
		provider, usage = client, client
	}

	// Broadcaster (BROADCAST_ENABLED gates the Kafka writer).
	var bus domain.Broadcaster = broadcast.Noop{}
	if cfg.BroadcastEnabled {
		writer := broadcast.NewWriter(cfg, clock, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		bus = writer
		logger.Info("broadcasting enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	evaluator := evaluate.New(provider, st,
		evaluate.ConditionFromConfig(cfg), cfg.RealtimeThreshold, cfg.MockMode,
		clock, logger, metrics)
	batcher := batch.New(evaluator, cfg.BatchSize, cfg.BatchPause, clock, logger, metrics)
	monitor := alert.NewMonitor(provider, regions, clock, logger, metrics)

	sched := scheduler.New(scheduler.Options{
		FastInterval:        cfg.FastInterval,
		SlowInterval:        cfg.SlowInterval,
		AlertActiveInterval: cfg.AlertActiveInterval,
		AlertIdleInterval:   cfg.AlertIdleInterval,
		RetentionWindow:     cfg.RetentionWindow,
	}, regions, batcher, monitor, st, bus, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:           ready,
		Usage:           usage,
		Alerts:          monitor,
		Readings:        st,
		FreshnessWindow: cfg.FreshnessWindow,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
