package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tillpoint-backend/api/routes"
	"github.com/angelmondragon/tillpoint-backend/internal/catalog"
	"github.com/angelmondragon/tillpoint-backend/internal/cron"
	"github.com/angelmondragon/tillpoint-backend/internal/pricing"
	"github.com/angelmondragon/tillpoint-backend/internal/reports"
	"github.com/angelmondragon/tillpoint-backend/internal/sales"
	"github.com/angelmondragon/tillpoint-backend/internal/sessions"
	"github.com/angelmondragon/tillpoint-backend/pkg/config"
	"github.com/angelmondragon/tillpoint-backend/pkg/db"
	"github.com/angelmondragon/tillpoint-backend/pkg/enums"
	"github.com/angelmondragon/tillpoint-backend/pkg/logger"
	"github.com/angelmondragon/tillpoint-backend/pkg/metrics"
	"github.com/angelmondragon/tillpoint-backend/pkg/migrate"
	"github.com/angelmondragon/tillpoint-backend/pkg/redis"
)

const (
	shutdownTimeout = 15 * time.Second
	cronLockFormat  = "tp:cron:lock:%s"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.Prepare(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
	} else {
		logg.Warn(ctx, "redis not configured; sale numbers use the in-process sequence and HTTP replay is disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	commitMetrics := metrics.NewCommitMetrics(registry)
	jobMetrics := metrics.NewJobMetrics(registry)

	cache, err := catalog.NewCache(catalog.NewRepository(dbClient.DB()), logg, commitMetrics)
	if err != nil {
		return err
	}
	defer cache.Close()
	if err := cache.Load(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	calc, err := pricing.NewCalculator(cfg.Pricing.Rate())
	if err != nil {
		return err
	}

	salesRepo := sales.NewRepository(dbClient.DB(), dbClient)
	var seq sales.SequenceSource
	if redisClient != nil {
		seq = redisClient
	}
	policy, err := enums.ParseStockPolicy(cfg.Commit.StockPolicy)
	if err != nil {
		return err
	}
	engine, err := sales.NewEngine(salesRepo, cache, calc, seq, sales.Config{
		StockPolicy:           policy,
		MaxIdentifierAttempts: cfg.Commit.MaxIdentifierAttempts,
		MaxContentionRetries:  cfg.Commit.MaxContentionRetries,
		LockTimeout:           cfg.Commit.LockTimeout,
		UnitTimeout:           cfg.Commit.UnitTimeout,
		QuantityPlaces:        cfg.Pricing.QuantityPrecision,
	}, logg, commitMetrics)
	if err != nil {
		return err
	}

	tills, err := sessions.NewRegistry(calc, cfg.Pricing.QuantityPrecision)
	if err != nil {
		return err
	}
	reportSvc, err := reports.NewService(reports.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}

	scheduler, err := newScheduler(cfg, logg, redisClient, cache, tills, jobMetrics)
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:       dbClient,
			Redis:    redisClient,
			Gatherer: registry,
			Catalog:  cache,
			Sessions: tills,
			Engine:   engine,
			Sales:    salesRepo,
			Reports:  reportSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"stock_policy": string(policy),
	})
	logg.Info(ctx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	cronDone := make(chan error, 1)
	go func() {
		cronDone <- scheduler.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
	case err := <-serveErr:
		stop()
		<-cronDone
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = multierr.Append(err, server.Shutdown(shutdownCtx))
	if cronErr := <-cronDone; cronErr != nil && !errors.Is(cronErr, context.Canceled) {
		err = multierr.Append(err, cronErr)
	}
	return err
}

// newScheduler registers the in-process maintenance jobs. With Redis the
// cycle is guarded by a shared lock so only one api instance runs it.
func newScheduler(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	cache *catalog.Cache,
	tills *sessions.Registry,
	m *metrics.JobMetrics,
) (*cron.Service, error) {
	registry := cron.NewRegistry()

	reconcile, err := cron.NewCatalogReconcileJob(cache, logg)
	if err != nil {
		return nil, err
	}
	lowStock, err := cron.NewLowStockJob(cache, logg)
	if err != nil {
		return nil, err
	}
	expiry, err := cron.NewSessionExpiryJob(tills, cfg.App.SessionIdleTimeout, logg)
	if err != nil {
		return nil, err
	}
	registry.Register(reconcile)
	registry.Register(lowStock)
	registry.Register(expiry)

	var lock cron.Lock
	if redisClient != nil {
		env := cfg.App.Env
		if env == "" {
			env = "local"
		}
		redisLock, err := cron.NewRedisLock(redisClient, fmt.Sprintf(cronLockFormat, env), 0)
		if err != nil {
			return nil, err
		}
		lock = redisLock
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
		Interval: cfg.Cache.ReconcileInterval,
	})
}
