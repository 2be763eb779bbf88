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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/skillsync/toolbridge/internal/broker"
	"github.com/skillsync/toolbridge/internal/cache"
	cachemem "github.com/skillsync/toolbridge/internal/cache/memory"
	cacheredis "github.com/skillsync/toolbridge/internal/cache/redis"
	"github.com/skillsync/toolbridge/internal/config"
	httpx "github.com/skillsync/toolbridge/internal/http"
	"github.com/skillsync/toolbridge/internal/http/controllers/health"
	"github.com/skillsync/toolbridge/internal/http/controllers/integrations"
	"github.com/skillsync/toolbridge/internal/http/router"
	"github.com/skillsync/toolbridge/internal/metrics"
	"github.com/skillsync/toolbridge/internal/oauth"
	"github.com/skillsync/toolbridge/internal/observability/logger"
	"github.com/skillsync/toolbridge/internal/provider"
	"github.com/skillsync/toolbridge/internal/rate"
	"github.com/skillsync/toolbridge/internal/security/secretbox"
	"github.com/skillsync/toolbridge/internal/security/statetoken"
	"github.com/skillsync/toolbridge/internal/store"
	storemem "github.com/skillsync/toolbridge/internal/store/memory"
	storepg "github.com/skillsync/toolbridge/internal/store/pg"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:          "toolbridge",
		Short:        "OAuth integration broker for third-party tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("TOOLBRIDGE_CONFIG", "config.yaml"), "path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}

	var sweepUser, sweepTool string
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete stored connections so users re-authorize (never decrypts)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cfgPath, sweepUser, sweepTool)
		},
	}
	sweepCmd.Flags().StringVar(&sweepUser, "user", "", "only sweep connections of this user")
	sweepCmd.Flags().StringVar(&sweepTool, "tool", "", "only sweep connections of this tool")

	root.AddCommand(serveCmd, sweepCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "toolbridge",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	master, err := cfg.MasterKey()
	if err != nil {
		return err
	}
	box, err := secretbox.New(master)
	if err != nil {
		return err
	}
	codec := statetoken.New(
		statetoken.DeriveKey(master),
		config.Duration(cfg.Broker.StateTTL, statetoken.DefaultTTL),
	)

	registry, err := provider.NewRegistry(config.ProviderEnv(), provider.Builtin())
	if err != nil {
		return err
	}
	log.Info("providers configured",
		logger.Any("available", registry.ListAvailable()),
		logger.Count(len(registry.Tools())))

	// Storage backend.
	var (
		repo store.Repository
		pool *pgxpool.Pool
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err = newPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := storepg.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		repo = storepg.New(pool)
		log.Info("storage ready", logger.String("driver", "postgres"))
	case "memory":
		repo = storemem.New()
		log.Warn("using in-memory storage; connections are lost on restart")
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	// Cache backend, shared by state-nonce consumption and rate limiting.
	var (
		stateCache  cache.Cache
		redisClient *rdb.Client
	)
	switch cfg.Cache.Kind {
	case "redis":
		redisClient = rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		rc := cacheredis.NewFromClient(redisClient, cfg.Cache.Redis.Prefix)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer func() { _ = rc.Close() }()
		stateCache = rc
		log.Info("cache ready", logger.String("kind", "redis"))
	case "memory":
		stateCache = cachemem.New(config.Duration(cfg.Broker.StateTTL, statetoken.DefaultTTL))
	default:
		return fmt.Errorf("unknown cache kind %q", cfg.Cache.Kind)
	}

	b, err := broker.New(broker.Deps{
		Registry:      registry,
		Codec:         codec,
		Box:           box,
		Store:         repo,
		Exchange:      oauth.NewClient(config.Duration(cfg.Broker.ExchangeTimeout, oauth.DefaultTimeout)),
		Cache:         stateCache,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		RefreshSkew:   config.Duration(cfg.Broker.RefreshSkew, broker.DefaultRefreshSkew),
	})
	if err != nil {
		return err
	}

	// Metrics.
	if err := metrics.RegisterBroker(nil); err != nil {
		return err
	}
	metricsHandler, err := httpx.RegisterMetrics(httpx.MetricsConfig{
		Pool: func() *pgxpool.Pool { return pool },
	})
	if err != nil {
		return err
	}

	// Readiness checks for the backends actually in use.
	checks := map[string]health.Check{}
	if pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var initiateLimiter, callbackLimiter rate.Limiter
	if cfg.Rate.Enabled {
		initiateLimiter = newLimiter(redisClient, "rl:init:",
			cfg.Rate.Initiate.Limit, config.Duration(cfg.Rate.Initiate.Window, time.Minute))
		callbackLimiter = newLimiter(redisClient, "rl:cb:",
			cfg.Rate.Callback.Limit, config.Duration(cfg.Rate.Callback.Window, time.Minute))
	}

	handler := router.New(router.Deps{
		Integrations:    integrations.NewController(b),
		Health:          health.NewController(checks),
		Metrics:         metricsHandler,
		InitiateLimiter: initiateLimiter,
		CallbackLimiter: callbackLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", logger.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("shutting down", logger.String("signal", "context canceled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// runSweep deletes stored connections, forcing the next use to re-authorize.
// It never decrypts anything and a failing row never aborts the batch.
func runSweep(ctx context.Context, cfgPath, userID, toolID string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "toolbridge-sweep"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("sweep")

	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("sweep requires postgres storage, configured driver is %q", cfg.Storage.Driver)
	}
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	repo := storepg.New(pool)

	rows, err := repo.ListAll(ctx)
	if err != nil {
		return err
	}

	deleted, skipped := 0, 0
	for _, conn := range rows {
		if userID != "" && conn.UserID != userID {
			continue
		}
		if toolID != "" && conn.ToolID != toolID {
			continue
		}
		if err := repo.Delete(ctx, conn.UserID, conn.ToolID); err != nil {
			log.Warn("failed to delete connection",
				logger.UserID(conn.UserID), logger.ToolID(conn.ToolID), logger.Err(err))
			skipped++
			continue
		}
		deleted++
	}

	log.Info("sweep finished", logger.Int("deleted", deleted), logger.Int("skipped", skipped))
	return nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Storage.DSN == "" {
		return nil, errors.New("storage.dsn (or DATABASE_DSN) is required for postgres")
	}
	pc, err := pgxpool.ParseConfig(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.Storage.Postgres.MaxConns > 0 {
		pc.MaxConns = int32(cfg.Storage.Postgres.MaxConns)
	}
	if d := config.Duration(cfg.Storage.Postgres.ConnMaxLifetime, 0); d > 0 {
		pc.MaxConnLifetime = d
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// newLimiter prefers the redis backend when a client is available so limits
// hold across replicas; otherwise each replica enforces its own budget.
func newLimiter(client *rdb.Client, prefix string, max int, window time.Duration) rate.Limiter {
	if client != nil {
		return rate.NewRedisLimiter(client, prefix, max, window)
	}
	return rate.NewMemoryLimiter(max, window)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
