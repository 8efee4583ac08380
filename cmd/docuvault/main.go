package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/docuvault/docuvault/pkg/api"
	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/config"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/orgs"
	"github.com/docuvault/docuvault/pkg/rbac"
	"github.com/docuvault/docuvault/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "docuvault: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", cfg.Observability.OTelServiceVersion).Info("starting docuvault")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()
	postgres.StartPoolStatsRoutine(ctx, db, metrics, logger, 15*time.Second)

	catalogData, err := rbac.LoadCatalog(cfg.RBAC.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load permission catalog: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		if err := rbac.RunMigrations(ctx, db, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if err := rbac.SeedCatalog(ctx, db, catalogData); err != nil {
			return fmt.Errorf("failed to seed permission catalog: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = postgres.NewRedisClient(cfg.Redis)
		if err != nil {
			// The decision cache and rate limiter degrade without
			// Redis; the permission oracle does not need it.
			logger.WithError(err).Warn("redis unavailable, running without decision cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	provider, err := newAuthProvider(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize auth provider: %w", err)
	}

	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			observability.ShutdownOTel(shutdownCtx, otelProviders, logger)
		}()
	}

	rbacStore := rbac.NewStore(db)
	cache := rbac.NewDecisionCache(redisClient, cfg.RBAC.CacheTTL, metrics)
	evaluator := rbac.NewEvaluator(rbacStore, cache, metrics, logger)
	catalog, err := rbac.NewCatalog(rbacStore, catalogData, cfg.RBAC.CatalogCacheSize)
	if err != nil {
		return fmt.Errorf("failed to build permission catalog: %w", err)
	}

	contexts := orgs.NewContextStore(db)
	gate := rbac.NewGate(evaluator, rbacStore, catalog, contexts, logger)
	orgService := orgs.NewService(db, rbacStore, cache, metrics, logger)

	var bootstrapper *orgs.Bootstrapper
	if cfg.RBAC.BootstrapEnabled {
		bootstrapper = orgs.NewBootstrapper(orgService, contexts, metrics, logger)
	}

	if cfg.RBAC.ReconcileSchedule != "" {
		reconciler := orgs.NewReconciler(db, metrics, logger)
		if err := reconciler.Start(cfg.RBAC.ReconcileSchedule); err != nil {
			return fmt.Errorf("failed to start reconcile sweep: %w", err)
		}
		defer reconciler.Stop()
	}

	server := api.NewServer(api.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Registry:     registry,
		DB:           db,
		Redis:        redisClient,
		AuthProvider: provider,
		OrgService:   orgService,
		Contexts:     contexts,
		Bootstrapper: bootstrapper,
		Gate:         gate,
		RBACStore:    rbacStore,
	})

	if err := server.Run(ctx); err != nil {
		return err
	}
	logger.Info("docuvault stopped")
	return nil
}

func newAuthProvider(ctx context.Context, cfg config.AuthConfig) (auth.Provider, error) {
	switch cfg.Provider {
	case "oidc":
		return auth.NewOIDCProvider(ctx, cfg.IssuerURL, cfg.ClientID)
	case "static":
		return auth.NewStaticProvider(cfg.StaticTokens)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}
