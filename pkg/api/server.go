package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/config"
	"github.com/docuvault/docuvault/pkg/httputil"
	"github.com/docuvault/docuvault/pkg/middleware"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/orgs"
	"github.com/docuvault/docuvault/pkg/rbac"
)

// Dependencies carries everything the server needs. All fields are
// required unless noted.
type Dependencies struct {
	Config   *config.Config
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	DB    *sql.DB
	Redis *redis.Client // optional, disables rate limiting when nil

	AuthProvider auth.Provider
	OrgService   *orgs.Service
	Contexts     *orgs.ContextStore
	Bootstrapper *orgs.Bootstrapper // optional
	Gate         *rbac.Gate
	RBACStore    *rbac.Store
}

// Server is the HTTP API server plus its health/metrics sidecar
// listener.
type Server struct {
	config *config.Config
	logger *observability.Logger

	router  *mux.Router
	handler http.Handler
	health  *http.ServeMux
}

// NewServer builds the router and middleware chain.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		config: deps.Config,
		logger: deps.Logger,
		router: mux.NewRouter(),
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.NewAuthMiddleware(deps.AuthProvider, false).Handler)
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis, middleware.DefaultRateLimitConfig(), "")
		api.Use(middleware.RateLimitMiddleware(limiter))
	}

	orgHandlers := NewOrgHandlers(deps.OrgService, deps.Contexts, deps.Bootstrapper, deps.Gate, deps.Logger)
	orgHandlers.RegisterRoutes(api)
	rbac.NewHandlers(deps.RBACStore, deps.Logger).RegisterRoutes(api)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.CORSMiddleware(deps.Config.Server.AllowedOrigins),
		httputil.MaxBytesMiddleware(deps.Config.Server.MaxBodyBytes),
	)
	s.handler = chain(s.router)
	if deps.Metrics != nil {
		s.handler = observability.HTTPMetricsMiddleware(deps.Metrics)(s.handler)
	}
	if deps.Config.Observability.OTelEnabled {
		s.handler = otelhttp.NewHandler(s.handler, "docuvault")
	}

	s.health = http.NewServeMux()
	checker := observability.NewHealthChecker(deps.DB, deps.Redis, deps.Config.Observability.OTelServiceVersion)
	observability.RegisterHealthRoutes(s.health, checker)
	if deps.Registry != nil && deps.Config.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(s.health, deps.Registry)
	}

	return s
}

// ServeHTTP serves the API handler, for tests and embedding.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registration.
func (s *Server) Router() *mux.Router {
	return s.router
}

// HealthHandler exposes the health/metrics mux, for tests and
// embedding.
func (s *Server) HealthHandler() http.Handler {
	return s.health
}

// Run serves both listeners until ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	apiServer := &http.Server{
		Addr:         s.config.Server.Host + ":" + s.config.Server.Port,
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    s.config.Server.Host + ":" + s.config.Server.HealthPort,
		Handler: s.health,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		s.logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down http servers")
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("api server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
