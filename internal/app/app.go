// Package app wires every collaborator the gateway needs and runs the HTTP
// server until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/setupranali/gateway/internal/config"
	"github.com/setupranali/gateway/internal/engine"
	"github.com/setupranali/gateway/internal/httpapi"
	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/internal/platform"
	"github.com/setupranali/gateway/internal/telemetry"
	"github.com/setupranali/gateway/pkg/analytics"
	"github.com/setupranali/gateway/pkg/auditlog"
	"github.com/setupranali/gateway/pkg/auth"
	"github.com/setupranali/gateway/pkg/cache"
	"github.com/setupranali/gateway/pkg/catalog"
	"github.com/setupranali/gateway/pkg/executor"
	"github.com/setupranali/gateway/pkg/guard"
	"github.com/setupranali/gateway/pkg/ratelimit"
	"github.com/setupranali/gateway/pkg/source"
	"github.com/setupranali/gateway/pkg/vault"
)

// Run reads configuration, connects every dependency, and serves until ctx
// is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting setupranali gateway", "listen", cfg.ListenAddr())

	metricsReg := telemetry.NewMetricsRegistry()
	metricsReg.MustRegister(httpserver.MetricsCollectors()...)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to control-plane database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running control-plane migrations: %w", err)
	}
	logger.Info("control-plane migrations applied")

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	encryptionKey, err := vault.KeyFromHex(cfg.EncryptionKeyHex)
	if err != nil {
		return fmt.Errorf("loading encryption key: %w", err)
	}
	v, err := vault.New(encryptionKey)
	if err != nil {
		return fmt.Errorf("constructing credential vault: %w", err)
	}

	catalogSnapshot, err := catalog.LoadFile(cfg.CatalogPath, 1)
	if err != nil {
		return fmt.Errorf("loading catalog %s: %w", cfg.CatalogPath, err)
	}
	catalogRegistry := catalog.NewRegistry(catalogSnapshot)
	logger.Info("catalog loaded", "datasets", len(catalogSnapshot.Datasets), "generation", catalogSnapshot.Generation)

	sourceStore := source.NewPgStore(db, v)
	sourceRegistry := source.NewRegistry()
	sourceConfigs, err := sourceStore.List(ctx)
	if err != nil {
		return fmt.Errorf("listing persisted sources: %w", err)
	}
	for _, sc := range sourceConfigs {
		entry, err := sourceStore.Open(ctx, sc)
		if err != nil {
			logger.Error("opening configured source, skipping", "source_id", sc.ID, "error", err)
			continue
		}
		sourceRegistry.Add(entry)
		logger.Info("source opened", "source_id", sc.ID, "kind", sc.Kind)
	}
	defer sourceRegistry.Close()

	authStore := auth.NewPgStore(db)
	authResolver := auth.NewResolver(authStore)
	if err := authResolver.Refresh(ctx); err != nil {
		return fmt.Errorf("loading api keys: %w", err)
	}
	authHandler := auth.NewHandler(logger, authStore, authResolver)

	// Per-class defaults come from DefaultLimits() baked into LocalLimiter and
	// RedisLimiter; cfg.RateLimit{Query,OData,Sources}PerMin are not passed to
	// either. A key's budget is overridden per request by the integer in its
	// Identity.RateClass (httpapi's rateLimitKey).
	localLimiter := ratelimit.NewLocalLimiter()
	redisLimiter := ratelimit.NewRedisLimiter(rdb)
	limiter := ratelimit.NewTieredLimiter(redisLimiter, localLimiter, logger)

	resultCache := cache.New[executor.QueryResult](cfg.CacheMaxBytes, cfg.CacheMaxEntryBytes)

	guardTimeout, err := time.ParseDuration(cfg.GuardQueryTimeout)
	if err != nil {
		return fmt.Errorf("parsing GUARD_QUERY_TIMEOUT: %w", err)
	}

	limits := guard.Limits{
		MaxDimensions:  cfg.GuardMaxDimensions,
		MaxMetrics:     cfg.GuardMaxMetrics,
		MaxFilters:     cfg.GuardMaxFilters,
		MaxFilterDepth: cfg.GuardMaxFilterDepth,
		MaxRows:        cfg.GuardMaxRows,
		QueryTimeout:   guardTimeout,
	}

	eng := engine.New(catalogRegistry, sourceRegistry, resultCache, limits,
		time.Duration(cfg.CacheTTLSeconds)*time.Second, guardTimeout)

	recorder, err := analytics.Open(cfg.AnalyticsStorePath, logger)
	if err != nil {
		return fmt.Errorf("opening analytics store: %w", err)
	}
	recorder.Start(ctx)
	defer recorder.Close()

	auditPath := cfg.AnalyticsStorePath + ".audit"
	auditWriter, err := auditlog.Open(auditPath, logger)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	apiHandler := httpapi.New(httpapi.Deps{
		Logger:      logger,
		Engine:      eng,
		Catalog:     catalogRegistry,
		CatalogPath: cfg.CatalogPath,
		Sources:     sourceRegistry,
		SourceStore: sourceStore,
		Recorder:    recorder,
		Audit:       auditWriter,
		Limiter:     limiter,
	})

	readyChecks := map[string]httpserver.Checker{
		"database": func(ctx context.Context) error { return db.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	srv := httpserver.NewServer(logger, metricsReg, cfg.CORSAllowedOrigins, readyChecks)

	// apiHandler.Routes() already carries absolute paths (/v1/..., /v1/sources,
	// /admin) and applies its own per-route-class rate limiting internally, so
	// it mounts exactly once, wrapped only with authentication. Admin key
	// management lives on its own sub-tree since it is served by pkg/auth's
	// own handler, not httpapi's.
	srv.Router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authResolver, logger))
		r.Mount("/", apiHandler.Routes())
	})
	srv.Router.Route("/admin/keys", func(r chi.Router) {
		r.Use(auth.Middleware(authResolver, logger))
		r.Use(auth.RequireRole(logger, auth.RoleAdmin))
		r.Mount("/", authHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses may run far longer than a fixed write timeout allows
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
