package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/orbitalworks/constel/pkg/access"
	"github.com/orbitalworks/constel/pkg/async"
	"github.com/orbitalworks/constel/pkg/config"
	"github.com/orbitalworks/constel/pkg/database"
	"github.com/orbitalworks/constel/pkg/observability"
	"github.com/orbitalworks/constel/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting constel access engine")

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	connections, err := database.NewConnectionManager(database.ConnectionConfig{
		PrimaryURL:  cfg.Database.PrimaryURL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	migrations := append(access.Migrations(), queue.Migrations()...)
	if err := database.Migrate(ctx, connections.Primary(), migrations); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	store := access.NewStore(connections.Primary()).WithReadReplicas(connections.Replica)
	if err := seedProfiles(ctx, store, cfg, logger); err != nil {
		logger.WithError(err).Error("failed to seed profiles")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	var redisClient *redis.Client
	var resolutionCache *access.ResolutionCache
	if cfg.Cache.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.URL,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		resolutionCache = access.NewResolutionCache(redisClient, cfg.Cache.TTL)
		store.WithResolutionCache(resolutionCache)
		// Profiles may have been seeded or edited while the daemon was
		// down; start from an empty cache.
		async.SafeGo(ctx, 30*time.Second, "resolution-cache-flush", func(ctx context.Context) error {
			resolutionCache.Flush(ctx)
			return nil
		})
		logger.Info("resolution cache enabled")
	}

	queueStore := queue.NewStore(connections.Primary())

	resolver := access.NewResolver(store.Repositories(), logger)
	reconciler := access.NewReconciler(store.Users, store.Groups, logger).
		WithQueue(queueStore).
		WithConcurrency(cfg.Engine.RevokeConcurrency)
	if resolutionCache != nil {
		resolver = resolver.WithCache(resolutionCache)
		reconciler = reconciler.WithCache(resolutionCache)
	}
	if metrics != nil {
		resolver = resolver.WithMetrics(metrics)
		reconciler = reconciler.WithMetrics(metrics)
	}
	sweeper := queue.NewSweeper(queueStore, reconciler, queue.NewRetryPolicy(queue.RetryConfig{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		InitialDelay:      cfg.Queue.InitialDelay,
		MaxDelay:          cfg.Queue.MaxDelay,
		BackoffMultiplier: cfg.Queue.BackoffMultiplier,
	}))
	if metrics != nil {
		sweeper = sweeper.WithMetrics(metrics)
	}
	if err := sweeper.Start(cfg.Queue.SweepSchedule); err != nil {
		logger.WithError(err).Error("failed to start revocation sweeper")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(connections.Primary(), redisClient))
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.HandleFunc("/debug/resolve", debugResolveHandler(resolver))

	server := &http.Server{
		Addr:         ":" + cfg.HealthPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("health/metrics listener on :%s", cfg.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health listener failed")
		}
	}()

	if metrics != nil {
		go reportDBStats(connections, metrics)
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return connections.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// debugResolveHandler lets operators inspect a user's effective
// permissions from the health listener. Pass project= for project scope.
func debugResolveHandler(resolver *access.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "user query parameter is required", http.StatusBadRequest)
			return
		}

		var (
			set access.PermissionSet
			err error
		)
		if projectID := r.URL.Query().Get("project"); projectID != "" {
			set, err = resolver.ResolveProject(r.Context(), userID, projectID)
		} else {
			module := access.Module(r.URL.Query().Get("module"))
			if module == "" {
				module = access.ModuleConstellation
			}
			set, err = resolver.Resolve(r.Context(), userID, module)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user_id":     userID,
			"permissions": set.Values(),
		})
	}
}

func seedProfiles(ctx context.Context, store *access.Store, cfg *config.Config, logger *observability.Logger) error {
	seeds := access.DefaultSeeds()
	if cfg.Engine.SeedFile != "" {
		loaded, err := access.LoadSeeds(cfg.Engine.SeedFile)
		if err != nil {
			return err
		}
		seeds = loaded
		logger.Infof("loaded profile seeds from %s", cfg.Engine.SeedFile)
	}
	return store.EnsureSeedProfiles(ctx, seeds)
}

func reportDBStats(connections *database.ConnectionManager, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		connections.ReportStats(metrics)
	}
}
