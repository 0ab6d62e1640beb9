package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/cache"
	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/cron"
	"github.com/saiset-co/sai-org-registry/handlers"
	"github.com/saiset-co/sai-org-registry/health"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/metrics"
	"github.com/saiset-co/sai-org-registry/middleware"
	"github.com/saiset-co/sai-org-registry/ratelimit"
	"github.com/saiset-co/sai-org-registry/registry"
	"github.com/saiset-co/sai-org-registry/sai"
	"github.com/saiset-co/sai-org-registry/server"
	"github.com/saiset-co/sai-org-registry/types"
)

var defaultSchedules = map[string]string{
	"cache_cleanup_expired": "@every 60s",
	"cache_cleanup_tags":    "@every 5m",
	"ratelimit_cleanup":     "@every 60s",
	"apikey_flush":          "@every 30s",
}

func registerProviders(ctx context.Context, container *sai.Container, configPath string) error {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	metricsManager, err := metrics.NewManager(ctx, configManager, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register metrics manager")
	}
	container.SetMetrics(metricsManager)

	store, err := cache.NewStore(ctx, configManager, loggerManager, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to register cache store")
	}
	container.SetCache(store)

	invalidator := cache.NewTagInvalidator(store, loggerManager)
	container.Invalidator.Store(invalidator)

	var strategies *cache.InvalidationStrategies
	if _config.Invalidation == nil || _config.Invalidation.Strategies {
		strategies = cache.NewInvalidationStrategies(invalidator)
	} else {
		loggerManager.Warn("Invalidation strategies disabled, cached reads expire by TTL only")
	}

	memo := cache.NewMemoizer(store, invalidator, loggerManager, metricsManager)
	container.Memoizer.Store(memo)

	database, err := registry.OpenSQLite(ctx, loggerManager, _config.Database)
	if err != nil {
		return types.WrapError(err, "failed to open database")
	}
	container.Database.Store(database)

	registryService := registry.NewService(database, memo, strategies, loggerManager)
	container.Registry.Store(registryService)

	keys, err := openKeys(ctx, loggerManager, _config.Auth)
	if err != nil {
		return err
	}
	container.Keys.Store(keys)

	limiter := ratelimit.NewSlidingWindow()
	container.Limiter.Store(limiter)

	router := server.NewFastHTTPRouter()
	container.SetRouter(router)

	var middlewareManager types.MiddlewareManager
	if _config.Middlewares != nil && _config.Middlewares.Enabled {
		manager := middleware.NewManager(configManager, loggerManager, metricsManager, keys, limiter)
		if err := manager.RegisterMiddlewares(); err != nil {
			return types.WrapError(err, "failed to register middlewares")
		}
		middlewareManager = manager
		container.SetMiddlewares(manager)
	}

	healthManager := health.NewManager(ctx, configManager, loggerManager)
	registerHealthCheckers(healthManager, store, database, keys)
	if _config.Health != nil && _config.Health.Enabled {
		healthManager.RegisterRoutes(router)
	}
	container.SetHealth(healthManager)

	metricsManager.RegisterRoutes(router)
	handlers.New(loggerManager, registryService, keys, memo, invalidator).RegisterRoutes(router)

	httpServer := server.NewHTTPServer(configManager, loggerManager, middlewareManager, router)
	if err := httpServer.VerifyRoutes(); err != nil {
		return err
	}
	container.SetHTTPServer(httpServer)

	if _config.Cron != nil && _config.Cron.Enabled {
		cronManager := cron.NewManager(ctx, configManager, loggerManager, metricsManager)
		if err := registerJobs(ctx, loggerManager, cronManager, _config.Cron.Schedules, store, invalidator, limiter, keys); err != nil {
			return types.WrapError(err, "failed to register cron jobs")
		}
		container.SetCron(cronManager)
	}

	return nil
}

// openKeys loads persisted keys and seeds the development keys when allowed.
func openKeys(ctx context.Context, log types.Logger, cfg *types.AuthConfig) (*apikey.Manager, error) {
	repo, err := apikey.OpenRepository(log, cfg.Store)
	if err != nil {
		return nil, types.WrapError(err, "failed to open api key store")
	}

	keys := apikey.NewManager(log, cfg, repo)
	if err := keys.Load(ctx); err != nil {
		_ = repo.Close()
		return nil, types.WrapError(err, "failed to load api keys")
	}

	if _, err := keys.Bootstrap(ctx, cfg.DevKeys); err != nil {
		_ = repo.Close()
		return nil, types.WrapError(err, "failed to seed development keys")
	}

	return keys, nil
}

func registerJobs(
	ctx context.Context,
	log types.Logger,
	manager types.CronManager,
	schedules map[string]string,
	store types.CacheStore,
	invalidator *cache.TagInvalidator,
	limiter *ratelimit.SlidingWindow,
	keys *apikey.Manager,
) error {
	jobs := map[string]func(){
		"cache_cleanup_expired": func() {
			if removed := store.CleanupExpired(); removed > 0 {
				log.Debug("Expired cache entries removed", zap.Int("count", removed))
			}
		},
		"cache_cleanup_tags": func() {
			if removed := invalidator.CleanupEmptyTags(); removed > 0 {
				log.Debug("Empty cache tags removed", zap.Int("count", removed))
			}
		},
		"ratelimit_cleanup": func() {
			limiter.Cleanup(time.Now())
		},
		"apikey_flush": func() {
			flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if _, err := keys.Flush(flushCtx); err != nil {
				log.Warn("Failed to persist api key usage", zap.Error(err))
			}
		},
	}

	for name, job := range jobs {
		spec := schedules[name]
		if spec == "" {
			spec = defaultSchedules[name]
		}
		if err := manager.Add(name, spec, job); err != nil {
			return types.WrapError(err, name)
		}
	}

	return nil
}

func registerHealthCheckers(manager types.HealthManager, store types.CacheStore, database *registry.SQLiteRepository, keys *apikey.Manager) {
	manager.RegisterChecker("cache", func(ctx context.Context) types.HealthCheck {
		stats := store.Stats()
		status := types.StatusHealthy
		if !store.IsRunning() {
			status = types.StatusUnhealthy
		}
		return types.HealthCheck{
			Name:   "cache",
			Status: status,
			Details: map[string]interface{}{
				"backend":          stats.Backend,
				"entries":          stats.Entries,
				"hit_rate_percent": stats.HitRatePercent,
			},
		}
	})

	manager.RegisterChecker("database", func(ctx context.Context) types.HealthCheck {
		if err := database.Ping(ctx); err != nil {
			return types.HealthCheck{Name: "database", Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{Name: "database", Status: types.StatusHealthy}
	})

	manager.RegisterChecker("apikeys", func(ctx context.Context) types.HealthCheck {
		return types.HealthCheck{
			Name:    "apikeys",
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"count": keys.Count()},
		}
	})
}

// closeStorage releases what registerProviders opened before failing.
func closeStorage(container *sai.Container) {
	if keys := container.Keys.Load(); keys != nil {
		_ = keys.Stop(context.Background())
	}
	if db := container.Database.Load(); db != nil {
		_ = db.Close()
	}
}
