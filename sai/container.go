package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-org-registry/apikey"
	"github.com/saiset-co/sai-org-registry/cache"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/ratelimit"
	"github.com/saiset-co/sai-org-registry/registry"
	"github.com/saiset-co/sai-org-registry/types"
)

// Container holds the wired components of a running service.
type Container struct {
	Config      atomic.Pointer[types.ConfigManager]
	Logger      atomic.Pointer[types.LoggerManager]
	Router      atomic.Pointer[types.HTTPRouter]
	Cache       atomic.Pointer[types.CacheStore]
	HTTPServer  atomic.Pointer[types.HTTPServer]
	Cron        atomic.Pointer[types.CronManager]
	Metrics     atomic.Pointer[types.MetricsManager]
	Middlewares atomic.Pointer[types.MiddlewareManager]
	Health      atomic.Pointer[types.HealthManager]

	Invalidator atomic.Pointer[cache.TagInvalidator]
	Memoizer    atomic.Pointer[cache.Memoizer]
	Keys        atomic.Pointer[apikey.Manager]
	Limiter     atomic.Pointer[ratelimit.SlidingWindow]
	Database    atomic.Pointer[registry.SQLiteRepository]
	Registry    atomic.Pointer[registry.Service]
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer = container
}

// Logger falls back to a no-op logger until the logger manager is wired.
func Logger() types.Logger {
	if globalContainer != nil {
		if ptr := globalContainer.Logger.Load(); ptr != nil {
			return *ptr
		}
	}
	return logger.NewNop()
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetRouter(router types.HTTPRouter) {
	fc.Router.Store(&router)
}

func (fc *Container) SetCache(store types.CacheStore) {
	fc.Cache.Store(&store)
}

func (fc *Container) SetHTTPServer(server types.HTTPServer) {
	fc.HTTPServer.Store(&server)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetMiddlewares(middlewares types.MiddlewareManager) {
	fc.Middlewares.Store(&middlewares)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}
