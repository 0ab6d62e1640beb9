package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-org-registry/types"
)

var customStoreCreators = make(map[string]types.CacheStoreCreator)

func RegisterStore(storeName string, creator types.CacheStoreCreator) {
	customStoreCreators[storeName] = creator
}

// NewStore builds the backend named by cache.type and wraps it with
// operation metrics.
func NewStore(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	cacheConfig := config.GetConfig().Cache
	if cacheConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	var impl types.CacheStore
	var err error

	switch cacheConfig.Type {
	case "memory", "":
		impl = NewMemoryStore(logger, cacheConfig)
	case "redis":
		impl, err = NewRedisStore(ctx, logger, cacheConfig)
	default:
		creator, exists := customStoreCreators[cacheConfig.Type]
		if !exists {
			return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", cacheConfig.Type)
		}
		impl, err = creator(cacheConfig)
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedStore(impl, metrics), nil
}

var operationBuckets = []float64{0.0001, 0.001, 0.01, 0.1, 1.0}

type instrumentedStore struct {
	impl    types.CacheStore
	metrics types.MetricsManager
}

func newInstrumentedStore(impl types.CacheStore, metrics types.MetricsManager) *instrumentedStore {
	return &instrumentedStore{impl: impl, metrics: metrics}
}

func (s *instrumentedStore) Start() error    { return s.impl.Start() }
func (s *instrumentedStore) Stop() error     { return s.impl.Stop() }
func (s *instrumentedStore) IsRunning() bool { return s.impl.IsRunning() }

func (s *instrumentedStore) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, ok := s.impl.Get(key)

	result := "miss"
	if ok {
		result = "hit"
	}
	s.record("get", result, start)
	return value, ok
}

func (s *instrumentedStore) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := s.impl.Set(key, value, ttl)
	s.record("set", resultOf(err == nil), start)
	return err
}

func (s *instrumentedStore) Delete(key string) bool {
	start := time.Now()
	removed := s.impl.Delete(key)

	result := "miss"
	if removed {
		result = "hit"
	}
	s.record("delete", result, start)
	return removed
}

func (s *instrumentedStore) Clear() {
	start := time.Now()
	s.impl.Clear()
	s.record("clear", "success", start)
}

func (s *instrumentedStore) CleanupExpired() int {
	start := time.Now()
	removed := s.impl.CleanupExpired()
	s.record("cleanup", "success", start)
	s.metrics.Counter("cache_expired_entries_total", nil).Add(float64(removed))
	return removed
}

func (s *instrumentedStore) Stats() types.CacheStats {
	stats := s.impl.Stats()
	s.metrics.Gauge("cache_entries", map[string]string{"backend": stats.Backend}).Set(float64(stats.Entries))
	return stats
}

// Unwrap exposes the backend, e.g. for health checks that need Ping.
func (s *instrumentedStore) Unwrap() types.CacheStore {
	return s.impl
}

func (s *instrumentedStore) record(operation, result string, start time.Time) {
	s.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()
	s.metrics.Histogram("cache_operation_duration_seconds", operationBuckets, map[string]string{
		"operation": operation,
	}).ObserveDuration(start)
}

func resultOf(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
