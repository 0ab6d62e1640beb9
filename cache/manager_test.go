package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/config"
	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/metrics"
	"github.com/saiset-co/sai-org-registry/types"
)

func TestNewStoreInstrumentsOperations(t *testing.T) {
	nop := logger.NewNop()
	promMetrics, err := metrics.NewPrometheusMetrics(nop, &types.MetricsConfig{
		Enabled: true,
		Config:  map[string]interface{}{"enable_go_metrics": false},
	})
	require.NoError(t, err)

	cfg := config.NewLoader().Defaults()
	store, err := NewStore(context.Background(), config.NewStatic(cfg), nop, promMetrics)
	require.NoError(t, err)

	require.NoError(t, store.Set("k", "v", time.Minute))
	store.Get("k")
	store.Get("missing")

	labels := func(op, result string) map[string]string {
		return map[string]string{"operation": op, "result": result}
	}
	assert.Equal(t, 1.0, promMetrics.Counter("cache_operations_total", labels("set", "success")).Get())
	assert.Equal(t, 1.0, promMetrics.Counter("cache_operations_total", labels("get", "hit")).Get())
	assert.Equal(t, 1.0, promMetrics.Counter("cache_operations_total", labels("get", "miss")).Get())

	_, isMemory := store.(*instrumentedStore).Unwrap().(*MemoryStore)
	assert.True(t, isMemory)
}

func TestNewStoreUnknownType(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Cache.Type = "memcached"

	_, err := NewStore(context.Background(), config.NewStatic(cfg), logger.NewNop(), metrics.NewNop(logger.NewNop()))
	assert.ErrorIs(t, err, types.ErrCacheTypeUnknown)
}

func TestRedisEnvelopeRoundTrip(t *testing.T) {
	data, err := encodeEnvelope(map[string]interface{}{"name": "ada"}, time.Minute, time.Unix(100, 0))
	require.NoError(t, err)

	entry, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.CreatedAt)
	assert.Equal(t, int64(60), entry.TTL)
	assert.Equal(t, map[string]interface{}{"name": "ada"}, entry.Value)

	_, err = encodeEnvelope(make(chan int), time.Minute, time.Now())
	assert.ErrorIs(t, err, types.ErrCacheValueEncoding)
}

func TestNewStoreCustomType(t *testing.T) {
	nop := logger.NewNop()
	RegisterStore("scratch", func(config *types.CacheConfig) (types.CacheStore, error) {
		return NewMemoryStore(nop, config), nil
	})
	t.Cleanup(func() { delete(customStoreCreators, "scratch") })

	cfg := config.NewLoader().Defaults()
	cfg.Cache.Type = "scratch"

	store, err := NewStore(context.Background(), config.NewStatic(cfg), nop, metrics.NewNop(nop))
	require.NoError(t, err)

	_, isMemory := store.(*instrumentedStore).Unwrap().(*MemoryStore)
	assert.True(t, isMemory)
}
