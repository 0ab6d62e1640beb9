package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

type RedisConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	OperationTimeout   time.Duration `json:"operation_timeout"`
	KeyPrefix          string        `json:"key_prefix"`
}

// redisEnvelope is the stored form of a value. Values come back as generic
// JSON (maps, slices, float64); callers needing a concrete type re-decode.
type redisEnvelope struct {
	Value     interface{} `json:"value"`
	CreatedAt int64       `json:"created_at"`
	TTL       int64       `json:"ttl_seconds"`
}

// RedisStore implements types.CacheStore on Redis. Expiry is delegated to
// SET ... EX, so CleanupExpired has nothing to do.
type RedisStore struct {
	ctx        context.Context
	logger     types.Logger
	config     *RedisConfig
	client     *redis.Client
	defaultTTL time.Duration
	hits       uint64
	misses     uint64
	createdAt  time.Time
	started    int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.CacheConfig) (*RedisStore, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		OperationTimeout:   2 * time.Second,
		KeyPrefix:          "sai-org-registry",
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	defaultTTL := DefaultTTL
	if config.DefaultTTL > 0 {
		defaultTTL = config.DefaultTTL
	}

	store := &RedisStore{
		ctx:        ctx,
		logger:     logger,
		config:     redisConfig,
		defaultTTL: defaultTTL,
		createdAt:  time.Now(),
		client: redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
			Password:     redisConfig.Password,
			DB:           redisConfig.DB,
			PoolSize:     redisConfig.PoolSize,
			MinIdleConns: redisConfig.MinIdleConnections,
			DialTimeout:  redisConfig.DialTimeout,
			ReadTimeout:  redisConfig.ReadTimeout,
			WriteTimeout: redisConfig.WriteTimeout,
		}),
	}

	if err := store.ping(); err != nil {
		_ = store.client.Close()
		return nil, types.WrapError(types.ErrCacheConnectionFailed, err.Error())
	}

	return store, nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	r.logger.Info("Redis cache started",
		zap.String("addr", r.client.Options().Addr),
		zap.String("key_prefix", r.config.KeyPrefix))
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}
	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}
	r.logger.Info("Redis cache stopped")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	ctx, cancel := r.opContext()
	defer cancel()

	raw, err := r.client.Get(ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Warn("Redis get failed", zap.String("key", key), zap.Error(err))
		}
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	entry, err := decodeEnvelope(raw)
	if err != nil {
		r.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, r.buildFullKey(key))
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&r.hits, 1)
	return entry.Value, true
}

func (r *RedisStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	data, err := encodeEnvelope(value, ttl, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.Set(ctx, r.buildFullKey(key), data, ttl).Err(); err != nil {
		return types.WrapError(types.ErrCacheOperationFailed, err.Error())
	}
	return nil
}

func (r *RedisStore) Delete(key string) bool {
	ctx, cancel := r.opContext()
	defer cancel()

	n, err := r.client.Del(ctx, r.buildFullKey(key)).Result()
	if err != nil {
		r.logger.Warn("Redis delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Clear removes every key under the configured prefix.
func (r *RedisStore) Clear() {
	ctx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancel()

	removed := 0
	iter := r.client.Scan(ctx, 0, r.config.KeyPrefix+":*", 500).Iterator()
	batch := make([]string, 0, 500)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			r.logger.Warn("Redis clear batch failed", zap.Error(err))
		} else {
			removed += len(batch)
		}
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		r.logger.Warn("Redis clear scan failed", zap.Error(err))
	}
	r.logger.Info("Redis cache cleared", zap.Int("keys", removed))
}

func (r *RedisStore) CleanupExpired() int {
	return 0
}

func (r *RedisStore) Stats() types.CacheStats {
	hits := atomic.LoadUint64(&r.hits)
	misses := atomic.LoadUint64(&r.misses)

	ctx, cancel := r.opContext()
	defer cancel()

	entries := 0
	iter := r.client.Scan(ctx, 0, r.config.KeyPrefix+":*", 1000).Iterator()
	for iter.Next(ctx) {
		entries++
	}

	return types.CacheStats{
		Backend:        "redis",
		Entries:        entries,
		Hits:           hits,
		Misses:         misses,
		HitRatePercent: hitRate(hits, misses),
		UptimeSeconds:  round2(time.Since(r.createdAt).Seconds()),
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, r.config.OperationTimeout)
}

func (r *RedisStore) buildFullKey(key string) string {
	return r.config.KeyPrefix + ":" + key
}

func encodeEnvelope(value interface{}, ttl time.Duration, now time.Time) ([]byte, error) {
	data, err := utils.Marshal(redisEnvelope{
		Value:     value,
		CreatedAt: now.Unix(),
		TTL:       int64(ttl / time.Second),
	})
	if err != nil {
		return nil, types.WrapError(types.ErrCacheValueEncoding, err.Error())
	}
	return data, nil
}

func decodeEnvelope(raw []byte) (redisEnvelope, error) {
	var entry redisEnvelope
	err := utils.Unmarshal(raw, &entry)
	return entry, err
}
