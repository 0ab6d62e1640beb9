package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-org-registry/types"
)

type Loader struct {
	validator *validator.Validate
	lookupEnv func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
		lookupEnv: os.LookupEnv,
	}
}

// LoadFromFile reads the yaml at configPath on top of Defaults. ${VAR} and
// $VAR references are expanded from the environment before parsing; unset
// variables expand to an empty string.
func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, *map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.WrapError(types.ErrConfigNotFound, "file not found: "+configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, *map[string]interface{}, error) {
	expanded := os.Expand(string(data), func(name string) string {
		value, _ := l.lookupEnv(name)
		return value
	})

	config := l.Defaults()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, nil, types.WrapError(types.ErrConfigParseFailed, err.Error())
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.WrapError(types.ErrConfigValidateFailed, err.Error())
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, nil, types.WrapError(types.ErrConfigParseFailed, err.Error())
	}

	return config, &raw, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:               "localhost",
				Port:               8080,
				ReadTimeout:        30,
				WriteTimeout:       30,
				IdleTimeout:        120,
				ShutdownTimeout:    10,
				MaxRequestBodySize: 4 * 1024 * 1024,
			},
		},
		Logger: &types.LoggerConfig{
			Type:  "zap",
			Level: "info",
		},
		Database: &types.DatabaseConfig{
			Driver:       "sqlite3",
			DSN:          "file:registry.db?_foreign_keys=on",
			MaxOpenConns: 1,
		},
		Cache: &types.CacheConfig{
			Type:            "memory",
			MaxSize:         1000,
			DefaultTTL:      300 * time.Second,
			CleanupInterval: 0,
		},
		Invalidation: &types.InvalidationConfig{
			Strategies: true,
		},
		Auth: &types.AuthConfig{
			Store: &types.APIKeyStoreConfig{
				Type: "memory",
			},
			DevKeys: &types.DevKeysConfig{
				Enabled: false,
				EnvVar:  "SAI_ENV",
			},
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "UTC",
			Schedules: map[string]string{
				"cache_cleanup_expired": "@every 60s",
				"cache_cleanup_tags":    "@every 5m",
				"ratelimit_cleanup":     "@every 60s",
				"apikey_flush":          "@every 30s",
			},
		},
		Metrics: &types.MetricsConfig{
			Enabled: true,
			HTTP: types.MetricsHTTPConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Health: &types.HealthConfig{
			Enabled:      true,
			CheckTimeout: 5 * time.Second,
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  10,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  20,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
					"log_body":    false,
				},
			},
			Metadata: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  30,
				Params: map[string]interface{}{
					"generate_request_id": true,
					"propagated_headers":  []string{"X-Request-ID", "X-Real-IP", "X-Trace-ID"},
				},
			},
			CORS: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  40,
				Params: map[string]interface{}{
					"allowed_origins": []string{"*"},
					"allowed_methods": []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
					"allowed_headers": []string{"Content-Type", "X-API-Key", "X-Request-ID"},
					"exposed_headers": []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
					"max_age":         86400,
				},
			},
			Auth: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  50,
				Params: map[string]interface{}{
					"header": "X-API-Key",
				},
			},
			RateLimit: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  60,
				Params: map[string]interface{}{
					"requests_per_minute": 60,
					"bypass_paths":        []string{"/health", "/health/", "/version"},
				},
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  70,
				Params: map[string]interface{}{
					"min_size": 1024,
					"level":    6,
				},
			},
		},
	}
}
