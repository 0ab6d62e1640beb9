package types

import (
	"time"
)

type ConfigManager interface {
	LifecycleManager
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name         string              `yaml:"name" json:"name" validate:"required"`
	Version      string              `yaml:"version" json:"version" validate:"required"`
	Server       *ServerConfig       `yaml:"server" json:"server" validate:"required"`
	Logger       *LoggerConfig       `yaml:"logger" json:"logger"`
	Database     *DatabaseConfig     `yaml:"database" json:"database" validate:"required"`
	Cache        *CacheConfig        `yaml:"cache" json:"cache" validate:"required"`
	Invalidation *InvalidationConfig `yaml:"invalidation" json:"invalidation"`
	Auth         *AuthConfig         `yaml:"auth" json:"auth" validate:"required"`
	Cron         *CronConfig         `yaml:"cron" json:"cron"`
	Middlewares  *MiddlewaresConfig  `yaml:"middlewares" json:"middlewares"`
	Metrics      *MetricsConfig      `yaml:"metrics" json:"metrics"`
	Health       *HealthConfig       `yaml:"health" json:"health"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http" validate:"required"`
}

type HTTPConfig struct {
	Host               string `yaml:"host" json:"host"`
	Port               int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout        int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout        int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout    int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxRequestBodySize int    `yaml:"max_request_body_size" json:"max_request_body_size" validate:"min=0"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" json:"driver" validate:"required,oneof=sqlite3"`
	DSN          string `yaml:"dsn" json:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" validate:"min=0"`
}

type CacheConfig struct {
	Type            string        `yaml:"type" json:"type" validate:"required"`
	MaxSize         int           `yaml:"max_size" json:"max_size" validate:"min=1"`
	DefaultTTL      time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" validate:"min=0"`
	Config          interface{}   `yaml:"config" json:"config"`
}

type InvalidationConfig struct {
	Strategies bool `yaml:"strategies" json:"strategies"`
}

type AuthConfig struct {
	HashSecret     string             `yaml:"hash_secret" json:"hash_secret"`
	Store          *APIKeyStoreConfig `yaml:"store" json:"store" validate:"required"`
	DevKeys        *DevKeysConfig     `yaml:"dev_keys" json:"dev_keys"`
	TrustedProxies []string           `yaml:"trusted_proxies" json:"trusted_proxies" validate:"dive,required"`
}

type APIKeyStoreConfig struct {
	Type string `yaml:"type" json:"type" validate:"required,oneof=memory clover"`
	Path string `yaml:"path" json:"path" validate:"required_if=Type clover"`
}

type DevKeysConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	EnvVar  string `yaml:"env_var" json:"env_var"`
}

type CronConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Timezone  string            `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	Schedules map[string]string `yaml:"schedules" json:"schedules"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Metadata    *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	CORS        *MiddlewareItemConfig `yaml:"cors" json:"cors"`
	Auth        *MiddlewareItemConfig `yaml:"auth" json:"auth"`
	RateLimit   *MiddlewareItemConfig `yaml:"rate_limit" json:"rate_limit"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Config  interface{}       `yaml:"config" json:"config"`
	HTTP    MetricsHTTPConfig `yaml:"http" json:"http"`
}

type MetricsHTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

type HealthConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout"`
}
