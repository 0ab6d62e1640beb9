package types

import (
	"time"
)

type CacheStore interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) bool
	Clear()
	CleanupExpired() int
	Stats() CacheStats
}

type CacheStoreCreator func(config *CacheConfig) (CacheStore, error)

type CacheStats struct {
	Backend                string  `json:"backend"`
	Entries                int     `json:"entries"`
	MaxSize                int     `json:"max_size"`
	Hits                   uint64  `json:"hits"`
	Misses                 uint64  `json:"misses"`
	HitRatePercent         float64 `json:"hit_rate_percent"`
	Evictions              uint64  `json:"evictions"`
	EstimatedMemoryBytes   int64   `json:"estimated_memory_bytes"`
	UptimeSeconds          float64 `json:"uptime_seconds"`
	AverageEntryAgeSeconds float64 `json:"average_entry_age_seconds"`
}
