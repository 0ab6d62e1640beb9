package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(maxSize int, clock *fakeClock) *MemoryStore {
	s := NewMemoryStore(logger.NewNop(), &types.CacheConfig{Type: "memory", MaxSize: maxSize})
	s.nowFunc = clock.Now
	s.createdAt = clock.Now()
	return s
}

func TestMemoryStoreGetSet(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(10, clock)

	require.NoError(t, s.Set("a", "alpha", time.Minute))
	value, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", value)

	value, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, value)

	assert.ErrorIs(t, s.Set("", "x", time.Minute), types.ErrCacheKeyEmpty)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 50.0, stats.HitRatePercent)
	assert.Equal(t, 1, stats.Entries)
}

func TestMemoryStoreExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(10, clock)

	require.NoError(t, s.Set("short", 1, 10*time.Second))
	require.NoError(t, s.Set("default", 2, 0))

	clock.Advance(10 * time.Second)
	_, ok := s.Get("short")
	assert.True(t, ok, "entry is live until its age exceeds the ttl")

	clock.Advance(time.Second)
	_, ok = s.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Stats().Entries, "expired entry is removed on read")

	clock.Advance(DefaultTTL)
	assert.Equal(t, 1, s.CleanupExpired())
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(3, clock)

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(key, key, time.Minute))
		clock.Advance(time.Second)
	}

	_, ok := s.Get("a")
	require.True(t, ok)

	require.NoError(t, s.Set("d", "d", time.Minute))

	_, ok = s.Get("b")
	assert.False(t, ok, "b was least recently accessed")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := s.Get(key)
		assert.True(t, ok, key)
	}

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 3, stats.Entries)
}

func TestMemoryStoreOverwriteDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(2, clock)

	require.NoError(t, s.Set("a", 1, time.Second))
	require.NoError(t, s.Set("b", 2, time.Minute))
	clock.Advance(2 * time.Second)
	require.NoError(t, s.Set("a", 3, time.Minute))

	value, ok := s.Get("a")
	assert.True(t, ok, "overwrite resets created_at and ttl")
	assert.Equal(t, 3, value)
	assert.Equal(t, uint64(0), s.Stats().Evictions)
}

func TestMemoryStoreDeleteClearAndStats(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(10, clock)

	require.NoError(t, s.Set("a", "xyz", time.Minute))
	require.NoError(t, s.Set("b", map[string]int{"n": 1}, time.Minute))

	clock.Advance(4 * time.Second)
	stats := s.Stats()
	assert.Greater(t, stats.EstimatedMemoryBytes, int64(0))
	assert.Equal(t, 4.0, stats.AverageEntryAgeSeconds)
	assert.Equal(t, 4.0, stats.UptimeSeconds)
	assert.Equal(t, 0.0, stats.HitRatePercent)

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))

	s.Clear()
	stats = s.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.EstimatedMemoryBytes)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(logger.NewNop(), &types.CacheConfig{MaxSize: 50})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := GenerateKey("k", (worker*j)%80)
				_ = s.Set(key, j, time.Minute)
				s.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Stats().Entries, 50)
}

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore(logger.NewNop(), &types.CacheConfig{MaxSize: 5, CleanupInterval: 5 * time.Millisecond})
	require.NoError(t, s.Set("a", 1, time.Millisecond))

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), types.ErrServerAlreadyRunning)

	assert.Eventually(t, func() bool { return s.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, GenerateKey("a", 1, "b"), GenerateKey("a", 1, "b"))
	assert.NotEqual(t, GenerateKey("a", 1), GenerateKey("a", 2))
	assert.Equal(t, "raw-key", GenerateKey("raw-key"))
	assert.Len(t, GenerateKey("a", 1), 32)
	assert.Equal(t, "4ba467fd42a6ca31d49bf071e6e47842", GenerateKey("a", 1, "b"), "md5 of 1:a:1:1:1:b")
	assert.Equal(t, "f3bbde4cd7e688bf04c9d21f0f6a9992", GenerateKey("a", ""))
}

func TestGenerateKeySeparatorInParts(t *testing.T) {
	cases := []struct {
		name string
		a, b []interface{}
	}{
		{"joined versus split", []interface{}{"p", "a:b"}, []interface{}{"p", "a", "b"}},
		{"separator moved", []interface{}{"a:", "b"}, []interface{}{"a", ":b"}},
		{"empty parts", []interface{}{"a", "", "b"}, []interface{}{"a", ":b"}},
		{"keyword values", []interface{}{"list", "q=a:limit=1"}, []interface{}{"list", "q=a", "limit=1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, GenerateKey(tc.a...), GenerateKey(tc.b...))
		})
	}
}
