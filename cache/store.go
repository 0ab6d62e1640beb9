package cache

import (
	"container/list"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = 300 * time.Second
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Entry struct {
	Key          string
	Value        interface{}
	CreatedAt    time.Time
	TTL          time.Duration
	HitCount     uint64
	LastAccessed time.Time
	size         int64
}

func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// MemoryStore is a TTL cache bounded by MaxSize with least-recently-used
// eviction. A single mutex guards the index, the recency list and the
// counters; Get reorders the list so it takes the same exclusive lock.
type MemoryStore struct {
	logger          types.Logger
	maxSize         int
	defaultTTL      time.Duration
	cleanupInterval time.Duration

	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List
	hits      uint64
	misses    uint64
	evictions uint64
	memory    int64
	createdAt time.Time

	nowFunc func() time.Time
	state   atomic.Value
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewMemoryStore(logger types.Logger, config *types.CacheConfig) *MemoryStore {
	maxSize := DefaultMaxSize
	defaultTTL := DefaultTTL
	var cleanupInterval time.Duration

	if config != nil {
		if config.MaxSize > 0 {
			maxSize = config.MaxSize
		}
		if config.DefaultTTL > 0 {
			defaultTTL = config.DefaultTTL
		}
		cleanupInterval = config.CleanupInterval
	}

	s := &MemoryStore{
		logger:          logger,
		maxSize:         maxSize,
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		items:           make(map[string]*list.Element, maxSize),
		lru:             list.New(),
		nowFunc:         time.Now,
	}
	s.createdAt = s.nowFunc()
	s.state.Store(StateStopped)

	return s
}

func (s *MemoryStore) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if s.cleanupInterval > 0 {
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.cleanupLoop(s.stopCh)
	}

	s.setState(StateRunning)
	s.logger.Info("Memory cache started",
		zap.Int("max_size", s.maxSize),
		zap.Duration("default_ttl", s.defaultTTL),
		zap.Duration("cleanup_interval", s.cleanupInterval))
	return nil
}

func (s *MemoryStore) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	if s.stopCh != nil {
		close(s.stopCh)
		s.wg.Wait()
		s.stopCh = nil
	}

	s.setState(StateStopped)
	s.logger.Info("Memory cache stopped")
	return nil
}

func (s *MemoryStore) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *MemoryStore) Get(key string) (interface{}, bool) {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}

	entry := elem.Value.(*Entry)
	if entry.Expired(now) {
		s.removeElement(elem)
		s.misses++
		return nil, false
	}

	entry.HitCount++
	entry.LastAccessed = now
	s.lru.MoveToFront(elem)
	s.hits++

	return entry.Value, true
}

// Set stores value for ttl; ttl <= 0 selects the store default. Adding a new
// key to a full store first evicts the least recently accessed entry.
func (s *MemoryStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.nowFunc()
	size := estimateSize(key, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*Entry)
		s.memory += size - entry.size
		entry.Value = value
		entry.CreatedAt = now
		entry.TTL = ttl
		entry.LastAccessed = now
		entry.size = size
		s.lru.MoveToFront(elem)
		return nil
	}

	if len(s.items) >= s.maxSize {
		s.evictOldest()
	}

	entry := &Entry{
		Key:          key,
		Value:        value,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
		size:         size,
	}
	s.items[key] = s.lru.PushFront(entry)
	s.memory += size

	return nil
}

func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element, s.maxSize)
	s.lru.Init()
	s.memory = 0
}

func (s *MemoryStore) CleanupExpired() int {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*Entry).Expired(now) {
			s.removeElement(elem)
			removed++
		}
		elem = prev
	}

	return removed
}

func (s *MemoryStore) Stats() types.CacheStats {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	var totalAge float64
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		totalAge += now.Sub(elem.Value.(*Entry).CreatedAt).Seconds()
	}

	var avgAge float64
	if n := len(s.items); n > 0 {
		avgAge = round2(totalAge / float64(n))
	}

	return types.CacheStats{
		Backend:                "memory",
		Entries:                len(s.items),
		MaxSize:                s.maxSize,
		Hits:                   s.hits,
		Misses:                 s.misses,
		HitRatePercent:         hitRate(s.hits, s.misses),
		Evictions:              s.evictions,
		EstimatedMemoryBytes:   s.memory,
		UptimeSeconds:          round2(now.Sub(s.createdAt).Seconds()),
		AverageEntryAgeSeconds: avgAge,
	}
}

func (s *MemoryStore) evictOldest() {
	elem := s.lru.Back()
	if elem == nil {
		return
	}

	s.removeElement(elem)
	s.evictions++
}

func (s *MemoryStore) removeElement(elem *list.Element) {
	entry := s.lru.Remove(elem).(*Entry)
	delete(s.items, entry.Key)
	s.memory -= entry.size
}

func (s *MemoryStore) cleanupLoop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.CleanupExpired(); removed > 0 {
				s.logger.Debug("Cache cleanup completed", zap.Int("expired_entries", removed))
			}
		case <-stopCh:
			return
		}
	}
}

func (s *MemoryStore) getState() State {
	return s.state.Load().(State)
}

func (s *MemoryStore) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *MemoryStore) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return round2(float64(hits) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// estimateSize approximates the retained bytes of an entry. Structured values
// are measured by their JSON encoding.
func estimateSize(key string, value interface{}) int64 {
	const entryOverhead = 64

	size := int64(len(key) + entryOverhead)
	switch v := value.(type) {
	case nil:
	case string:
		size += int64(len(v))
	case []byte:
		size += int64(len(v))
	case bool, int8, uint8:
		size++
	case int, int64, uint, uint64, float64, int32, uint32, float32, int16, uint16:
		size += 8
	default:
		if data, err := utils.Marshal(v); err == nil {
			size += int64(len(data))
		}
	}
	return size
}
