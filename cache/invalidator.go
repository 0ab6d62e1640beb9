package cache

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/types"
)

type set map[string]struct{}

func (s set) add(v string) { s[v] = struct{}{} }

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type Tag struct {
	Name      string
	Keys      set
	CreatedAt time.Time
}

type InvalidationResult struct {
	InvalidatedTags      []string `json:"invalidated_tags"`
	InvalidatedKeysCount int      `json:"invalidated_keys_count"`
	CascadeEnabled       bool     `json:"cascade_enabled"`
}

type PatternResult struct {
	InvalidatedPatterns  []string `json:"invalidated_patterns"`
	InvalidatedKeysCount int      `json:"invalidated_keys_count"`
}

type TagInfo struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	KeyCount     int       `json:"key_count"`
	Keys         []string  `json:"keys"`
	Dependencies []string  `json:"dependencies"`
	DependentOn  []string  `json:"dependent_on"`
	Pinned       bool      `json:"pinned"`
}

type InvalidatorStats struct {
	TotalInvalidations      uint64 `json:"total_invalidations"`
	TagInvalidations        uint64 `json:"tag_invalidations"`
	PatternInvalidations    uint64 `json:"pattern_invalidations"`
	KeysInvalidated         uint64 `json:"keys_invalidated"`
	DependencyInvalidations uint64 `json:"dependency_invalidations"`
	TagsCount               int    `json:"tags_count"`
	PatternsCount           int    `json:"patterns_count"`
	TrackedKeys             int    `json:"tracked_keys"`
}

// TagInvalidator indexes store keys by tag and by pattern and keeps a
// directed graph of tag dependencies (parent -> dependents). Its lock is
// independent of the store's; store deletes run after the index lock is
// released, so a concurrent Set between the two steps may survive.
type TagInvalidator struct {
	store  types.CacheStore
	logger types.Logger

	mu           sync.Mutex
	tags         map[string]*Tag
	keyTags      map[string]set
	patterns     map[string]set
	keyPatterns  map[string]set
	dependencies map[string]set
	dependents   map[string]set
	pinned       set
	stats        InvalidatorStats

	nowFunc func() time.Time
}

func NewTagInvalidator(store types.CacheStore, logger types.Logger) *TagInvalidator {
	return &TagInvalidator{
		store:        store,
		logger:       logger,
		tags:         make(map[string]*Tag),
		keyTags:      make(map[string]set),
		patterns:     make(map[string]set),
		keyPatterns:  make(map[string]set),
		dependencies: make(map[string]set),
		dependents:   make(map[string]set),
		pinned:       make(set),
		nowFunc:      time.Now,
	}
}

func (ti *TagInvalidator) TagKey(key string, tags ...string) {
	if key == "" || len(tags) == 0 {
		return
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()

	for _, name := range tags {
		tag, ok := ti.tags[name]
		if !ok {
			tag = &Tag{Name: name, Keys: make(set), CreatedAt: ti.nowFunc()}
			ti.tags[name] = tag
		}
		tag.Keys.add(key)
		addEdge(ti.keyTags, key, name)
	}
}

func (ti *TagInvalidator) TagPattern(key string, patterns ...string) {
	if key == "" || len(patterns) == 0 {
		return
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()

	for _, pattern := range patterns {
		addEdge(ti.patterns, pattern, key)
		addEdge(ti.keyPatterns, key, pattern)
	}
}

// SetWithTags stores the value and tags the key. A failed Set leaves the key
// untagged.
func (ti *TagInvalidator) SetWithTags(key string, value interface{}, tags []string, ttl time.Duration) error {
	if err := ti.store.Set(key, value, ttl); err != nil {
		return err
	}
	ti.TagKey(key, tags...)
	return nil
}

func (ti *TagInvalidator) AddDependency(parent, dependent string) {
	if parent == "" || dependent == "" || parent == dependent {
		return
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()

	addEdge(ti.dependencies, parent, dependent)
	addEdge(ti.dependents, dependent, parent)
}

// Pin protects tags (and their edges) from CleanupEmptyTags.
func (ti *TagInvalidator) Pin(tags ...string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	for _, tag := range tags {
		ti.pinned.add(tag)
	}
}

// InvalidateByTag deletes every key carrying one of tags. With cascade the
// tag set is first closed over the dependency graph breadth-first; each tag
// is visited once so cycles terminate.
func (ti *TagInvalidator) InvalidateByTag(tags []string, cascade bool) InvalidationResult {
	input := make(set, len(tags))
	for _, tag := range tags {
		if tag != "" {
			input.add(tag)
		}
	}

	ti.mu.Lock()

	closure := make(set, len(input))
	queue := make([]string, 0, len(input))
	for _, tag := range input.sorted() {
		closure.add(tag)
		queue = append(queue, tag)
	}

	if cascade {
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for dependent := range ti.dependencies[current] {
				if _, seen := closure[dependent]; seen {
					continue
				}
				closure.add(dependent)
				queue = append(queue, dependent)
			}
		}
	}

	keys := make(set)
	for name := range closure {
		tag, ok := ti.tags[name]
		if !ok {
			continue
		}
		for key := range tag.Keys {
			keys.add(key)
			removeEdge(ti.keyTags, key, name)
		}
		tag.Keys = make(set)
	}

	ti.stats.TotalInvalidations++
	ti.stats.TagInvalidations += uint64(len(closure))
	ti.stats.KeysInvalidated += uint64(len(keys))
	if cascade {
		ti.stats.DependencyInvalidations += uint64(len(closure) - len(input))
	}

	ti.mu.Unlock()

	for key := range keys {
		ti.store.Delete(key)
	}

	result := InvalidationResult{
		InvalidatedTags:      closure.sorted(),
		InvalidatedKeysCount: len(keys),
		CascadeEnabled:       cascade,
	}

	ti.logger.Debug("Cache invalidated by tag",
		zap.Strings("tags", result.InvalidatedTags),
		zap.Int("keys", result.InvalidatedKeysCount),
		zap.Bool("cascade", cascade))

	return result
}

func (ti *TagInvalidator) InvalidateByPattern(patterns []string) PatternResult {
	input := make(set, len(patterns))
	for _, pattern := range patterns {
		if pattern != "" {
			input.add(pattern)
		}
	}

	ti.mu.Lock()

	keys := make(set)
	for pattern := range input {
		for key := range ti.patterns[pattern] {
			keys.add(key)
			removeEdge(ti.keyPatterns, key, pattern)
		}
		if _, ok := ti.patterns[pattern]; ok {
			ti.patterns[pattern] = make(set)
		}
	}

	ti.stats.TotalInvalidations++
	ti.stats.PatternInvalidations += uint64(len(input))
	ti.stats.KeysInvalidated += uint64(len(keys))

	ti.mu.Unlock()

	for key := range keys {
		ti.store.Delete(key)
	}

	return PatternResult{
		InvalidatedPatterns:  input.sorted(),
		InvalidatedKeysCount: len(keys),
	}
}

// CleanupEmptyTags drops unpinned tags without keys along with their
// dependency edges, and empty patterns. It returns the number of tags removed.
func (ti *TagInvalidator) CleanupEmptyTags() int {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	removed := 0
	for name, tag := range ti.tags {
		if len(tag.Keys) > 0 {
			continue
		}
		if _, pinned := ti.pinned[name]; pinned {
			continue
		}

		delete(ti.tags, name)
		for dependent := range ti.dependencies[name] {
			removeEdge(ti.dependents, dependent, name)
		}
		for parent := range ti.dependents[name] {
			removeEdge(ti.dependencies, parent, name)
		}
		delete(ti.dependencies, name)
		delete(ti.dependents, name)
		removed++
	}

	for pattern, keys := range ti.patterns {
		if len(keys) == 0 {
			delete(ti.patterns, pattern)
		}
	}

	return removed
}

// Reset forgets all tag and pattern memberships, keeping the dependency
// graph. Used after the whole store was cleared.
func (ti *TagInvalidator) Reset() {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	ti.tags = make(map[string]*Tag)
	ti.keyTags = make(map[string]set)
	ti.patterns = make(map[string]set)
	ti.keyPatterns = make(map[string]set)
}

func (ti *TagInvalidator) TagInfo(name string) (TagInfo, bool) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	tag, exists := ti.tags[name]
	_, hasEdges := ti.dependencies[name]
	_, hasParents := ti.dependents[name]
	if !exists && !hasEdges && !hasParents {
		return TagInfo{}, false
	}

	info := TagInfo{
		Name:         name,
		Keys:         []string{},
		Dependencies: ti.dependencies[name].sorted(),
		DependentOn:  ti.dependents[name].sorted(),
	}
	_, info.Pinned = ti.pinned[name]
	if exists {
		info.CreatedAt = tag.CreatedAt
		info.KeyCount = len(tag.Keys)
		info.Keys = tag.Keys.sorted()
	}

	return info, true
}

func (ti *TagInvalidator) Stats() InvalidatorStats {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	stats := ti.stats
	stats.TagsCount = len(ti.tags)
	stats.PatternsCount = len(ti.patterns)

	tracked := make(set, len(ti.keyTags)+len(ti.keyPatterns))
	for key := range ti.keyTags {
		tracked.add(key)
	}
	for key := range ti.keyPatterns {
		tracked.add(key)
	}
	stats.TrackedKeys = len(tracked)

	return stats
}

func addEdge(index map[string]set, from, to string) {
	targets, ok := index[from]
	if !ok {
		targets = make(set)
		index[from] = targets
	}
	targets.add(to)
}

func removeEdge(index map[string]set, from, to string) {
	targets, ok := index[from]
	if !ok {
		return
	}
	delete(targets, to)
	if len(targets) == 0 {
		delete(index, from)
	}
}
