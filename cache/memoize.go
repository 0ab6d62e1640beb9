package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-org-registry/types"
	"github.com/saiset-co/sai-org-registry/utils"
)

const (
	ListTTL       = 60 * time.Second
	SearchTTL     = 30 * time.Second
	StatisticsTTL = 300 * time.Second
)

// Args are the logical arguments of a memoized call. Receivers and other
// context values must not be passed; only these take part in the key.
type Args struct {
	Positional []interface{}
	Keyword    map[string]interface{}
}

func Positional(values ...interface{}) Args {
	return Args{Positional: values}
}

func (a Args) With(name string, value interface{}) Args {
	keyword := make(map[string]interface{}, len(a.Keyword)+1)
	for k, v := range a.Keyword {
		keyword[k] = v
	}
	keyword[name] = value
	return Args{Positional: a.Positional, Keyword: keyword}
}

func (a Args) parts() []interface{} {
	parts := make([]interface{}, 0, len(a.Positional)+len(a.Keyword))
	parts = append(parts, a.Positional...)

	names := make([]string, 0, len(a.Keyword))
	for name := range a.Keyword {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, a.Keyword[name]))
	}
	return parts
}

type MemoOptions struct {
	Name      string
	KeyPrefix string
	TTL       time.Duration
	Tags      []string
	// TagsFunc adds argument dependent tags, e.g. "person:42".
	TagsFunc func(args Args) []string
}

type Memoizer struct {
	store       types.CacheStore
	invalidator *TagInvalidator
	logger      types.Logger
	metrics     types.MetricsManager
	group       singleflight.Group
}

func NewMemoizer(store types.CacheStore, invalidator *TagInvalidator, logger types.Logger, metrics types.MetricsManager) *Memoizer {
	return &Memoizer{
		store:       store,
		invalidator: invalidator,
		logger:      logger,
		metrics:     metrics,
	}
}

// ClearCache empties the whole shared store, not only entries produced by
// one memoized function.
func (m *Memoizer) ClearCache() {
	m.store.Clear()
	if m.invalidator != nil {
		m.invalidator.Reset()
	}
	m.logger.Info("Memoization cache cleared")
}

func (m *Memoizer) CacheStats() types.CacheStats {
	return m.store.Stats()
}

type Memoized[T any] struct {
	memo *Memoizer
	opts MemoOptions
	fn   func(ctx context.Context, args Args) (T, error)
}

func Memoize[T any](m *Memoizer, opts MemoOptions, fn func(ctx context.Context, args Args) (T, error)) *Memoized[T] {
	return &Memoized[T]{memo: m, opts: opts, fn: fn}
}

func ListMemo[T any](m *Memoizer, name string, fn func(ctx context.Context, args Args) (T, error), tags ...string) *Memoized[T] {
	return Memoize(m, MemoOptions{
		Name:      name,
		KeyPrefix: "list",
		TTL:       ListTTL,
		Tags:      append([]string{TagLists}, tags...),
	}, fn)
}

func SearchMemo[T any](m *Memoizer, name string, fn func(ctx context.Context, args Args) (T, error), tags ...string) *Memoized[T] {
	return Memoize(m, MemoOptions{
		Name:      name,
		KeyPrefix: "search",
		TTL:       SearchTTL,
		Tags:      append([]string{TagSearchResults}, tags...),
	}, fn)
}

func StatisticsMemo[T any](m *Memoizer, name string, fn func(ctx context.Context, args Args) (T, error), tags ...string) *Memoized[T] {
	return Memoize(m, MemoOptions{
		Name:      name,
		KeyPrefix: "statistics",
		TTL:       StatisticsTTL,
		Tags:      append([]string{TagStatistics}, tags...),
	}, fn)
}

func (f *Memoized[T]) Key(args Args) string {
	parts := append([]interface{}{f.opts.KeyPrefix, f.opts.Name}, args.parts()...)
	return GenerateKey(parts...)
}

// Call returns the cached result for args or computes it. Errors from fn are
// returned and not cached; cache write failures only cost a future miss.
// Concurrent misses on one key share a single fn invocation, which keeps
// running when a waiter's ctx ends.
func (f *Memoized[T]) Call(ctx context.Context, args Args) (T, error) {
	key := f.Key(args)

	if cached, ok := f.memo.store.Get(key); ok {
		if value, ok := decodeCached[T](cached); ok {
			f.record("hit")
			return value, nil
		}
		f.memo.logger.Warn("Cached value has unexpected type, recomputing",
			zap.String("function", f.opts.Name), zap.String("key", key))
	}

	// the shared call outlives any single waiter, so it runs detached and
	// each caller gives up on its own context
	shared := context.WithoutCancel(ctx)
	ch := f.memo.group.DoChan(key, func() (interface{}, error) {
		value, err := f.fn(shared, args)
		if err != nil {
			return nil, err
		}
		f.store(key, args, value)
		return value, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			f.record("error")
			return zero, res.Err
		}
		f.record("miss")
		value, _ := res.Val.(T)
		return value, nil
	case <-ctx.Done():
		f.record("error")
		return zero, ctx.Err()
	}
}

func (f *Memoized[T]) store(key string, args Args, value T) {
	tags := f.opts.Tags
	if f.opts.TagsFunc != nil {
		tags = append(append([]string{}, tags...), f.opts.TagsFunc(args)...)
	}

	var err error
	if f.memo.invalidator != nil && len(tags) > 0 {
		err = f.memo.invalidator.SetWithTags(key, value, tags, f.opts.TTL)
	} else {
		err = f.memo.store.Set(key, value, f.opts.TTL)
	}

	if err != nil {
		f.memo.logger.Warn("Cache write failed, forced miss",
			zap.String("function", f.opts.Name),
			zap.String("key", key),
			zap.Error(err))
	}
}

func (f *Memoized[T]) record(result string) {
	f.memo.metrics.Counter("memoize_calls_total", map[string]string{
		"function": f.opts.Name,
		"result":   result,
	}).Inc()
}

// decodeCached accepts values stored in their own type (memory backend) and
// generic JSON values (redis backend).
func decodeCached[T any](cached interface{}) (T, bool) {
	if value, ok := cached.(T); ok {
		return value, true
	}

	var value T
	if cached == nil {
		return value, false
	}
	if err := utils.UnmarshalConfig(cached, &value); err != nil {
		return value, false
	}
	return value, true
}
