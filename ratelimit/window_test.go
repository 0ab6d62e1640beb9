package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestIsRateLimited(t *testing.T) {
	w := NewSlidingWindow()
	id := IPIdentifier("10.0.0.1")

	for i := 0; i < 3; i++ {
		assert.False(t, w.IsRateLimited(id, epoch, 3))
		w.RecordRequest(id, epoch.Add(time.Duration(i)*time.Second))
	}

	assert.True(t, w.IsRateLimited(id, epoch.Add(5*time.Second), 3))
	assert.True(t, w.IsRateLimited(id, epoch.Add(59*time.Second), 3))
	assert.False(t, w.IsRateLimited(id, epoch.Add(61*time.Second), 3), "oldest entry left the window")
}

func TestAllow(t *testing.T) {
	w := NewSlidingWindow()
	id := ClientIdentifier("key_1")

	var last Decision
	for i := 0; i < 5; i++ {
		d := w.Allow(id, epoch.Add(time.Duration(i)*time.Second), 5)
		require.True(t, d.Allowed)
		if i > 0 {
			assert.Less(t, d.Remaining, last.Remaining)
		}
		last = d
	}
	assert.Equal(t, 0, last.Remaining)
	assert.Equal(t, epoch.Add(Window).Unix(), last.Reset)

	d := w.Allow(id, epoch.Add(10*time.Second), 5)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5, d.Limit)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 5, w.Count(id, epoch.Add(10*time.Second)), "rejected requests are not recorded")

	d = w.Allow(id, epoch.Add(61*time.Second), 5)
	assert.True(t, d.Allowed)
}

func TestAllowDefaultLimit(t *testing.T) {
	w := NewSlidingWindow()

	d := w.Allow("ip:1.2.3.4", epoch, 0)
	assert.Equal(t, DefaultRequestsPerMinute, d.Limit)
	assert.Equal(t, DefaultRequestsPerMinute-1, d.Remaining)
}

func TestAllowIsolatesIdentifiers(t *testing.T) {
	w := NewSlidingWindow()

	assert.True(t, w.Allow("ip:a", epoch, 1).Allowed)
	assert.False(t, w.Allow("ip:a", epoch, 1).Allowed)
	assert.True(t, w.Allow("ip:b", epoch, 1).Allowed)
}

func TestAllowConcurrent(t *testing.T) {
	w := NewSlidingWindow()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow("ip:shared", epoch, 20).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, allowed)
}

func TestCleanup(t *testing.T) {
	w := NewSlidingWindow()

	w.RecordRequest("ip:old", epoch)
	w.RecordRequest("ip:fresh", epoch.Add(50*time.Second))

	removed := w.Cleanup(epoch.Add(70 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, w.Identifiers())
}

func TestMaybeCleanup(t *testing.T) {
	w := NewSlidingWindow()

	w.RecordRequest("ip:a", epoch)
	assert.Equal(t, 0, w.MaybeCleanup(epoch.Add(30*time.Second)), "first sweep finds nothing stale")

	w.RecordRequest("ip:b", epoch)
	assert.Equal(t, 0, w.MaybeCleanup(epoch.Add(80*time.Second)), "too soon after previous sweep")
	assert.Equal(t, 2, w.MaybeCleanup(epoch.Add(91*time.Second)))
}
