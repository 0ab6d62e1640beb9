package ratelimit

import (
	"sync"
	"time"
)

const (
	Window = 60 * time.Second

	DefaultRequestsPerMinute = 60
)

// Decision is the outcome of Allow for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the unix time at which the oldest counted request leaves the window.
	Reset int64
}

// SlidingWindow counts requests per identifier over the trailing minute.
type SlidingWindow struct {
	mu          sync.Mutex
	windows     map[string][]time.Time
	lastCleanup time.Time
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		windows: make(map[string][]time.Time),
	}
}

// prune drops timestamps older than the window. Callers hold mu.
func (w *SlidingWindow) prune(id string, now time.Time) []time.Time {
	stamps := w.windows[id]
	cutoff := now.Add(-Window)

	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}

	if i > 0 {
		stamps = append(stamps[:0], stamps[i:]...)
		w.windows[id] = stamps
	}
	return stamps
}

func (w *SlidingWindow) IsRateLimited(id string, now time.Time, limit int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.prune(id, now)) >= limit
}

func (w *SlidingWindow) RecordRequest(id string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.windows[id] = append(w.prune(id, now), now)
}

// Allow checks and records a request in a single critical section.
func (w *SlidingWindow) Allow(id string, now time.Time, limit int) Decision {
	if limit <= 0 {
		limit = DefaultRequestsPerMinute
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	stamps := w.prune(id, now)
	d := Decision{Limit: limit}

	if len(stamps) < limit {
		stamps = append(stamps, now)
		w.windows[id] = stamps
		d.Allowed = true
	}

	d.Remaining = limit - len(stamps)
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	if len(stamps) > 0 {
		d.Reset = stamps[0].Add(Window).Unix()
	} else {
		d.Reset = now.Add(Window).Unix()
	}

	return d
}

// Count returns the number of requests currently in id's window.
func (w *SlidingWindow) Count(id string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.prune(id, now))
}

// Cleanup removes identifiers with no requests inside the window.
func (w *SlidingWindow) Cleanup(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cleanupLocked(now)
}

func (w *SlidingWindow) cleanupLocked(now time.Time) int {
	cutoff := now.Add(-Window)
	removed := 0

	for id, stamps := range w.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(w.windows, id)
			removed++
		}
	}

	w.lastCleanup = now
	return removed
}

// MaybeCleanup runs Cleanup at most once per window.
func (w *SlidingWindow) MaybeCleanup(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lastCleanup.IsZero() && now.Sub(w.lastCleanup) < Window {
		return 0
	}
	return w.cleanupLocked(now)
}

// Identifiers returns the number of tracked identifiers.
func (w *SlidingWindow) Identifiers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.windows)
}

func ClientIdentifier(keyID string) string {
	return "api_client:" + keyID
}

func IPIdentifier(ip string) string {
	return "ip:" + ip
}
