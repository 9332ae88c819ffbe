package ratelimit

import (
	"sync"
	"time"
)

// Window counts events per key inside a rolling time window.
type Window struct {
	mu   sync.Mutex
	span time.Duration
	m    map[string][]time.Time
}

func NewWindow(span time.Duration) *Window {
	return &Window{span: span, m: make(map[string][]time.Time)}
}

// Count returns how many events for key fall inside the window ending at now.
func (w *Window) Count(key string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prune(key, now))
}

// Add records one event for key at ts.
func (w *Window) Add(key string, ts time.Time) {
	w.mu.Lock()
	w.m[key] = append(w.prune(key, ts), ts)
	w.mu.Unlock()
}

// Reset drops all recorded events for every key.
func (w *Window) Reset() {
	w.mu.Lock()
	w.m = make(map[string][]time.Time)
	w.mu.Unlock()
}

// prune drops entries older than span; caller holds the lock.
func (w *Window) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-w.span)
	xs := w.m[key]
	i := 0
	for i < len(xs) && !xs[i].After(cutoff) {
		i++
	}
	if i > 0 {
		xs = xs[i:]
		w.m[key] = xs
	}
	return xs
}

// Cooldown tracks the last accepted event per key and answers whether the
// per-key cooldown has elapsed.
type Cooldown struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{m: make(map[string]time.Time)}
}

// Ready returns true when no event for key happened within d before now.
func (c *Cooldown) Ready(key string, d time.Duration, now time.Time) bool {
	c.mu.Lock()
	last, ok := c.m[key]
	c.mu.Unlock()
	if !ok {
		return true
	}
	return now.Sub(last) >= d
}

// Last returns the last recorded time for key.
func (c *Cooldown) Last(key string) (time.Time, bool) {
	c.mu.Lock()
	last, ok := c.m[key]
	c.mu.Unlock()
	return last, ok
}

// Mark records an accepted event for key at ts.
func (c *Cooldown) Mark(key string, ts time.Time) {
	c.mu.Lock()
	c.m[key] = ts
	c.mu.Unlock()
}
