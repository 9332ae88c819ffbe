package ratelimit

import (
	"testing"
	"time"
)

func TestWindowCountAndExpiry(t *testing.T) {
	w := NewWindow(time.Hour)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	w.Add("tier", now.Add(-90*time.Minute))
	w.Add("tier", now.Add(-30*time.Minute))
	w.Add("tier", now.Add(-time.Minute))

	if got := w.Count("tier", now); got != 2 {
		t.Fatalf("expected 2 inside window, got %d", got)
	}
	if got := w.Count("other", now); got != 0 {
		t.Fatalf("expected 0 for unknown key, got %d", got)
	}
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(time.Hour)
	now := time.Now()
	w.Add("k", now)
	w.Reset()
	if got := w.Count("k", now); got != 0 {
		t.Fatalf("expected 0 after reset, got %d", got)
	}
}

func TestCooldownReady(t *testing.T) {
	c := NewCooldown()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if !c.Ready("sym|tier", 30*time.Minute, now) {
		t.Fatalf("expected ready with no history")
	}
	c.Mark("sym|tier", now)
	if c.Ready("sym|tier", 30*time.Minute, now.Add(10*time.Minute)) {
		t.Fatalf("expected not ready inside cooldown")
	}
	if !c.Ready("sym|tier", 30*time.Minute, now.Add(30*time.Minute)) {
		t.Fatalf("expected ready at cooldown boundary")
	}
}
