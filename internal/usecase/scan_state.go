package usecase

import (
	"time"

	"DriftWatch/internal/service/ratelimit"
)

// ScanState holds the scanner's throttling memory: per-tier last scan times,
// per-(symbol, tier) last alert times and rolling hourly/daily counters.
//
// The tiered scanner is the only writer. Reads during a pass see the state as
// of the pass start; mutations land in one commit step after the full
// filter/throttle pipeline succeeds.
type ScanState struct {
	lastScan map[string]time.Time
	hourly   *ratelimit.Window
	daily    *ratelimit.Window
	cooldown *ratelimit.Cooldown
}

func NewScanState() *ScanState {
	return &ScanState{
		lastScan: make(map[string]time.Time),
		hourly:   ratelimit.NewWindow(time.Hour),
		daily:    ratelimit.NewWindow(24 * time.Hour),
		cooldown: ratelimit.NewCooldown(),
	}
}

// TierDue reports whether a tier's scan interval has elapsed.
func (s *ScanState) TierDue(tierID string, interval time.Duration, now time.Time) bool {
	last, ok := s.lastScan[tierID]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// HourlyCount returns committed alerts for a tier inside the rolling hour.
func (s *ScanState) HourlyCount(tierID string, now time.Time) int {
	return s.hourly.Count(tierID, now)
}

// DailyCount returns committed alerts across all tiers in the rolling day.
func (s *ScanState) DailyCount(now time.Time) int {
	return s.daily.Count("all", now)
}

// CooldownReady reports whether the per-(symbol, tier) cooldown has elapsed.
func (s *ScanState) CooldownReady(symbol, tierID string, d time.Duration, now time.Time) bool {
	return s.cooldown.Ready(symbol+"|"+tierID, d, now)
}

// commit is the single mutation step of a scan pass.
type commit struct {
	scannedTiers []string
	alerts       []commitAlert
	at           time.Time
}

type commitAlert struct {
	symbol string
	tierID string
}

// Apply commits a completed pass atomically with respect to future passes.
func (s *ScanState) Apply(c commit) {
	for _, id := range c.scannedTiers {
		s.lastScan[id] = c.at
	}
	for _, a := range c.alerts {
		s.hourly.Add(a.tierID, c.at)
		s.daily.Add("all", c.at)
		s.cooldown.Mark(a.symbol+"|"+a.tierID, c.at)
	}
}

// ResetDaily clears the rolling daily counter. Invoked by the midnight cron.
func (s *ScanState) ResetDaily() {
	s.daily.Reset()
}
