package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DriftWatch/internal/domain/models"
	domsvc "DriftWatch/internal/domain/service"
)

type stubAnalyzer struct {
	pattern models.PatternType
	opps    map[string]*models.Opportunity
	err     error
	panics  bool
}

func (a *stubAnalyzer) Pattern() models.PatternType { return a.pattern }

func (a *stubAnalyzer) Analyze(_ context.Context, symbol string, _ *models.MarketSnapshot) (*models.Opportunity, error) {
	if a.panics {
		panic("analyzer blew up")
	}
	if a.err != nil {
		return nil, a.err
	}
	o, ok := a.opps[symbol]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func testSnapshot(symbols ...string) *models.MarketSnapshot {
	snap := &models.MarketSnapshot{
		TakenAt:   time.Now().UTC(),
		Reference: models.AssetWindow{Symbol: "BTCUSDT"},
		Assets:    make(map[string]models.AssetWindow, len(symbols)),
	}
	for _, s := range symbols {
		snap.Assets[s] = models.AssetWindow{Symbol: s}
	}
	return snap
}

func opp(symbol string, pattern models.PatternType, mag, conf float64, confirmed bool) *models.Opportunity {
	o := &models.Opportunity{
		ID:              symbol + "-" + pattern.String(),
		Symbol:          symbol,
		Pattern:         pattern,
		Magnitude:       mag,
		Confidence:      conf,
		Risk:            models.RiskMedium,
		Timestamp:       time.Now().UTC(),
		VolumeConfirmed: confirmed,
	}
	o.Finalize()
	return o
}

func baseScannerConfig() ScannerConfig {
	return ScannerConfig{
		Tiers: []TierRule{
			{ID: "watch", MinMagnitude: 0.02, MinConfidence: 0.50, ScanInterval: time.Minute, MaxAlertsPerHour: 10, Cooldown: 30 * time.Minute, Enabled: true},
			{ID: "priority", MinMagnitude: 0.12, MinConfidence: 0.75, ScanInterval: 5 * time.Minute, MaxAlertsPerHour: 2, Cooldown: time.Hour, Enabled: true},
		},
		Weights: ScoreWeights{Magnitude: 0.30, Confidence: 0.30, Pattern: 0.15, Volume: 0.10, Risk: 0.15},
		PatternWeights: map[models.PatternType]float64{
			models.PatternBetaDivergence: 1.0,
			models.PatternMomentumShift:  0.8,
		},
		MinValueScore: 0,
		Workers:       2,
		Emergency:     EmergencyOverride{MinMagnitude: 0.40, MinConfidence: 0.97},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScanBindsHighestDueTier(t *testing.T) {
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"ETHUSDT": opp("ETHUSDT", models.PatternBetaDivergence, 0.15, 0.80, true),
			"SOLUSDT": opp("SOLUSDT", models.PatternBetaDivergence, 0.05, 0.60, false),
		},
	}
	s := NewTieredScanner(baseScannerConfig(), []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	got, err := s.Scan(context.Background(), testSnapshot("ETHUSDT", "SOLUSDT"))
	require.NoError(t, err)
	require.Len(t, got, 2)

	// stronger candidate sorts first and lands in the stricter tier
	assert.Equal(t, "ETHUSDT", got[0].Symbol)
	assert.GreaterOrEqual(t, got[0].ValueScore, got[1].ValueScore)
	assert.Equal(t, 1, s.State().HourlyCount("priority", now))
	assert.Equal(t, 1, s.State().HourlyCount("watch", now))
}

func TestScanValueScoreBounds(t *testing.T) {
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 5.0, 1.0, true),  // saturating magnitude
			"B": opp("B", models.PatternBetaDivergence, 0.021, 0.5, false), // barely clears watch
		},
	}
	s := NewTieredScanner(baseScannerConfig(), []domsvc.PatternAnalyzer{an}, nil, nil)
	s.SetClock(fixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))

	got, err := s.Scan(context.Background(), testSnapshot("A", "B"))
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, o := range got {
		assert.GreaterOrEqual(t, o.ValueScore, 0.0)
		assert.LessOrEqual(t, o.ValueScore, 100.0)
	}
}

func TestScanHourlyCapKeepsHighestValue(t *testing.T) {
	opps := map[string]*models.Opportunity{
		"A": opp("A", models.PatternBetaDivergence, 0.30, 0.95, true),
		"B": opp("B", models.PatternBetaDivergence, 0.25, 0.90, true),
		"C": opp("C", models.PatternBetaDivergence, 0.20, 0.85, false),
		"D": opp("D", models.PatternBetaDivergence, 0.18, 0.80, false),
		"E": opp("E", models.PatternBetaDivergence, 0.15, 0.78, false),
	}
	cfg := baseScannerConfig()
	cfg.Tiers = []TierRule{
		{ID: "priority", MinMagnitude: 0.12, MinConfidence: 0.75, ScanInterval: time.Minute, MaxAlertsPerHour: 2, Cooldown: time.Hour, Enabled: true},
	}
	an := &stubAnalyzer{pattern: models.PatternBetaDivergence, opps: opps}
	s := NewTieredScanner(cfg, []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	got, err := s.Scan(context.Background(), testSnapshot("A", "B", "C", "D", "E"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Symbol)
	assert.Equal(t, "B", got[1].Symbol)
	assert.Equal(t, 2, s.State().HourlyCount("priority", now))
}

func TestScanCooldownBlocksRepeat(t *testing.T) {
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"ETHUSDT": opp("ETHUSDT", models.PatternBetaDivergence, 0.15, 0.80, true),
		},
	}
	cfg := baseScannerConfig()
	cfg.Tiers = []TierRule{
		{ID: "priority", MinMagnitude: 0.12, MinConfidence: 0.75, ScanInterval: time.Minute, MaxAlertsPerHour: 10, Cooldown: time.Hour, Enabled: true},
	}
	s := NewTieredScanner(cfg, []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	first, err := s.Scan(context.Background(), testSnapshot("ETHUSDT"))
	require.NoError(t, err)
	require.Len(t, first, 1)

	// next pass inside the cooldown
	s.SetClock(fixedClock(now.Add(10 * time.Minute)))
	second, err := s.Scan(context.Background(), testSnapshot("ETHUSDT"))
	require.NoError(t, err)
	assert.Empty(t, second)

	// and after the cooldown elapses
	s.SetClock(fixedClock(now.Add(61 * time.Minute)))
	third, err := s.Scan(context.Background(), testSnapshot("ETHUSDT"))
	require.NoError(t, err)
	assert.Len(t, third, 1)
}

func TestScanEmergencyOverrideBypassesCapAndCooldown(t *testing.T) {
	cfg := baseScannerConfig()
	cfg.Tiers = []TierRule{
		{ID: "priority", MinMagnitude: 0.12, MinConfidence: 0.75, ScanInterval: time.Minute, MaxAlertsPerHour: 1, Cooldown: time.Hour, Enabled: true},
	}
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 0.20, 0.90, true),
		},
	}
	s := NewTieredScanner(cfg, []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	first, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	require.Len(t, first, 1)

	// cap is exhausted and A is on cooldown; a non-emergency repeat is blocked
	s.SetClock(fixedClock(now.Add(2 * time.Minute)))
	blocked, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	require.Empty(t, blocked)

	// the same symbol at emergency severity lands anyway
	an.opps["A"] = opp("A", models.PatternBetaDivergence, 0.45, 0.99, true)
	s.SetClock(fixedClock(now.Add(4 * time.Minute)))
	got, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Symbol)
}

func TestScanRestrictedModeGatesAndDailyCap(t *testing.T) {
	cfg := baseScannerConfig()
	cfg.Restricted = &RestrictedProfile{
		Patterns:        map[models.PatternType]bool{models.PatternBetaDivergence: true},
		MinMagnitude:    0.30,
		MinConfidence:   0.95,
		Cooldown:        4 * time.Hour,
		MaxAlertsPerDay: 1,
	}
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 0.45, 0.99, true),
			"B": opp("B", models.PatternBetaDivergence, 0.44, 0.98, true),
			"C": opp("C", models.PatternBetaDivergence, 0.20, 0.90, true), // under restricted floor
		},
	}
	s := NewTieredScanner(cfg, []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	got, err := s.Scan(context.Background(), testSnapshot("A", "B", "C"))
	require.NoError(t, err)
	// daily cap of one holds even though both A and B qualify as emergencies
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Symbol)

	// cap persists across passes until reset
	s.SetClock(fixedClock(now.Add(2 * time.Hour)))
	second, err := s.Scan(context.Background(), testSnapshot("A", "B", "C"))
	require.NoError(t, err)
	assert.Empty(t, second)

	s.State().ResetDaily()
	s.SetClock(fixedClock(now.Add(5 * time.Hour)))
	third, err := s.Scan(context.Background(), testSnapshot("B"))
	require.NoError(t, err)
	assert.Len(t, third, 1)
}

func TestScanAnalyzerFailureContained(t *testing.T) {
	good := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 0.15, 0.80, true),
		},
	}
	bad := &stubAnalyzer{pattern: models.PatternMomentumShift, err: errors.New("window misaligned")}
	panicky := &stubAnalyzer{pattern: models.PatternMomentumShift, panics: true}

	s := NewTieredScanner(baseScannerConfig(), []domsvc.PatternAnalyzer{bad, panicky, good}, nil, nil)
	s.SetClock(fixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))

	got, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestScanCancelledPassCommitsNothing(t *testing.T) {
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 0.15, 0.80, true),
		},
	}
	s := NewTieredScanner(baseScannerConfig(), []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, testSnapshot("A"))
	require.Error(t, err)

	// tiers still due, no counters consumed
	assert.True(t, s.State().TierDue("priority", 5*time.Minute, now))
	assert.Equal(t, 0, s.State().HourlyCount("priority", now))
	assert.Equal(t, 0, s.State().DailyCount(now))
}

func TestScanTierCadence(t *testing.T) {
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 0.15, 0.80, true),
		},
	}
	cfg := baseScannerConfig()
	cfg.Tiers = []TierRule{
		{ID: "priority", MinMagnitude: 0.12, MinConfidence: 0.75, ScanInterval: 5 * time.Minute, MaxAlertsPerHour: 10, Cooldown: time.Minute, Enabled: true},
	}
	s := NewTieredScanner(cfg, []domsvc.PatternAnalyzer{an}, nil, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(now))

	first, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	require.Len(t, first, 1)

	// one minute later nothing is due
	s.SetClock(fixedClock(now.Add(time.Minute)))
	second, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Empty(t, second)

	s.SetClock(fixedClock(now.Add(5 * time.Minute)))
	third, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Len(t, third, 1)
}

func TestScanDisabledPatternSkipped(t *testing.T) {
	cfg := baseScannerConfig()
	cfg.PatternWeights = map[models.PatternType]float64{models.PatternBetaDivergence: 0}
	an := &stubAnalyzer{
		pattern: models.PatternBetaDivergence,
		opps: map[string]*models.Opportunity{
			"A": opp("A", models.PatternBetaDivergence, 0.45, 0.99, true),
		},
	}
	s := NewTieredScanner(cfg, []domsvc.PatternAnalyzer{an}, nil, nil)
	s.SetClock(fixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))

	got, err := s.Scan(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
