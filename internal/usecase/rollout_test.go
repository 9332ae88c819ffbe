package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/domain/repository"
	"DriftWatch/pkg/config"
)

type fakeDetector struct {
	variant models.ScannerVariant
	opps    []models.Opportunity
	err     error
	delay   time.Duration

	mu    sync.Mutex
	calls int
}

func (d *fakeDetector) Variant() models.ScannerVariant { return d.variant }

func (d *fakeDetector) Detect(ctx context.Context, _ *models.MarketSnapshot) ([]models.Opportunity, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.opps, d.err
}

func (d *fakeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// seqRand replays a fixed draw sequence.
type seqRand struct {
	vals []float64
	i    int
}

func (r *seqRand) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func rolloutTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Rollout.LegacyEnabled = true
	cfg.Rollout.OptimizedEnabled = true
	cfg.Rollout.DetectorTimeout = time.Second
	cfg.Rollout.SampleCapacity = 1000
	cfg.Safety.SampleWindow = 200
	cfg.Safety.SampleMaxAge = 6 * time.Hour
	cfg.Safety.MaxErrorRate = 0.05
	cfg.Safety.CriticalErrorRate = 0.20
	cfg.Safety.MinQualityRatio = 0.90
	cfg.Safety.MaxLatencyRatio = 1.50
	cfg.Safety.MinProfitableRate = 0.10
	cfg.Safety.MaxConsecCritical = 3
	cfg.Safety.RolloutIncrement = 10
	cfg.Safety.RolloutInterval = 24 * time.Hour
	cfg.Safety.MinSamples = 10
	cfg.Safety.AuditRetention = 168 * time.Hour
	cfg.Safety.AuditCapacity = 500
	cfg.Safety.CronSpec = "@every 5m"
	return cfg
}

func newController(legacy, optimized *fakeDetector, state *RolloutStateStore, rng repository.RandomSource, timeout time.Duration) (*RolloutController, *SampleLog) {
	samples := NewSampleLog(1000)
	c := NewRolloutController(legacy, optimized, state, samples, nil, nil, rng, timeout, nil)
	return c, samples
}

func TestRouteInitialModeFromEnablement(t *testing.T) {
	cfg := rolloutTestConfig()
	assert.Equal(t, models.ModeParallel, NewRolloutStateStore(cfg).Mode())

	cfg.Rollout.LegacyEnabled = false
	assert.Equal(t, models.ModeOptimizedOnly, NewRolloutStateStore(cfg).Mode())

	cfg.Rollout.LegacyEnabled = true
	cfg.Rollout.OptimizedEnabled = false
	assert.Equal(t, models.ModeLegacyOnly, NewRolloutStateStore(cfg).Mode())
}

func TestRouteSingleVariantModes(t *testing.T) {
	legacy := &fakeDetector{variant: models.VariantLegacy, opps: []models.Opportunity{*opp("A", models.PatternBetaDivergence, 0.10, 0.8, true)}}
	optimized := &fakeDetector{variant: models.VariantOptimized, opps: []models.Opportunity{*opp("B", models.PatternBetaDivergence, 0.15, 0.9, true)}}

	state := NewRolloutStateStore(rolloutTestConfig())
	state.setMode(models.ModeLegacyOnly)
	c, _ := newController(legacy, optimized, state, repository.SeededRandom(1), time.Second)

	opps, variant, err := c.Route(context.Background(), testSnapshot("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantLegacy, variant)
	require.Len(t, opps, 1)
	assert.Equal(t, "A", opps[0].Symbol)
	assert.Zero(t, optimized.callCount())

	state.setMode(models.ModeOptimizedOnly)
	opps, variant, err = c.Route(context.Background(), testSnapshot("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantOptimized, variant)
	require.Len(t, opps, 1)
	assert.Equal(t, "B", opps[0].Symbol)
}

func TestRouteGradualBoundary(t *testing.T) {
	legacy := &fakeDetector{variant: models.VariantLegacy}
	optimized := &fakeDetector{variant: models.VariantOptimized}

	state := NewRolloutStateStore(rolloutTestConfig())
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(30, time.Now())

	// 0.299 maps to 29.9, inside the optimized slice; 0.30 maps to exactly
	// the boundary and goes legacy
	rng := &seqRand{vals: []float64{0.299, 0.30}}
	c, _ := newController(legacy, optimized, state, rng, time.Second)

	_, variant, err := c.Route(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantOptimized, variant)

	_, variant, err = c.Route(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantLegacy, variant)
}

func TestRouteGradualDistribution(t *testing.T) {
	legacy := &fakeDetector{variant: models.VariantLegacy}
	optimized := &fakeDetector{variant: models.VariantOptimized}

	state := NewRolloutStateStore(rolloutTestConfig())
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(30, time.Now())

	c, _ := newController(legacy, optimized, state, repository.SeededRandom(42), time.Second)

	const draws = 10000
	snap := testSnapshot("A")
	for i := 0; i < draws; i++ {
		_, _, err := c.Route(context.Background(), snap)
		require.NoError(t, err)
	}

	share := float64(optimized.callCount()) / draws * 100
	assert.InDelta(t, 30, share, 5)
	assert.Equal(t, draws, legacy.callCount()+optimized.callCount())
}

func TestParallelPrefersOptimized(t *testing.T) {
	legacy := &fakeDetector{variant: models.VariantLegacy, opps: []models.Opportunity{*opp("A", models.PatternBetaDivergence, 0.10, 0.8, true)}}
	optimized := &fakeDetector{variant: models.VariantOptimized, opps: []models.Opportunity{*opp("B", models.PatternBetaDivergence, 0.15, 0.9, true)}}

	state := NewRolloutStateStore(rolloutTestConfig())
	state.setMode(models.ModeParallel)
	c, samples := newController(legacy, optimized, state, repository.SeededRandom(1), time.Second)

	opps, variant, err := c.Route(context.Background(), testSnapshot("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantOptimized, variant)
	require.Len(t, opps, 1)
	assert.Equal(t, "B", opps[0].Symbol)
	assert.Equal(t, 1, legacy.callCount())
	assert.Equal(t, 1, optimized.callCount())

	recs := samples.RecentComparisons(10)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].LegacyCount)
	assert.Equal(t, 1, recs[0].OptimizedCount)
	assert.False(t, recs[0].LegacyFailed)
	assert.False(t, recs[0].OptimizedFailed)
}

func TestParallelFallsBackToLegacyOnFailure(t *testing.T) {
	legacy := &fakeDetector{variant: models.VariantLegacy, opps: []models.Opportunity{*opp("A", models.PatternBetaDivergence, 0.10, 0.8, true)}}
	optimized := &fakeDetector{variant: models.VariantOptimized, err: errors.New("detector offline")}

	state := NewRolloutStateStore(rolloutTestConfig())
	state.setMode(models.ModeParallel)
	c, samples := newController(legacy, optimized, state, repository.SeededRandom(1), time.Second)

	opps, variant, err := c.Route(context.Background(), testSnapshot("A"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantLegacy, variant)
	require.Len(t, opps, 1)
	assert.Equal(t, "A", opps[0].Symbol)

	recs := samples.RecentComparisons(10)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].OptimizedFailed)
	assert.False(t, recs[0].LegacyFailed)

	trail := samples.Trailing(models.VariantOptimized, 10, 0, time.Now())
	require.Len(t, trail, 1)
	assert.Equal(t, 1, trail[0].ErrorCount)
	assert.Zero(t, trail[0].TotalAlerts)
}

func TestInvokeTimeoutRecordedAsError(t *testing.T) {
	legacy := &fakeDetector{variant: models.VariantLegacy}
	optimized := &fakeDetector{variant: models.VariantOptimized, delay: 500 * time.Millisecond, opps: []models.Opportunity{*opp("B", models.PatternBetaDivergence, 0.15, 0.9, true)}}

	state := NewRolloutStateStore(rolloutTestConfig())
	state.setMode(models.ModeOptimizedOnly)
	c, samples := newController(legacy, optimized, state, repository.SeededRandom(1), 20*time.Millisecond)

	opps, variant, err := c.Route(context.Background(), testSnapshot("B"))
	require.NoError(t, err)
	assert.Equal(t, models.VariantOptimized, variant)
	assert.Empty(t, opps)

	trail := samples.Trailing(models.VariantOptimized, 10, 0, time.Now())
	require.Len(t, trail, 1)
	assert.Equal(t, 1, trail[0].ErrorCount)
	assert.Zero(t, trail[0].TotalAlerts)
	assert.Zero(t, trail[0].HighValue)
}

func TestSampleLogTrailing(t *testing.T) {
	log := NewSampleLog(1000)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	log.Append(models.PerformanceSample{Variant: models.VariantOptimized, TotalAlerts: 1, Timestamp: now.Add(-8 * time.Hour)})
	log.Append(models.PerformanceSample{Variant: models.VariantLegacy, TotalAlerts: 2, Timestamp: now.Add(-time.Hour)})
	log.Append(models.PerformanceSample{Variant: models.VariantOptimized, TotalAlerts: 3, Timestamp: now.Add(-30 * time.Minute)})
	log.Append(models.PerformanceSample{Variant: models.VariantOptimized, TotalAlerts: 4, Timestamp: now.Add(-time.Minute)})

	// newest first, variant filtered, stale sample excluded by age
	trail := log.Trailing(models.VariantOptimized, 10, 6*time.Hour, now)
	require.Len(t, trail, 2)
	assert.Equal(t, 4, trail[0].TotalAlerts)
	assert.Equal(t, 3, trail[1].TotalAlerts)

	// count cap applies after filtering
	trail = log.Trailing(models.VariantOptimized, 1, 6*time.Hour, now)
	require.Len(t, trail, 1)
	assert.Equal(t, 4, trail[0].TotalAlerts)

	recent := log.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 4, recent[0].TotalAlerts)
	assert.Equal(t, 3, recent[1].TotalAlerts)
}

func TestSampleLogCapacity(t *testing.T) {
	log := NewSampleLog(5)
	for i := 0; i < 12; i++ {
		log.Append(models.PerformanceSample{Variant: models.VariantOptimized, TotalAlerts: i, Timestamp: time.Now()})
	}
	recent := log.Recent(100)
	require.Len(t, recent, 5)
	assert.Equal(t, 11, recent[0].TotalAlerts)
	assert.Equal(t, 7, recent[4].TotalAlerts)
}
