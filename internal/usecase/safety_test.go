package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DriftWatch/internal/domain/models"
)

func seedSamples(log *SampleLog, variant models.ScannerVariant, n int, s models.PerformanceSample) {
	s.Variant = variant
	s.VariantName = variant.String()
	for i := 0; i < n; i++ {
		log.Append(s)
	}
}

func healthySample(at time.Time) models.PerformanceSample {
	return models.PerformanceSample{
		TotalAlerts: 4,
		HighValue:   2,
		Latency:     100 * time.Millisecond,
		Timestamp:   at,
	}
}

func newMonitor(t *testing.T) (*SafetyMonitor, *RolloutStateStore, *SampleLog) {
	t.Helper()
	cfg := rolloutTestConfig()
	state := NewRolloutStateStore(cfg)
	samples := NewSampleLog(1000)
	m := NewSafetyMonitor(cfg, state, samples, nil, nil, nil)
	return m, state, samples
}

func TestEvaluateHoldsOnInsufficientSamples(t *testing.T) {
	m, state, samples := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(30, now.Add(-48*time.Hour))

	seedSamples(samples, models.VariantOptimized, 5, healthySample(now)) // below min of 10

	m.Evaluate(context.Background())

	assert.Equal(t, 30.0, state.Percentage())
	trail := m.AuditTrail()
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditHold, trail[0].Action)
}

func TestEvaluateAdvancesAfterInterval(t *testing.T) {
	m, state, samples := newMonitor(t)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(30, start)

	seedSamples(samples, models.VariantOptimized, 20, healthySample(start.Add(25*time.Hour)))
	seedSamples(samples, models.VariantLegacy, 20, healthySample(start.Add(25*time.Hour)))

	// inside the advancement interval: healthy but held
	m.SetClock(fixedClock(start.Add(time.Hour)))
	m.Evaluate(context.Background())
	assert.Equal(t, 30.0, state.Percentage())

	m.SetClock(fixedClock(start.Add(25 * time.Hour)))
	m.Evaluate(context.Background())
	assert.Equal(t, 40.0, state.Percentage())

	trail := m.AuditTrail()
	require.NotEmpty(t, trail)
	last := trail[len(trail)-1]
	assert.Equal(t, models.AuditAdvance, last.Action)
	assert.Equal(t, 40.0, last.Percentage)

	// the advancement stamps a fresh adjustment time
	assert.Equal(t, start.Add(25*time.Hour), state.Snapshot().LastAdjustment)
}

func TestEvaluateCapsAtHundred(t *testing.T) {
	m, state, samples := newMonitor(t)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(95, start)

	now := start.Add(25 * time.Hour)
	seedSamples(samples, models.VariantOptimized, 20, healthySample(now))
	m.SetClock(fixedClock(now))

	m.Evaluate(context.Background())
	assert.Equal(t, 100.0, state.Percentage())

	// at 100 nothing advances further and nothing is recorded
	before := len(m.AuditTrail())
	m.SetClock(fixedClock(now.Add(25 * time.Hour)))
	seedSamples(samples, models.VariantOptimized, 20, healthySample(now.Add(25*time.Hour)))
	m.Evaluate(context.Background())
	assert.Equal(t, 100.0, state.Percentage())
	assert.Len(t, m.AuditTrail(), before)
}

func TestEvaluateNoAdvanceOutsideGradualMode(t *testing.T) {
	m, state, samples := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))
	// parallel mode from dual enablement
	require.Equal(t, models.ModeParallel, state.Mode())

	seedSamples(samples, models.VariantOptimized, 20, healthySample(now))
	m.Evaluate(context.Background())

	assert.Equal(t, 0.0, state.Percentage())
	assert.Equal(t, models.ModeParallel, state.Mode())
}

func TestEvaluateElevatedErrorRateRollsBack(t *testing.T) {
	m, state, samples := newMonitor(t)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(50, start)
	now := start.Add(25 * time.Hour)
	m.SetClock(fixedClock(now))

	// 2 errors over 25 samples: rate 0.08, above max 0.05. The bound breach
	// alone forces rollback, no consecutive run required.
	seedSamples(samples, models.VariantOptimized, 23, healthySample(now))
	bad := healthySample(now)
	bad.ErrorCount = 1
	bad.TotalAlerts = 0
	bad.HighValue = 0
	seedSamples(samples, models.VariantOptimized, 2, bad)

	m.Evaluate(context.Background())

	assert.Equal(t, models.ModeLegacyOnly, state.Mode())
	assert.Equal(t, 0.0, state.Percentage())
	trail := m.AuditTrail()
	require.NotEmpty(t, trail)
	last := trail[len(trail)-1]
	assert.Equal(t, models.AuditRollback, last.Action)
	assert.Contains(t, last.Reason, "error rate")
}

func TestEvaluateConsecutiveCriticalRollsBack(t *testing.T) {
	m, state, samples := newMonitor(t)
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(50, start)
	now := start.Add(time.Hour)
	m.SetClock(fixedClock(now))

	bad := healthySample(now)
	bad.ErrorCount = 1
	bad.TotalAlerts = 0
	bad.HighValue = 0

	// 60 healthy then 2 critical: rate 2/62 stays under max 0.05 and the
	// run is one short of the limit
	seedSamples(samples, models.VariantOptimized, 60, healthySample(now))
	seedSamples(samples, models.VariantOptimized, 2, bad)
	m.Evaluate(context.Background())
	assert.Equal(t, models.ModeGradualRollout, state.Mode(), "two critical samples are not enough")

	// a third consecutive critical sample trips the run limit even though
	// the window rate 3/63 is still under max
	seedSamples(samples, models.VariantOptimized, 1, bad)
	m.Evaluate(context.Background())
	assert.Equal(t, models.ModeLegacyOnly, state.Mode())
	assert.Equal(t, 0.0, state.Percentage())

	trail := m.AuditTrail()
	require.NotEmpty(t, trail)
	last := trail[len(trail)-1]
	assert.Equal(t, models.AuditRollback, last.Action)
	assert.Contains(t, last.Reason, "consecutive critical")
}

func TestForceRollbackIdempotent(t *testing.T) {
	m, state, _ := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))
	state.setMode(models.ModeGradualRollout)
	state.setPercentage(60, now)

	m.ForceRollback(context.Background(), "operator: latency regression")
	assert.Equal(t, models.ModeLegacyOnly, state.Mode())
	assert.Equal(t, 0.0, state.Percentage())
	first := len(m.AuditTrail())

	m.ForceRollback(context.Background(), "operator: latency regression")
	assert.Len(t, m.AuditTrail(), first, "repeat rollback records nothing")
}

func TestBeginGradualRolloutValidation(t *testing.T) {
	m, state, _ := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))

	require.Error(t, m.BeginGradualRollout(context.Background(), -1))
	require.Error(t, m.BeginGradualRollout(context.Background(), 101))

	require.NoError(t, m.BeginGradualRollout(context.Background(), 10))
	assert.Equal(t, models.ModeGradualRollout, state.Mode())
	assert.Equal(t, 10.0, state.Percentage())

	trail := m.AuditTrail()
	require.NotEmpty(t, trail)
	assert.Equal(t, models.AuditModeChange, trail[len(trail)-1].Action)
}

func TestBeginGradualRolloutRequiresOptimized(t *testing.T) {
	cfg := rolloutTestConfig()
	cfg.Rollout.OptimizedEnabled = false
	state := NewRolloutStateStore(cfg)
	m := NewSafetyMonitor(cfg, state, NewSampleLog(100), nil, nil, nil)

	require.Error(t, m.BeginGradualRollout(context.Background(), 10))
	assert.Equal(t, models.ModeLegacyOnly, state.Mode())
}

func TestBeginGradualRolloutModeGuard(t *testing.T) {
	m, state, _ := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))

	// not reachable from the rolled-back state
	state.setMode(models.ModeLegacyOnly)
	require.Error(t, m.BeginGradualRollout(context.Background(), 10))
	assert.Equal(t, models.ModeLegacyOnly, state.Mode())

	state.setMode(models.ModeParallel)
	require.NoError(t, m.BeginGradualRollout(context.Background(), 40))
	assert.Equal(t, 40.0, state.Percentage())

	// within the rollout the percentage only moves up
	require.Error(t, m.BeginGradualRollout(context.Background(), 30))
	assert.Equal(t, 40.0, state.Percentage())

	require.NoError(t, m.BeginGradualRollout(context.Background(), 60))
	assert.Equal(t, 60.0, state.Percentage())
}

func TestConfirmCutoverGuard(t *testing.T) {
	m, state, _ := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))

	err := m.ConfirmCutover(context.Background())
	require.ErrorIs(t, err, ErrCutoverNotReady)

	state.setMode(models.ModeGradualRollout)
	state.setPercentage(90, now)
	err = m.ConfirmCutover(context.Background())
	require.ErrorIs(t, err, ErrCutoverNotReady)

	state.setPercentage(100, now)
	require.NoError(t, m.ConfirmCutover(context.Background()))
	assert.Equal(t, models.ModeOptimizedOnly, state.Mode())
}

func TestAuditPruning(t *testing.T) {
	cfg := rolloutTestConfig()
	cfg.Safety.AuditRetention = time.Hour
	cfg.Safety.AuditCapacity = 3
	state := NewRolloutStateStore(cfg)
	samples := NewSampleLog(100)
	m := NewSafetyMonitor(cfg, state, samples, nil, nil, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// five holds in quick succession: capacity keeps the newest three
	for i := 0; i < 5; i++ {
		m.SetClock(fixedClock(base.Add(time.Duration(i) * time.Minute)))
		m.Evaluate(context.Background()) // insufficient samples, records a hold
	}
	trail := m.AuditTrail()
	require.Len(t, trail, 3)
	assert.Equal(t, base.Add(4*time.Minute), trail[2].Timestamp)

	// an event past the retention window prunes everything older
	m.SetClock(fixedClock(base.Add(2 * time.Hour)))
	m.Evaluate(context.Background())
	trail = m.AuditTrail()
	require.Len(t, trail, 1)
	assert.Equal(t, base.Add(2*time.Hour), trail[0].Timestamp)
}

func TestEvaluateQualityAndLatencyRatios(t *testing.T) {
	t.Run("quality below baseline", func(t *testing.T) {
		m, state, samples := newMonitor(t)
		start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		state.setMode(models.ModeGradualRollout)
		state.setPercentage(30, start)
		now := start.Add(25 * time.Hour)
		m.SetClock(fixedClock(now))

		weak := healthySample(now)
		weak.TotalAlerts = 1
		weak.HighValue = 1
		seedSamples(samples, models.VariantOptimized, 20, weak)
		seedSamples(samples, models.VariantLegacy, 20, healthySample(now)) // 4 alerts each

		m.Evaluate(context.Background())
		assert.Equal(t, 30.0, state.Percentage())
		trail := m.AuditTrail()
		require.NotEmpty(t, trail)
		assert.Equal(t, models.AuditHold, trail[len(trail)-1].Action)
	})

	t.Run("latency above baseline", func(t *testing.T) {
		m, state, samples := newMonitor(t)
		start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		state.setMode(models.ModeGradualRollout)
		state.setPercentage(30, start)
		now := start.Add(25 * time.Hour)
		m.SetClock(fixedClock(now))

		slow := healthySample(now)
		slow.Latency = 300 * time.Millisecond
		seedSamples(samples, models.VariantOptimized, 20, slow)
		seedSamples(samples, models.VariantLegacy, 20, healthySample(now)) // 100ms baseline

		m.Evaluate(context.Background())
		assert.Equal(t, 30.0, state.Percentage())
	})

	t.Run("no baseline passes vacuously", func(t *testing.T) {
		m, state, samples := newMonitor(t)
		start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		state.setMode(models.ModeGradualRollout)
		state.setPercentage(30, start)
		now := start.Add(25 * time.Hour)
		m.SetClock(fixedClock(now))

		slow := healthySample(now)
		slow.Latency = 2 * time.Second
		slow.TotalAlerts = 1
		slow.HighValue = 1
		seedSamples(samples, models.VariantOptimized, 20, slow)

		m.Evaluate(context.Background())
		assert.Equal(t, 40.0, state.Percentage())
	})
}

func TestExportAssemblesReport(t *testing.T) {
	m, _, samples := newMonitor(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(fixedClock(now))
	seedSamples(samples, models.VariantOptimized, 3, healthySample(now))
	require.NoError(t, m.BeginGradualRollout(context.Background(), 40))

	exp := m.Export(2)
	assert.Equal(t, now, exp.GeneratedAt)
	assert.Equal(t, models.ModeGradualRollout, exp.Rollout.Mode)
	assert.Equal(t, 40.0, exp.Rollout.Percentage)
	assert.Len(t, exp.Samples, 2)
	assert.Len(t, exp.Audit, 1)
}
