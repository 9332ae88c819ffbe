package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	"DriftWatch/pkg/config"
	applogger "DriftWatch/pkg/logger"
)

var ErrCutoverNotReady = errors.New("cutover requires rollout percentage 100")

// SafetyMonitor is the single writer of canary state. It evaluates the
// optimized detector's trailing performance on a cron cadence, advances the
// gradual rollout when safe, and rolls back on sustained degradation.
type SafetyMonitor struct {
	cfg     *config.Config
	state   *RolloutStateStore
	samples *SampleLog
	store   domrepo.AlertStore
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID

	mu            sync.Mutex
	audit         []models.AuditEvent
	rollbackFired bool
}

func NewSafetyMonitor(
	cfg *config.Config,
	state *RolloutStateStore,
	samples *SampleLog,
	store domrepo.AlertStore,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *SafetyMonitor {
	return &SafetyMonitor{
		cfg:     cfg,
		state:   state,
		samples: samples,
		store:   store,
		metrics: metrics,
		l:       l,
		now:     time.Now,
	}
}

// SetClock overrides the time source, test use only.
func (m *SafetyMonitor) SetClock(now func() time.Time) { m.now = now }

// Start schedules periodic evaluation per safety.cron_spec.
func (m *SafetyMonitor) Start() error {
	m.cron = cron.New()
	id, err := m.cron.AddFunc(m.cfg.Safety.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		m.Evaluate(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule safety evaluation: %w", err)
	}
	m.entryID = id
	m.cron.Start()
	return nil
}

func (m *SafetyMonitor) Stop() {
	if m.cron != nil {
		ctx := m.cron.Stop()
		<-ctx.Done()
	}
}

// Evaluate runs one governance pass: check the safety predicate over the
// trailing window, then advance, hold, or roll back.
func (m *SafetyMonitor) Evaluate(ctx context.Context) {
	st := m.state.Snapshot()
	now := m.now()

	opt := m.samples.Trailing(models.VariantOptimized, m.cfg.Safety.SampleWindow, m.cfg.Safety.SampleMaxAge, now)
	leg := m.samples.Trailing(models.VariantLegacy, m.cfg.Safety.SampleWindow, m.cfg.Safety.SampleMaxAge, now)

	if len(opt) < m.cfg.Safety.MinSamples {
		m.record(ctx, models.AuditHold, fmt.Sprintf("insufficient samples: %d < %d", len(opt), m.cfg.Safety.MinSamples), st)
		return
	}

	verdict := m.assess(opt, leg)

	if verdict.rollback {
		m.ForceRollback(ctx, verdict.reason)
		return
	}
	if !verdict.safe {
		m.record(ctx, models.AuditHold, verdict.reason, st)
		return
	}

	// safe: reset the rollback latch so a future breach can fire again
	m.mu.Lock()
	m.rollbackFired = false
	m.mu.Unlock()

	if st.Mode != models.ModeGradualRollout {
		return
	}
	if st.Percentage >= 100 {
		return
	}
	if now.Sub(st.LastAdjustment) < m.cfg.Safety.RolloutInterval {
		m.record(ctx, models.AuditHold, "advancement interval not elapsed", st)
		return
	}

	next := st.Percentage + m.cfg.Safety.RolloutIncrement
	if next > 100 {
		next = 100
	}
	m.state.setPercentage(next, now)
	if m.metrics != nil {
		m.metrics.RecordRolloutPercentage(next)
	}
	st = m.state.Snapshot()
	m.record(ctx, models.AuditAdvance, fmt.Sprintf("trailing window healthy, advanced to %.0f%%", next), st)
	if m.l != nil {
		m.l.Info("rollout advanced", applogger.Any("percentage", next))
	}
}

type safetyVerdict struct {
	safe     bool
	rollback bool
	reason   string
}

// assess applies the safety predicate to the trailing windows. The error-rate
// bound and a run of consecutive critical samples are hard thresholds: either
// alone forces rollback. The remaining predicate failures only hold
// advancement. Legacy samples provide the baseline for quality and latency
// ratios; with no baseline those ratios pass vacuously.
func (m *SafetyMonitor) assess(opt, leg []models.PerformanceSample) safetyVerdict {
	optStats := summarize(opt)
	thr := m.cfg.Safety

	if optStats.errorRate > thr.MaxErrorRate {
		return safetyVerdict{rollback: true, reason: fmt.Sprintf("error rate %.3f exceeds %.3f", optStats.errorRate, thr.MaxErrorRate)}
	}
	if run := criticalRun(opt, thr.CriticalErrorRate); thr.MaxConsecCritical > 0 && run >= thr.MaxConsecCritical {
		return safetyVerdict{rollback: true, reason: fmt.Sprintf("%d consecutive critical samples", run)}
	}
	if optStats.profitableRate < thr.MinProfitableRate {
		return safetyVerdict{reason: fmt.Sprintf("profitable rate %.3f below %.3f", optStats.profitableRate, thr.MinProfitableRate)}
	}

	if len(leg) > 0 {
		legStats := summarize(leg)
		if legStats.avgAlerts > 0 {
			quality := optStats.avgAlerts / legStats.avgAlerts
			if quality < thr.MinQualityRatio {
				return safetyVerdict{reason: fmt.Sprintf("quality ratio %.3f below %.3f", quality, thr.MinQualityRatio)}
			}
		}
		if legStats.avgLatency > 0 {
			ratio := optStats.avgLatency / legStats.avgLatency
			if ratio > thr.MaxLatencyRatio {
				return safetyVerdict{reason: fmt.Sprintf("latency ratio %.3f exceeds %.3f", ratio, thr.MaxLatencyRatio)}
			}
		}
	}
	return safetyVerdict{safe: true}
}

type windowStats struct {
	errorRate      float64
	profitableRate float64
	avgAlerts      float64
	avgLatency     float64
}

func summarize(samples []models.PerformanceSample) windowStats {
	if len(samples) == 0 {
		return windowStats{}
	}
	var errs, alerts, high int
	var latency time.Duration
	for _, s := range samples {
		errs += s.ErrorCount
		alerts += s.TotalAlerts
		high += s.HighValue
		latency += s.Latency
	}
	n := float64(len(samples))
	st := windowStats{
		errorRate:  float64(errs) / n,
		avgAlerts:  float64(alerts) / n,
		avgLatency: (time.Duration(int64(latency) / int64(len(samples)))).Seconds(),
	}
	if alerts > 0 {
		st.profitableRate = float64(high) / float64(alerts)
	}
	return st
}

// criticalRun counts the run of critical samples at the newest end of the
// trailing window (samples arrive newest first). A sample is critical when
// its own error count exceeds the critical per-sample rate.
func criticalRun(samples []models.PerformanceSample, criticalRate float64) int {
	run := 0
	for _, s := range samples {
		if float64(s.ErrorCount) <= criticalRate {
			break
		}
		run++
	}
	return run
}

// BeginGradualRollout switches routing to percentage-based selection,
// starting at the given percentage. Only the parallel mode may enter the
// gradual rollout; within it the percentage can be raised but never lowered
// outside a forced rollback.
func (m *SafetyMonitor) BeginGradualRollout(ctx context.Context, startPct float64) error {
	if startPct < 0 || startPct > 100 {
		return fmt.Errorf("start percentage %.1f out of range [0, 100]", startPct)
	}
	if !m.cfg.Rollout.OptimizedEnabled {
		return errors.New("optimized detector is not enabled")
	}
	st := m.state.Snapshot()
	switch st.Mode {
	case models.ModeParallel:
	case models.ModeGradualRollout:
		if startPct < st.Percentage {
			return fmt.Errorf("start percentage %.1f below current %.1f", startPct, st.Percentage)
		}
	default:
		return fmt.Errorf("gradual rollout starts from parallel mode, currently %s", st.ModeName)
	}
	now := m.now()
	m.state.setMode(models.ModeGradualRollout)
	m.state.setPercentage(startPct, now)
	if m.metrics != nil {
		m.metrics.RecordRolloutPercentage(startPct)
	}
	st = m.state.Snapshot()
	m.record(ctx, models.AuditModeChange, fmt.Sprintf("gradual rollout started at %.0f%%", startPct), st)
	return nil
}

// ConfirmCutover completes the migration. Only valid once the gradual
// rollout has reached 100%.
func (m *SafetyMonitor) ConfirmCutover(ctx context.Context) error {
	st := m.state.Snapshot()
	if st.Mode != models.ModeGradualRollout || st.Percentage < 100 {
		return ErrCutoverNotReady
	}
	m.state.setMode(models.ModeOptimizedOnly)
	st = m.state.Snapshot()
	m.record(ctx, models.AuditModeChange, "cutover confirmed, optimized detector serving all traffic", st)
	if m.l != nil {
		m.l.Info("cutover confirmed")
	}
	return nil
}

// ForceRollback returns routing to the legacy detector from any mode.
// Idempotent: repeated calls while already rolled back record nothing.
func (m *SafetyMonitor) ForceRollback(ctx context.Context, reason string) {
	m.mu.Lock()
	already := m.rollbackFired
	m.rollbackFired = true
	m.mu.Unlock()

	st := m.state.Snapshot()
	if already && st.Mode == models.ModeLegacyOnly && st.Percentage == 0 {
		return
	}

	m.state.resetForRollback()
	if m.metrics != nil {
		m.metrics.RecordRolloutPercentage(0)
		m.metrics.RecordError("rollback")
	}
	st = m.state.Snapshot()
	m.record(ctx, models.AuditRollback, reason, st)
	if m.l != nil {
		m.l.Error("forced rollback", applogger.String("reason", reason))
	}
}

// record appends an immutable audit event, prunes by age and capacity, and
// mirrors the event to history storage best-effort.
func (m *SafetyMonitor) record(ctx context.Context, action models.AuditAction, reason string, st models.RolloutState) {
	ev := models.AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		ActionName: action.String(),
		Reason:     reason,
		Mode:       st.ModeName,
		Percentage: st.Percentage,
		Timestamp:  m.now().UTC(),
	}

	m.mu.Lock()
	m.audit = append(m.audit, ev)
	cutoff := m.now().Add(-m.cfg.Safety.AuditRetention)
	firstKept := sort.Search(len(m.audit), func(i int) bool {
		return m.audit[i].Timestamp.After(cutoff)
	})
	if firstKept > 0 {
		m.audit = m.audit[firstKept:]
	}
	if limit := m.cfg.Safety.AuditCapacity; limit > 0 && len(m.audit) > limit {
		m.audit = m.audit[len(m.audit)-limit:]
	}
	m.mu.Unlock()

	if m.store != nil {
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.StoreAudit(sctx, &ev); err != nil && m.l != nil {
				m.l.Warn("audit history write failed", applogger.Error(err))
			}
		}()
	}
}

// AuditTrail returns a copy of the retained audit events, oldest first.
func (m *SafetyMonitor) AuditTrail() []models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditEvent, len(m.audit))
	copy(out, m.audit)
	return out
}

// Export assembles the read-only report for dashboards.
func (m *SafetyMonitor) Export(sampleLimit int) *models.MetricsExport {
	if sampleLimit <= 0 {
		sampleLimit = 100
	}
	return &models.MetricsExport{
		GeneratedAt: m.now().UTC(),
		Rollout:     m.state.Snapshot(),
		Samples:     m.samples.Recent(sampleLimit),
		Comparisons: m.samples.RecentComparisons(sampleLimit),
		Audit:       m.AuditTrail(),
	}
}
