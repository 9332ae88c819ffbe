package usecase

import (
	"context"
	"sync"
	"time"

	"DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	"DriftWatch/pkg/config"
	applogger "DriftWatch/pkg/logger"
)

// RolloutStateStore encapsulates the canary state under single-writer
// discipline: the safety monitor (and the forced-rollback entry point) are
// the only mutators, everything else reads.
type RolloutStateStore struct {
	mu             sync.RWMutex
	mode           models.RolloutMode
	percentage     float64
	lastAdjustment time.Time
	thresholds     models.SafetyThresholds
}

// NewRolloutStateStore derives the initial mode from static enablement
// configuration.
func NewRolloutStateStore(cfg *config.Config) *RolloutStateStore {
	mode := models.ModeLegacyOnly
	switch {
	case cfg.Rollout.LegacyEnabled && cfg.Rollout.OptimizedEnabled:
		mode = models.ModeParallel
	case cfg.Rollout.OptimizedEnabled:
		mode = models.ModeOptimizedOnly
	}
	return &RolloutStateStore{
		mode: mode,
		thresholds: models.SafetyThresholds{
			MaxErrorRate:      cfg.Safety.MaxErrorRate,
			CriticalErrorRate: cfg.Safety.CriticalErrorRate,
			MinQualityRatio:   cfg.Safety.MinQualityRatio,
			MaxLatencyRatio:   cfg.Safety.MaxLatencyRatio,
			MinProfitableRate: cfg.Safety.MinProfitableRate,
			MaxConsecCritical: cfg.Safety.MaxConsecCritical,
			RolloutIncrement:  cfg.Safety.RolloutIncrement,
			RolloutInterval:   cfg.Safety.RolloutInterval,
		},
	}
}

func (s *RolloutStateStore) Mode() models.RolloutMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *RolloutStateStore) Percentage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.percentage
}

// Snapshot returns a copy of the full state for reads and exports.
func (s *RolloutStateStore) Snapshot() models.RolloutState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.RolloutState{
		Mode:           s.mode,
		ModeName:       s.mode.String(),
		Percentage:     s.percentage,
		LastAdjustment: s.lastAdjustment,
		Thresholds:     s.thresholds,
	}
}

// mutators are package-private: only the safety monitor calls them.

func (s *RolloutStateStore) setMode(m models.RolloutMode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *RolloutStateStore) setPercentage(p float64, at time.Time) {
	s.mu.Lock()
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.percentage = p
	s.lastAdjustment = at
	s.mu.Unlock()
}

func (s *RolloutStateStore) resetForRollback() {
	s.mu.Lock()
	s.mode = models.ModeLegacyOnly
	s.percentage = 0
	s.mu.Unlock()
}

// SampleLog retains recent performance samples and comparison records in a
// bounded in-memory ring. Appended by the rollout controller, read-only to
// the safety monitor.
type SampleLog struct {
	mu          sync.Mutex
	cap         int
	samples     []models.PerformanceSample
	comparisons []models.ComparisonRecord
}

func NewSampleLog(capacity int) *SampleLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &SampleLog{cap: capacity}
}

func (l *SampleLog) Append(s models.PerformanceSample) {
	l.mu.Lock()
	l.samples = append(l.samples, s)
	if len(l.samples) > l.cap {
		l.samples = l.samples[len(l.samples)-l.cap:]
	}
	l.mu.Unlock()
}

func (l *SampleLog) AppendComparison(c models.ComparisonRecord) {
	l.mu.Lock()
	l.comparisons = append(l.comparisons, c)
	if len(l.comparisons) > l.cap {
		l.comparisons = l.comparisons[len(l.comparisons)-l.cap:]
	}
	l.mu.Unlock()
}

// Trailing returns up to n samples for a variant no older than maxAge.
func (l *SampleLog) Trailing(variant models.ScannerVariant, n int, maxAge time.Duration, now time.Time) []models.PerformanceSample {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-maxAge)
	out := make([]models.PerformanceSample, 0, n)
	for i := len(l.samples) - 1; i >= 0 && len(out) < n; i-- {
		s := l.samples[i]
		if s.Variant != variant {
			continue
		}
		if maxAge > 0 && s.Timestamp.Before(cutoff) {
			break
		}
		out = append(out, s)
	}
	return out
}

// Recent returns the latest n samples across both variants, newest first.
func (l *SampleLog) Recent(n int) []models.PerformanceSample {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.samples) {
		n = len(l.samples)
	}
	out := make([]models.PerformanceSample, n)
	for i := 0; i < n; i++ {
		out[i] = l.samples[len(l.samples)-1-i]
	}
	return out
}

// RecentComparisons returns the latest n comparison records, newest first.
func (l *SampleLog) RecentComparisons(n int) []models.ComparisonRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.comparisons) {
		n = len(l.comparisons)
	}
	out := make([]models.ComparisonRecord, n)
	for i := 0; i < n; i++ {
		out[i] = l.comparisons[len(l.comparisons)-1-i]
	}
	return out
}

// RolloutController routes each scan to the legacy detector, the optimized
// detector, or both, per the current canary mode, and records comparative
// performance.
type RolloutController struct {
	legacy    domrepo.Detector
	optimized domrepo.Detector
	state     *RolloutStateStore
	samples   *SampleLog
	store     domrepo.AlertStore // optional history sink for samples
	metrics   domrepo.Metrics
	rng       domrepo.RandomSource
	timeout   time.Duration
	l         *applogger.Logger
}

func NewRolloutController(
	legacy, optimized domrepo.Detector,
	state *RolloutStateStore,
	samples *SampleLog,
	store domrepo.AlertStore,
	metrics domrepo.Metrics,
	rng domrepo.RandomSource,
	timeout time.Duration,
	l *applogger.Logger,
) *RolloutController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RolloutController{
		legacy:    legacy,
		optimized: optimized,
		state:     state,
		samples:   samples,
		store:     store,
		metrics:   metrics,
		rng:       rng,
		timeout:   timeout,
		l:         l,
	}
}

// Route executes one scan pass through the detector(s) selected by the
// current mode and reports which variant's result is returned.
func (c *RolloutController) Route(ctx context.Context, snap *models.MarketSnapshot) ([]models.Opportunity, models.ScannerVariant, error) {
	switch c.state.Mode() {
	case models.ModeLegacyOnly:
		res := c.invoke(ctx, c.legacy, snap)
		return res.opps, models.VariantLegacy, nil
	case models.ModeOptimizedOnly:
		res := c.invoke(ctx, c.optimized, snap)
		return res.opps, models.VariantOptimized, nil
	case models.ModeGradualRollout:
		if c.rng.Float64()*100 < c.state.Percentage() {
			res := c.invoke(ctx, c.optimized, snap)
			return res.opps, models.VariantOptimized, nil
		}
		res := c.invoke(ctx, c.legacy, snap)
		return res.opps, models.VariantLegacy, nil
	case models.ModeParallel:
		opps, variant := c.parallel(ctx, snap)
		return opps, variant, nil
	}
	res := c.invoke(ctx, c.legacy, snap)
	return res.opps, models.VariantLegacy, nil
}

type invocation struct {
	opps   []models.Opportunity
	failed bool
	sample models.PerformanceSample
}

// invoke runs one detector under its own timeout. Errors and timeouts yield
// an empty result recorded as an error in the variant's sample.
func (c *RolloutController) invoke(ctx context.Context, d domrepo.Detector, snap *models.MarketSnapshot) invocation {
	variant := d.Variant()
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		opps []models.Opportunity
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		opps, err := d.Detect(dctx, snap)
		ch <- result{opps: opps, err: err}
	}()

	var (
		opps []models.Opportunity
		derr error
	)
	select {
	case r := <-ch:
		opps, derr = r.opps, r.err
	case <-dctx.Done():
		derr = &models.DetectorUnavailable{Variant: variant, Err: dctx.Err()}
	}

	latency := time.Since(start)
	sample := buildSample(variant, opps, latency)
	if derr != nil {
		sample.ErrorCount = 1
		opps = nil
		sample.TotalAlerts = 0
		sample.HighValue = 0
		sample.AvgMagnitude = 0
		sample.AvgConfidence = 0
		if c.l != nil {
			c.l.Warn("detector invocation failed",
				applogger.String("variant", variant.String()),
				applogger.Error(derr),
			)
		}
		if c.metrics != nil {
			c.metrics.RecordError("detector_" + variant.String())
		}
	}
	c.record(ctx, sample)
	if c.metrics != nil {
		c.metrics.RecordDetectorLatency(variant.String(), latency.Seconds())
	}
	return invocation{opps: opps, failed: derr != nil, sample: sample}
}

// parallel runs both detectors concurrently, each under an independent
// timeout, and prefers the optimized result when it is non-empty.
func (c *RolloutController) parallel(ctx context.Context, snap *models.MarketSnapshot) ([]models.Opportunity, models.ScannerVariant) {
	var (
		wg  sync.WaitGroup
		leg invocation
		opt invocation
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		leg = c.invoke(ctx, c.legacy, snap)
	}()
	go func() {
		defer wg.Done()
		opt = c.invoke(ctx, c.optimized, snap)
	}()
	wg.Wait()

	c.samples.AppendComparison(models.ComparisonRecord{
		Timestamp:       time.Now().UTC(),
		LegacyCount:     leg.sample.TotalAlerts,
		OptimizedCount:  opt.sample.TotalAlerts,
		LegacyAvgMag:    leg.sample.AvgMagnitude,
		OptimizedAvgMag: opt.sample.AvgMagnitude,
		LegacyHigh:      leg.sample.HighValue,
		OptimizedHigh:   opt.sample.HighValue,
		LegacyFailed:    leg.failed,
		OptimizedFailed: opt.failed,
	})

	if len(opt.opps) > 0 {
		return opt.opps, models.VariantOptimized
	}
	return leg.opps, models.VariantLegacy
}

func (c *RolloutController) record(ctx context.Context, s models.PerformanceSample) {
	c.samples.Append(s)
	if c.store != nil {
		// history write is best-effort and off the scan path
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.store.StoreSample(sctx, &s); err != nil && c.l != nil {
				c.l.Warn("sample history write failed", applogger.Error(err))
			}
		}()
	}
}

func buildSample(variant models.ScannerVariant, opps []models.Opportunity, latency time.Duration) models.PerformanceSample {
	s := models.PerformanceSample{
		Variant:     variant,
		VariantName: variant.String(),
		TotalAlerts: len(opps),
		Latency:     latency,
		Timestamp:   time.Now().UTC(),
	}
	if len(opps) == 0 {
		return s
	}
	var magSum, confSum float64
	for _, o := range opps {
		magSum += abs(o.Magnitude)
		confSum += o.Confidence
		if o.HighValue() {
			s.HighValue++
		}
	}
	s.AvgMagnitude = magSum / float64(len(opps))
	s.AvgConfidence = confSum / float64(len(opps))
	return s
}
