package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	domsvc "DriftWatch/internal/domain/service"
	"DriftWatch/pkg/config"
	applogger "DriftWatch/pkg/logger"
)

// TierRule is the runtime form of a configured tier.
type TierRule struct {
	ID               string
	MinMagnitude     float64
	MinConfidence    float64
	ScanInterval     time.Duration
	MaxAlertsPerHour int
	Cooldown         time.Duration
	Override         bool
	Enabled          bool
}

// ScoreWeights are the value-score mixing weights.
type ScoreWeights struct {
	Magnitude  float64
	Confidence float64
	Pattern    float64
	Volume     float64
	Risk       float64
}

// EmergencyOverride is the stricter absolute threshold pair that bypasses
// hourly limits and cooldowns.
type EmergencyOverride struct {
	MinMagnitude  float64
	MinConfidence float64
}

// RestrictedProfile is the zero-tolerance configuration profile.
type RestrictedProfile struct {
	Patterns        map[models.PatternType]bool
	MinMagnitude    float64
	MinConfidence   float64
	Cooldown        time.Duration
	MaxAlertsPerDay int
}

// ScannerConfig bundles everything the tiered scanner needs at runtime.
type ScannerConfig struct {
	Tiers          []TierRule
	Weights        ScoreWeights
	PatternWeights map[models.PatternType]float64
	MinValueScore  float64
	Workers        int
	Emergency      EmergencyOverride
	Restricted     *RestrictedProfile
}

// NewScannerConfig converts the loaded configuration into runtime form.
func NewScannerConfig(cfg *config.Config) ScannerConfig {
	sc := ScannerConfig{
		Weights: ScoreWeights{
			Magnitude:  cfg.Scanner.Weights.Magnitude,
			Confidence: cfg.Scanner.Weights.Confidence,
			Pattern:    cfg.Scanner.Weights.Pattern,
			Volume:     cfg.Scanner.Weights.Volume,
			Risk:       cfg.Scanner.Weights.Risk,
		},
		PatternWeights: make(map[models.PatternType]float64, len(cfg.Scanner.PatternWeights)),
		MinValueScore:  cfg.Scanner.MinValueScore,
		Workers:        cfg.Scanner.Workers,
		Emergency: EmergencyOverride{
			MinMagnitude:  cfg.Scanner.Emergency.MinMagnitude,
			MinConfidence: cfg.Scanner.Emergency.MinConfidence,
		},
	}
	for _, p := range models.AllPatterns() {
		if w, ok := cfg.Scanner.PatternWeights[p.String()]; ok {
			sc.PatternWeights[p] = w
		}
	}
	for _, t := range cfg.Scanner.Tiers {
		sc.Tiers = append(sc.Tiers, TierRule{
			ID:               t.ID,
			MinMagnitude:     t.MinMagnitude,
			MinConfidence:    t.MinConfidence,
			ScanInterval:     t.ScanInterval,
			MaxAlertsPerHour: t.MaxAlertsPerHour,
			Cooldown:         t.Cooldown,
			Override:         t.Override,
			Enabled:          t.Enabled,
		})
	}
	// tiers ordered by ascending entry magnitude so candidates land in the
	// highest qualifying one
	sort.Slice(sc.Tiers, func(i, j int) bool {
		return sc.Tiers[i].MinMagnitude < sc.Tiers[j].MinMagnitude
	})
	if r := cfg.Scanner.Restricted; r.Enabled {
		prof := &RestrictedProfile{
			Patterns:        make(map[models.PatternType]bool, len(r.Patterns)),
			MinMagnitude:    r.MinMagnitude,
			MinConfidence:   r.MinConfidence,
			Cooldown:        r.Cooldown,
			MaxAlertsPerDay: r.MaxAlertsPerDay,
		}
		for _, name := range r.Patterns {
			for _, p := range models.AllPatterns() {
				if p.String() == name {
					prof.Patterns[p] = true
				}
			}
		}
		sc.Restricted = prof
	}
	return sc
}

// TieredScanner owns tier cadences, invokes analyzers per due tier, scores and
// filters candidates, and throttles them into accepted opportunities.
type TieredScanner struct {
	cfg       ScannerConfig
	analyzers []domsvc.PatternAnalyzer
	state     *ScanState
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

func NewTieredScanner(cfg ScannerConfig, analyzers []domsvc.PatternAnalyzer, metrics domrepo.Metrics, l *applogger.Logger) *TieredScanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &TieredScanner{
		cfg:       cfg,
		analyzers: analyzers,
		state:     NewScanState(),
		metrics:   metrics,
		l:         l,
		now:       time.Now,
	}
}

// State exposes the scanner-owned state for the daily reset job.
func (s *TieredScanner) State() *ScanState { return s.state }

// SetClock overrides the scanner clock (tests).
func (s *TieredScanner) SetClock(fn func() time.Time) { s.now = fn }

type candidate struct {
	opp  models.Opportunity
	tier *TierRule
}

// Scan runs one pass over the snapshot. Accepted opportunities are returned
// in descending value-score order. State commits only after the whole
// filter/throttle pipeline succeeds; a cancelled pass commits nothing.
func (s *TieredScanner) Scan(ctx context.Context, snap *models.MarketSnapshot) ([]models.Opportunity, error) {
	now := s.now()
	due := s.dueTiers(now)
	if len(due) == 0 {
		return nil, nil
	}

	raw := s.collect(ctx, snap)
	cands := s.qualify(raw, due)

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].opp, cands[j].opp
		if a.ValueScore != b.ValueScore {
			return a.ValueScore > b.ValueScore
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return abs(a.Magnitude) > abs(b.Magnitude)
	})

	accepted, commits := s.throttle(cands, now)

	if err := ctx.Err(); err != nil {
		// abandoned pass: no partial commits
		return nil, err
	}

	dueIDs := make([]string, 0, len(due))
	for _, t := range due {
		dueIDs = append(dueIDs, t.ID)
	}
	s.state.Apply(commit{scannedTiers: dueIDs, alerts: commits, at: now})

	if s.metrics != nil {
		s.metrics.RecordScanPass(len(accepted), len(cands))
	}
	return accepted, nil
}

func (s *TieredScanner) dueTiers(now time.Time) []*TierRule {
	out := make([]*TierRule, 0, len(s.cfg.Tiers))
	for i := range s.cfg.Tiers {
		t := &s.cfg.Tiers[i]
		if t.Enabled && s.state.TierDue(t.ID, t.ScanInterval, now) {
			out = append(out, t)
		}
	}
	return out
}

// collect fans analyzer invocations out across symbols. Analyzer failures are
// contained per (symbol, pattern): logged and skipped, never aborting the pass.
func (s *TieredScanner) collect(ctx context.Context, snap *models.MarketSnapshot) []models.Opportunity {
	symbols := snap.Symbols()
	sort.Strings(symbols)

	var (
		mu  sync.Mutex
		out []models.Opportunity
		wg  sync.WaitGroup
	)
	sem := make(chan struct{}, s.cfg.Workers)

	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, an := range s.analyzers {
				if s.cfg.PatternWeights[an.Pattern()] <= 0 {
					continue
				}
				o, err := s.analyzeOne(ctx, an, symbol, snap)
				if err != nil {
					aerr := &models.AnalyzerError{Symbol: symbol, Pattern: an.Pattern(), Err: err}
					if s.l != nil {
						s.l.Warn("analyzer failed",
							applogger.String("symbol", symbol),
							applogger.String("pattern", an.Pattern().String()),
							applogger.Error(aerr),
						)
					}
					if s.metrics != nil {
						s.metrics.RecordError("analyzer")
					}
					continue
				}
				if o == nil {
					continue
				}
				o.ValueScore = s.score(o)
				mu.Lock()
				out = append(out, *o)
				mu.Unlock()
			}
		}(sym)
	}
	wg.Wait()
	return out
}

// analyzeOne shields the pass from a misbehaving analyzer.
func (s *TieredScanner) analyzeOne(ctx context.Context, an domsvc.PatternAnalyzer, symbol string, snap *models.MarketSnapshot) (o *models.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			o = nil
			err = fmt.Errorf("analyzer panic: %v", r)
		}
	}()
	return an.Analyze(ctx, symbol, snap)
}

// score computes the composite value score on [0, 100]. Magnitude saturates
// at 0.5 so the clamp stays meaningful for typical signed ratios.
func (s *TieredScanner) score(o *models.Opportunity) float64 {
	w := s.cfg.Weights
	mag := abs(o.Magnitude) / 0.5
	if mag > 1 {
		mag = 1
	}
	vol := 0.5
	if o.VolumeConfirmed {
		vol = 1.0
	}
	raw := w.Magnitude*mag +
		w.Confidence*o.Confidence +
		w.Pattern*s.cfg.PatternWeights[o.Pattern] +
		w.Volume*vol +
		w.Risk*o.Risk.Factor()
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return 100 * raw
}

// qualify drops candidates under the global score floor, applies the
// restricted profile, and binds each survivor to the highest due tier whose
// entry thresholds it clears.
func (s *TieredScanner) qualify(raw []models.Opportunity, due []*TierRule) []candidate {
	out := make([]candidate, 0, len(raw))
	for _, o := range raw {
		if o.ValueScore < s.cfg.MinValueScore {
			continue
		}
		if r := s.cfg.Restricted; r != nil {
			if !r.Patterns[o.Pattern] {
				continue
			}
			if abs(o.Magnitude) < r.MinMagnitude || o.Confidence < r.MinConfidence {
				continue
			}
			if !o.VolumeConfirmed {
				continue
			}
		}
		var best *TierRule
		for _, t := range due {
			if abs(o.Magnitude) >= t.MinMagnitude && o.Confidence >= t.MinConfidence {
				if best == nil || t.MinMagnitude > best.MinMagnitude {
					best = t
				}
			}
		}
		if best == nil {
			continue
		}
		out = append(out, candidate{opp: o, tier: best})
	}
	return out
}

// throttle enforces per-tier hourly caps and per-(symbol, tier) cooldowns
// against committed state plus the pass's own tentative accepts. No state is
// mutated here.
func (s *TieredScanner) throttle(cands []candidate, now time.Time) ([]models.Opportunity, []commitAlert) {
	var (
		accepted []models.Opportunity
		commits  []commitAlert
	)
	tierCount := make(map[string]int)
	passAccepted := make(map[string]bool) // symbol|tier accepted this pass
	dailyUsed := 0

	for _, c := range cands {
		t := c.tier
		key := c.opp.Symbol + "|" + t.ID
		emergency := abs(c.opp.Magnitude) >= s.cfg.Emergency.MinMagnitude &&
			c.opp.Confidence >= s.cfg.Emergency.MinConfidence

		if r := s.cfg.Restricted; r != nil {
			// hard daily cap holds even under overrides
			if s.state.DailyCount(now)+dailyUsed >= r.MaxAlertsPerDay {
				continue
			}
		}
		if !t.Override && !emergency {
			if s.state.HourlyCount(t.ID, now)+tierCount[t.ID] >= t.MaxAlertsPerHour {
				continue
			}
			cd := t.Cooldown
			if r := s.cfg.Restricted; r != nil && r.Cooldown > cd {
				cd = r.Cooldown
			}
			if passAccepted[key] || !s.state.CooldownReady(c.opp.Symbol, t.ID, cd, now) {
				continue
			}
		} else if passAccepted[key] {
			continue
		}

		accepted = append(accepted, c.opp)
		commits = append(commits, commitAlert{symbol: c.opp.Symbol, tierID: t.ID})
		tierCount[t.ID]++
		passAccepted[key] = true
		dailyUsed++
	}
	return accepted, commits
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
