package usecase

import (
	"context"
	"sort"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"
	"DriftWatch/pkg/config"

	"github.com/google/uuid"
)

// OptimizedDetector adapts the tiered scanner to the detector contract used
// by the rollout controller.
type OptimizedDetector struct {
	scanner *TieredScanner
}

func NewOptimizedDetector(scanner *TieredScanner) *OptimizedDetector {
	return &OptimizedDetector{scanner: scanner}
}

func (d *OptimizedDetector) Variant() models.ScannerVariant { return models.VariantOptimized }

func (d *OptimizedDetector) Detect(ctx context.Context, snap *models.MarketSnapshot) ([]models.Opportunity, error) {
	return d.scanner.Scan(ctx, snap)
}

// LegacyDetector is the flat threshold sweep the tiered scanner replaces: a
// single cadence, fixed magnitude/confidence minimums and simple change-ratio
// patterns. Candidates are shape-converted into canonical opportunities here,
// at the boundary, and ranked by value score like the optimized path.
type LegacyDetector struct {
	minMagnitude  float64
	minConfidence float64
	window        int
	weights       ScoreWeights
}

func NewLegacyDetector(cfg *config.Config) *LegacyDetector {
	return &LegacyDetector{
		minMagnitude:  cfg.Rollout.Legacy.MinMagnitude,
		minConfidence: cfg.Rollout.Legacy.MinConfidence,
		window:        cfg.Scanner.Analyzer.ShortWindow,
		weights: ScoreWeights{
			Magnitude:  cfg.Scanner.Weights.Magnitude,
			Confidence: cfg.Scanner.Weights.Confidence,
			Pattern:    cfg.Scanner.Weights.Pattern,
			Volume:     cfg.Scanner.Weights.Volume,
			Risk:       cfg.Scanner.Weights.Risk,
		},
	}
}

func (d *LegacyDetector) Variant() models.ScannerVariant { return models.VariantLegacy }

func (d *LegacyDetector) Detect(ctx context.Context, snap *models.MarketSnapshot) ([]models.Opportunity, error) {
	refRet := features.CumulativeReturn(snap.Reference.Closes, d.window)
	out := make([]models.Opportunity, 0, 8)

	for _, symbol := range snap.Symbols() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, ok := snap.Window(symbol)
		if !ok || w.Len() < d.window {
			continue
		}
		drift := features.CumulativeReturn(w.Closes, d.window) - refRet
		if abs(drift) < d.minMagnitude {
			continue
		}
		// crude confidence: proportional distance past the threshold
		conf := abs(drift) / (2 * d.minMagnitude)
		if conf > 1 {
			conf = 1
		}
		if conf < d.minConfidence {
			continue
		}

		o := models.Opportunity{
			ID:               uuid.New().String(),
			Symbol:           symbol,
			Pattern:          models.PatternRelativeStrength,
			Magnitude:        drift,
			Confidence:       conf,
			Risk:             models.RiskMedium,
			ExpectedDuration: time.Hour,
			Timestamp:        time.Now().UTC(),
			VolumeConfirmed:  false,
			EntryConditions:  []string{"legacy threshold sweep"},
			ExitConditions:   []string{"drift reverts under threshold"},
		}
		o.Finalize()
		o.ValueScore = legacyScore(d.weights, &o)
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ValueScore != out[j].ValueScore {
			return out[i].ValueScore > out[j].ValueScore
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

func legacyScore(w ScoreWeights, o *models.Opportunity) float64 {
	mag := abs(o.Magnitude) / 0.5
	if mag > 1 {
		mag = 1
	}
	raw := w.Magnitude*mag + w.Confidence*o.Confidence + w.Pattern*0.5 + w.Volume*0.5 + w.Risk*o.Risk.Factor()
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return 100 * raw
}
