package analytics

import (
	"DriftWatch/internal/domain/service"
	"DriftWatch/pkg/config"
)

// BuildAnalyzers constructs the full analyzer set from configuration. Pattern
// enablement (weight > 0) is the scanner's concern, not the factory's.
func BuildAnalyzers(cfg *config.Config) []service.PatternAnalyzer {
	a := cfg.Scanner.Analyzer
	p := Params{
		LongWindow:         a.LongWindow,
		ShortWindow:        a.ShortWindow,
		MinObservations:    a.MinObservations,
		VolumeConfirmRatio: a.VolumeConfirmRatio,
	}
	return []service.PatternAnalyzer{
		NewBetaDivergenceAnalyzer(p, a.BetaMinShift),
		NewCorrelationBreakAnalyzer(p, a.CorrelationMinDrop),
		NewMomentumShiftAnalyzer(p, a.MomentumMinZ),
		NewVolumeAnomalyAnalyzer(p, a.VolumeMinZ),
		NewRelativeStrengthAnalyzer(p, a.StrengthMinSpread),
	}
}
