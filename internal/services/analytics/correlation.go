package analytics

import (
	"context"
	"fmt"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"
)

// CorrelationBreakAnalyzer flags symbols whose rolling Pearson correlation
// with the reference asset dropped sharply against the long baseline.
type CorrelationBreakAnalyzer struct {
	p Params
	// minDrop is the smallest baseline-minus-recent correlation drop that
	// qualifies as a break.
	minDrop float64
}

func NewCorrelationBreakAnalyzer(p Params, minDrop float64) *CorrelationBreakAnalyzer {
	if minDrop <= 0 {
		minDrop = 0.4
	}
	return &CorrelationBreakAnalyzer{p: p.normalized(), minDrop: minDrop}
}

func (a *CorrelationBreakAnalyzer) Pattern() models.PatternType {
	return models.PatternCorrelationBreak
}

func (a *CorrelationBreakAnalyzer) Analyze(ctx context.Context, symbol string, snap *models.MarketSnapshot) (*models.Opportunity, error) {
	w, ok := snap.Window(symbol)
	if !ok {
		return nil, nil
	}
	s, ok := prepare(a.p, w, snap.Reference)
	if !ok {
		return nil, nil
	}

	long := features.Correlation(features.Tail(s.assetReturns, a.p.LongWindow), features.Tail(s.refReturns, a.p.LongWindow))
	short := features.Correlation(features.Tail(s.assetReturns, a.p.ShortWindow), features.Tail(s.refReturns, a.p.ShortWindow))
	drop := long - short
	if drop < a.minDrop {
		return nil, nil
	}

	// direction of the break follows the symbol's own recent drift
	dir := 1.0
	if features.CumulativeReturn(w.Closes, a.p.ShortWindow) < 0 {
		dir = -1
	}
	sigma := features.RealizedVolatility(s.assetReturns, a.p.ShortWindow, a.p.BarsPerYear)
	magnitude := dir * drop * 0.2
	conf := clamp01(drop / (2 * a.minDrop))
	confirmed := volumeConfirmed(a.p, s.volumes)

	o := newOpportunity(symbol, a.Pattern(), magnitude, conf, riskFor(magnitude, sigma), 2*time.Hour, confirmed)
	o.CorrelationChange = ptr(-drop)
	o.EntryConditions = []string{
		fmt.Sprintf("correlation dropped %.2f from baseline %.2f", drop, long),
		fmt.Sprintf("short-window correlation %.2f", short),
	}
	o.ExitConditions = []string{
		"correlation recovers above baseline minus 0.1",
		"short-window drift flattens",
	}
	return o, nil
}
