package analytics

import (
	"context"
	"fmt"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"
)

// RelativeStrengthAnalyzer flags symbols whose cumulative return over the
// long window diverges from the reference by more than a minimum spread.
type RelativeStrengthAnalyzer struct {
	p Params
	// minSpread is the smallest |asset - reference| cumulative return spread.
	minSpread float64
}

func NewRelativeStrengthAnalyzer(p Params, minSpread float64) *RelativeStrengthAnalyzer {
	if minSpread <= 0 {
		minSpread = 0.06
	}
	return &RelativeStrengthAnalyzer{p: p.normalized(), minSpread: minSpread}
}

func (a *RelativeStrengthAnalyzer) Pattern() models.PatternType {
	return models.PatternRelativeStrength
}

func (a *RelativeStrengthAnalyzer) Analyze(ctx context.Context, symbol string, snap *models.MarketSnapshot) (*models.Opportunity, error) {
	w, ok := snap.Window(symbol)
	if !ok {
		return nil, nil
	}
	s, ok := prepare(a.p, w, snap.Reference)
	if !ok {
		return nil, nil
	}

	spread := features.CumulativeReturn(w.Closes, a.p.LongWindow) -
		features.CumulativeReturn(snap.Reference.Closes, a.p.LongWindow)
	abs := spread
	if abs < 0 {
		abs = -abs
	}
	if abs < a.minSpread {
		return nil, nil
	}

	sigma := features.RealizedVolatility(s.assetReturns, a.p.ShortWindow, a.p.BarsPerYear)
	conf := clamp01(abs / (3 * a.minSpread))
	confirmed := volumeConfirmed(a.p, s.volumes)

	o := newOpportunity(symbol, a.Pattern(), spread, conf, riskFor(spread, sigma), 6*time.Hour, confirmed)
	o.EntryConditions = []string{
		fmt.Sprintf("cumulative return spread %.4f exceeds %.4f", spread, a.minSpread),
	}
	o.ExitConditions = []string{
		"spread narrows under half the entry level",
	}
	return o, nil
}
