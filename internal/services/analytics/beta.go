package analytics

import (
	"context"
	"fmt"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"
)

// BetaDivergenceAnalyzer flags symbols whose rolling covariance beta against
// the reference asset has shifted materially between the long baseline and
// the recent short window.
type BetaDivergenceAnalyzer struct {
	p Params
	// minShift is the smallest |beta_short - beta_long| considered a signal.
	minShift float64
}

func NewBetaDivergenceAnalyzer(p Params, minShift float64) *BetaDivergenceAnalyzer {
	if minShift <= 0 {
		minShift = 0.35
	}
	return &BetaDivergenceAnalyzer{p: p.normalized(), minShift: minShift}
}

func (a *BetaDivergenceAnalyzer) Pattern() models.PatternType { return models.PatternBetaDivergence }

func (a *BetaDivergenceAnalyzer) Analyze(ctx context.Context, symbol string, snap *models.MarketSnapshot) (*models.Opportunity, error) {
	w, ok := snap.Window(symbol)
	if !ok {
		return nil, nil
	}
	s, ok := prepare(a.p, w, snap.Reference)
	if !ok {
		return nil, nil
	}

	long := features.Beta(features.Tail(s.assetReturns, a.p.LongWindow), features.Tail(s.refReturns, a.p.LongWindow))
	short := features.Beta(features.Tail(s.assetReturns, a.p.ShortWindow), features.Tail(s.refReturns, a.p.ShortWindow))
	shift := short - long
	abs := shift
	if abs < 0 {
		abs = -abs
	}
	if abs < a.minShift {
		return nil, nil
	}

	sigma := features.RealizedVolatility(s.assetReturns, a.p.ShortWindow, a.p.BarsPerYear)
	// magnitude scales the beta shift into a signed ratio rooted at the
	// minimum qualifying shift
	magnitude := shift * 0.25
	conf := clamp01(abs / (3 * a.minShift))
	confirmed := volumeConfirmed(a.p, s.volumes)

	o := newOpportunity(symbol, a.Pattern(), magnitude, conf, riskFor(magnitude, sigma), 4*time.Hour, confirmed)
	o.BetaChange = ptr(shift)
	o.EntryConditions = []string{
		fmt.Sprintf("beta shift %.2f exceeds %.2f", shift, a.minShift),
		fmt.Sprintf("short-window beta %.2f vs baseline %.2f", short, long),
	}
	o.ExitConditions = []string{
		"beta reverts within 0.5x of baseline",
		"reference asset trend reverses",
	}
	return o, nil
}
