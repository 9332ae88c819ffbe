package analytics

import (
	"context"
	"fmt"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"
)

// MomentumShiftAnalyzer flags symbols whose latest relative return (asset
// minus reference) is a large z-score outlier against its trailing window.
type MomentumShiftAnalyzer struct {
	p Params
	// minZ is the smallest |z| treated as a shift.
	minZ float64
}

func NewMomentumShiftAnalyzer(p Params, minZ float64) *MomentumShiftAnalyzer {
	if minZ <= 0 {
		minZ = 2.5
	}
	return &MomentumShiftAnalyzer{p: p.normalized(), minZ: minZ}
}

func (a *MomentumShiftAnalyzer) Pattern() models.PatternType { return models.PatternMomentumShift }

func (a *MomentumShiftAnalyzer) Analyze(ctx context.Context, symbol string, snap *models.MarketSnapshot) (*models.Opportunity, error) {
	w, ok := snap.Window(symbol)
	if !ok {
		return nil, nil
	}
	s, ok := prepare(a.p, w, snap.Reference)
	if !ok {
		return nil, nil
	}

	rel := make([]float64, len(s.assetReturns))
	for i := range rel {
		rel[i] = s.assetReturns[i] - s.refReturns[i]
	}
	z := features.ZScore(rel, a.p.LongWindow)
	abs := z
	if abs < 0 {
		abs = -abs
	}
	if abs < a.minZ {
		return nil, nil
	}

	sigma := features.RealizedVolatility(s.assetReturns, a.p.ShortWindow, a.p.BarsPerYear)
	// magnitude: z-score scaled by realized per-bar dispersion of the
	// relative series
	magnitude := z * features.StdDev(features.Tail(rel, a.p.LongWindow)) * float64(a.p.ShortWindow)
	conf := clamp01(abs / (2 * a.minZ))
	confirmed := volumeConfirmed(a.p, s.volumes)

	o := newOpportunity(symbol, a.Pattern(), magnitude, conf, riskFor(magnitude, sigma), 45*time.Minute, confirmed)
	o.EntryConditions = []string{
		fmt.Sprintf("relative return z-score %.2f exceeds %.2f", z, a.minZ),
	}
	o.ExitConditions = []string{
		"relative return z-score falls under 1.0",
		"expected duration elapsed",
	}
	return o, nil
}
