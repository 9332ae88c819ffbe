package analytics

import (
	"context"
	"fmt"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"
)

// VolumeAnomalyAnalyzer flags symbols whose latest volume is a large z-score
// outlier over the trailing window while price drifts away from the reference.
type VolumeAnomalyAnalyzer struct {
	p Params
	// minZ is the smallest volume z-score that qualifies.
	minZ float64
}

func NewVolumeAnomalyAnalyzer(p Params, minZ float64) *VolumeAnomalyAnalyzer {
	if minZ <= 0 {
		minZ = 3.0
	}
	return &VolumeAnomalyAnalyzer{p: p.normalized(), minZ: minZ}
}

func (a *VolumeAnomalyAnalyzer) Pattern() models.PatternType { return models.PatternVolumeAnomaly }

func (a *VolumeAnomalyAnalyzer) Analyze(ctx context.Context, symbol string, snap *models.MarketSnapshot) (*models.Opportunity, error) {
	w, ok := snap.Window(symbol)
	if !ok {
		return nil, nil
	}
	s, ok := prepare(a.p, w, snap.Reference)
	if !ok {
		return nil, nil
	}
	if len(s.volumes) < a.p.LongWindow+1 {
		return nil, nil
	}

	vz := features.ZScore(s.volumes, a.p.LongWindow)
	if vz < a.minZ {
		return nil, nil
	}

	// direction and size follow the short-window drift relative to the
	// reference
	drift := features.CumulativeReturn(w.Closes, a.p.ShortWindow) -
		features.CumulativeReturn(snap.Reference.Closes, a.p.ShortWindow)
	sigma := features.RealizedVolatility(s.assetReturns, a.p.ShortWindow, a.p.BarsPerYear)
	magnitude := drift
	conf := clamp01(vz / (2 * a.minZ))

	o := newOpportunity(symbol, a.Pattern(), magnitude, conf, riskFor(magnitude, sigma), 30*time.Minute, true)
	o.EntryConditions = []string{
		fmt.Sprintf("volume z-score %.2f exceeds %.2f", vz, a.minZ),
		fmt.Sprintf("short-window relative drift %.4f", drift),
	}
	o.ExitConditions = []string{
		"volume normalizes under 1 sigma",
	}
	return o, nil
}
