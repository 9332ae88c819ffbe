package analytics

import (
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/services/features"

	"github.com/google/uuid"
)

// Params tune the statistical windows shared by all analyzers.
type Params struct {
	// LongWindow is the trailing baseline window (observations).
	LongWindow int
	// ShortWindow is the recent window compared against the baseline.
	ShortWindow int
	// MinObservations below which analyzers yield no candidate.
	MinObservations int
	// VolumeConfirmRatio is the last-volume over trailing-mean ratio treated
	// as volume confirmation.
	VolumeConfirmRatio float64
	// BarsPerYear annualizes realized volatility (1m bars by default).
	BarsPerYear float64
}

// DefaultParams mirrors the windows used for 1-minute bars.
func DefaultParams() Params {
	return Params{
		LongWindow:         120,
		ShortWindow:        20,
		MinObservations:    40,
		VolumeConfirmRatio: 1.5,
		BarsPerYear:        365 * 24 * 60,
	}
}

func (p Params) normalized() Params {
	d := DefaultParams()
	if p.LongWindow <= 0 {
		p.LongWindow = d.LongWindow
	}
	if p.ShortWindow <= 0 {
		p.ShortWindow = d.ShortWindow
	}
	if p.MinObservations <= 0 {
		p.MinObservations = d.MinObservations
	}
	if p.VolumeConfirmRatio <= 0 {
		p.VolumeConfirmRatio = d.VolumeConfirmRatio
	}
	if p.BarsPerYear <= 0 {
		p.BarsPerYear = d.BarsPerYear
	}
	return p
}

// series bundles the aligned return series an analyzer works on.
type series struct {
	assetReturns []float64
	refReturns   []float64
	volumes      []float64
}

// prepare aligns asset and reference windows; ok is false when either side is
// too short for the configured windows.
func prepare(p Params, w, ref models.AssetWindow) (series, bool) {
	if w.Len() < p.MinObservations || ref.Len() < p.MinObservations {
		return series{}, false
	}
	ar := features.LogReturns(w.Closes)
	rr := features.LogReturns(ref.Closes)
	n := len(ar)
	if len(rr) < n {
		n = len(rr)
	}
	if n < p.MinObservations-1 {
		return series{}, false
	}
	return series{
		assetReturns: features.Tail(ar, n),
		refReturns:   features.Tail(rr, n),
		volumes:      w.Volumes,
	}, true
}

// volumeConfirmed reports whether the latest volume clears the confirmation
// ratio over the trailing mean.
func volumeConfirmed(p Params, volumes []float64) bool {
	if len(volumes) < p.ShortWindow+1 {
		return false
	}
	last := volumes[len(volumes)-1]
	base := features.Mean(features.Tail(volumes[:len(volumes)-1], p.LongWindow))
	if base <= 0 {
		return false
	}
	return last >= p.VolumeConfirmRatio*base
}

// riskFor derives a risk level from magnitude and annualized volatility.
func riskFor(magnitude, sigma float64) models.RiskLevel {
	m := magnitude
	if m < 0 {
		m = -m
	}
	switch {
	case m >= 0.30 || sigma >= 2.5:
		return models.RiskExtreme
	case m >= 0.18 || sigma >= 1.5:
		return models.RiskHigh
	case m >= 0.08 || sigma >= 0.8:
		return models.RiskMedium
	}
	return models.RiskLow
}

// clamp01 bounds x into [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// newOpportunity fills the fields every analyzer sets the same way. The
// value score is assigned later by the scanner's scoring step.
func newOpportunity(symbol string, pattern models.PatternType, magnitude, confidence float64, risk models.RiskLevel, dur time.Duration, confirmed bool) *models.Opportunity {
	o := &models.Opportunity{
		ID:               uuid.New().String(),
		Symbol:           symbol,
		Pattern:          pattern,
		Magnitude:        magnitude,
		Confidence:       clamp01(confidence),
		Risk:             risk,
		ExpectedDuration: dur,
		Timestamp:        time.Now().UTC(),
		VolumeConfirmed:  confirmed,
	}
	o.Finalize()
	return o
}

func ptr(v float64) *float64 { return &v }
