package models

import "time"

// PatternType identifies the statistical pattern an analyzer detected.
type PatternType int

const (
	PatternBetaDivergence PatternType = iota
	PatternCorrelationBreak
	PatternMomentumShift
	PatternVolumeAnomaly
	PatternRelativeStrength
)

func (p PatternType) String() string {
	switch p {
	case PatternBetaDivergence:
		return "beta_divergence"
	case PatternCorrelationBreak:
		return "correlation_break"
	case PatternMomentumShift:
		return "momentum_shift"
	case PatternVolumeAnomaly:
		return "volume_anomaly"
	case PatternRelativeStrength:
		return "relative_strength"
	}
	return "unknown"
}

// AllPatterns lists every pattern type in evaluation order.
func AllPatterns() []PatternType {
	return []PatternType{
		PatternBetaDivergence,
		PatternCorrelationBreak,
		PatternMomentumShift,
		PatternVolumeAnomaly,
		PatternRelativeStrength,
	}
}

// RiskLevel classifies an opportunity's risk.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskExtreme
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskExtreme:
		return "extreme"
	}
	return "unknown"
}

// Factor returns the score contribution of a risk level: lower risk scores higher.
func (r RiskLevel) Factor() float64 {
	switch r {
	case RiskLow:
		return 1.0
	case RiskMedium:
		return 0.75
	case RiskHigh:
		return 0.5
	case RiskExtreme:
		return 0.25
	}
	return 0
}

// Tier is the priority bucket derived from signal magnitude.
type Tier int

const (
	TierWatch Tier = iota
	TierStandard
	TierPriority
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierWatch:
		return "watch"
	case TierStandard:
		return "standard"
	case TierPriority:
		return "priority"
	case TierCritical:
		return "critical"
	}
	return "unknown"
}

// Fixed magnitude breakpoints separating tiers. Monotonic by construction.
const (
	tierStandardMin = 0.05
	tierPriorityMin = 0.12
	tierCriticalMin = 0.25
)

// TierForMagnitude maps an absolute magnitude onto a tier.
func TierForMagnitude(magnitude float64) Tier {
	m := magnitude
	if m < 0 {
		m = -m
	}
	switch {
	case m >= tierCriticalMin:
		return TierCritical
	case m >= tierPriorityMin:
		return TierPriority
	case m >= tierStandardMin:
		return TierStandard
	}
	return TierWatch
}

// Opportunity is a candidate anomalous divergence between a tracked asset and
// the reference asset. Instances are created once per scan pass and never
// mutated afterwards.
type Opportunity struct {
	ID                string      `json:"id"`
	Symbol            string      `json:"symbol"`
	Pattern           PatternType `json:"-"`
	PatternName       string      `json:"pattern"`
	Magnitude         float64     `json:"magnitude"` // signed ratio
	Confidence        float64     `json:"confidence"`
	ValueScore        float64     `json:"value_score"`
	Tier              Tier        `json:"-"`
	TierName          string      `json:"tier"`
	Risk              RiskLevel   `json:"-"`
	RiskName          string      `json:"risk"`
	ExpectedDuration  time.Duration `json:"expected_duration_ns"`
	EntryConditions   []string    `json:"entry_conditions"`
	ExitConditions    []string    `json:"exit_conditions"`
	Timestamp         time.Time   `json:"timestamp"`
	VolumeConfirmed   bool        `json:"volume_confirmed"`
	CorrelationChange *float64    `json:"correlation_change,omitempty"`
	BetaChange        *float64    `json:"beta_change,omitempty"`
}

// Finalize fills derived fields (tier, display names) from the raw ones.
func (o *Opportunity) Finalize() {
	o.Tier = TierForMagnitude(o.Magnitude)
	o.PatternName = o.Pattern.String()
	o.TierName = o.Tier.String()
	o.RiskName = o.Risk.String()
}

// HighValue reports whether the opportunity clears the high-value bar used in
// performance comparisons.
func (o *Opportunity) HighValue() bool {
	return o.ValueScore >= 75
}
