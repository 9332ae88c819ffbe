package models

import "time"

// ScannerVariant names one of the two detector implementations under canary.
type ScannerVariant int

const (
	VariantLegacy ScannerVariant = iota
	VariantOptimized
)

func (v ScannerVariant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantOptimized:
		return "optimized"
	}
	return "unknown"
}

// RolloutMode is the routing state of the canary controller.
type RolloutMode int

const (
	ModeLegacyOnly RolloutMode = iota
	ModeOptimizedOnly
	ModeParallel
	ModeGradualRollout
)

func (m RolloutMode) String() string {
	switch m {
	case ModeLegacyOnly:
		return "legacy_only"
	case ModeOptimizedOnly:
		return "optimized_only"
	case ModeParallel:
		return "parallel"
	case ModeGradualRollout:
		return "gradual_rollout"
	}
	return "unknown"
}

// PerformanceSample captures one detector invocation's outcome. Appended by
// the rollout controller, read-only to the safety monitor.
type PerformanceSample struct {
	Variant       ScannerVariant `json:"-"`
	VariantName   string         `json:"variant"`
	TotalAlerts   int            `json:"total_alerts"`
	HighValue     int            `json:"high_value_alerts"`
	AvgMagnitude  float64        `json:"avg_magnitude"`
	AvgConfidence float64        `json:"avg_confidence"`
	Latency       time.Duration  `json:"latency_ns"`
	ErrorCount    int            `json:"error_count"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ComparisonRecord summarizes one parallel pass over both detectors.
type ComparisonRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	LegacyCount     int       `json:"legacy_count"`
	OptimizedCount  int       `json:"optimized_count"`
	LegacyAvgMag    float64   `json:"legacy_avg_magnitude"`
	OptimizedAvgMag float64   `json:"optimized_avg_magnitude"`
	LegacyHigh      int       `json:"legacy_high_value"`
	OptimizedHigh   int       `json:"optimized_high_value"`
	LegacyFailed    bool      `json:"legacy_failed"`
	OptimizedFailed bool      `json:"optimized_failed"`
}

// SafetyThresholds gate canary advancement and trigger rollback.
type SafetyThresholds struct {
	MaxErrorRate      float64       `json:"max_error_rate"`
	CriticalErrorRate float64       `json:"critical_error_rate"`
	MinQualityRatio   float64       `json:"min_quality_ratio"`
	MaxLatencyRatio   float64       `json:"max_latency_ratio"`
	MinProfitableRate float64       `json:"min_profitable_rate"`
	MaxConsecCritical int           `json:"max_consecutive_critical"`
	RolloutIncrement  float64       `json:"rollout_increment"`
	RolloutInterval   time.Duration `json:"rollout_interval_ns"`
}

// RolloutState is the externally visible canary state. Mutated only by the
// safety monitor, plus the forced-rollback entry point.
type RolloutState struct {
	Mode           RolloutMode      `json:"-"`
	ModeName       string           `json:"mode"`
	Percentage     float64          `json:"percentage"`
	LastAdjustment time.Time        `json:"last_adjustment"`
	Thresholds     SafetyThresholds `json:"thresholds"`
}

// AuditAction identifies the kind of governance decision recorded.
type AuditAction int

const (
	AuditAdvance AuditAction = iota
	AuditHold
	AuditRollback
	AuditModeChange
)

func (a AuditAction) String() string {
	switch a {
	case AuditAdvance:
		return "advance"
	case AuditHold:
		return "hold"
	case AuditRollback:
		return "rollback"
	case AuditModeChange:
		return "mode_change"
	}
	return "unknown"
}

// AuditEvent is an immutable record of an advancement/rollback decision.
type AuditEvent struct {
	ID         string      `json:"id"`
	Action     AuditAction `json:"-"`
	ActionName string      `json:"action"`
	Reason     string      `json:"reason"`
	Mode       string      `json:"mode"`
	Percentage float64     `json:"percentage"`
	Timestamp  time.Time   `json:"timestamp"`
}

// MetricsExport is the read-only report served to external dashboards.
type MetricsExport struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Rollout     RolloutState        `json:"rollout"`
	Samples     []PerformanceSample `json:"samples"`
	Comparisons []ComparisonRecord  `json:"comparisons"`
	Audit       []AuditEvent        `json:"audit"`
}
