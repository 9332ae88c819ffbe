package repository

import (
	"context"
	"database/sql"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/domain/repository"
)

// ClickHouseAlertStore implements AlertStore over ClickHouse. Write path
// only mirrors runtime events; nothing here is read back as control state.
type ClickHouseAlertStore struct {
	db          *sql.DB
	alertsTable string
	sampleTable string
	auditTable  string
}

// NewClickHouseAlertStore creates ClickHouse-backed alert history.
func NewClickHouseAlertStore(db *sql.DB) repository.AlertStore {
	return &ClickHouseAlertStore{
		db:          db,
		alertsTable: "driftwatch.alerts",
		sampleTable: "driftwatch.detector_samples",
		auditTable:  "driftwatch.rollout_audit",
	}
}

func (s *ClickHouseAlertStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseAlertStore) StoreAlert(ctx context.Context, o *models.Opportunity) error {
	q := "INSERT INTO " + s.alertsTable +
		" (id, ts, symbol, pattern, tier, risk, magnitude, confidence, value_score, volume_confirmed, expected_duration_s)" +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, q,
		o.ID,
		o.Timestamp,
		o.Symbol,
		o.PatternName,
		o.TierName,
		o.RiskName,
		o.Magnitude,
		o.Confidence,
		o.ValueScore,
		boolToUInt8(o.VolumeConfirmed),
		int64(o.ExpectedDuration.Seconds()),
	)
	return err
}

func (s *ClickHouseAlertStore) StoreSample(ctx context.Context, sample *models.PerformanceSample) error {
	q := "INSERT INTO " + s.sampleTable +
		" (ts, variant, total_alerts, high_value, avg_magnitude, avg_confidence, latency_ms, error_count)" +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, q,
		sample.Timestamp,
		sample.VariantName,
		sample.TotalAlerts,
		sample.HighValue,
		sample.AvgMagnitude,
		sample.AvgConfidence,
		sample.Latency.Milliseconds(),
		sample.ErrorCount,
	)
	return err
}

func (s *ClickHouseAlertStore) StoreAudit(ctx context.Context, e *models.AuditEvent) error {
	q := "INSERT INTO " + s.auditTable +
		" (id, ts, action, reason, mode, percentage) VALUES (?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, q,
		e.ID,
		e.Timestamp,
		e.ActionName,
		e.Reason,
		e.Mode,
		e.Percentage,
	)
	return err
}

func (s *ClickHouseAlertStore) QueryAlerts(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Opportunity, error) {
	q := "SELECT id, ts, symbol, pattern, tier, risk, magnitude, confidence, value_score, volume_confirmed FROM " +
		s.alertsTable + " WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?"
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Opportunity
	for rows.Next() {
		var o models.Opportunity
		var confirmed uint8
		if err := rows.Scan(&o.ID, &o.Timestamp, &o.Symbol, &o.PatternName, &o.TierName, &o.RiskName,
			&o.Magnitude, &o.Confidence, &o.ValueScore, &confirmed); err != nil {
			return nil, err
		}
		o.VolumeConfirmed = confirmed == 1
		alerts = append(alerts, o)
	}
	return alerts, rows.Err()
}

func (s *ClickHouseAlertStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseAlertStore) Close() error {
	return nil // Managed by pkg
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
