package repository

import (
	"context"
	"time"

	"DriftWatch/internal/domain/models"
)

// QuoteStream is a live feed of market ticks (websocket or kafka backed).
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// MarketDataProvider builds point-in-time snapshots over tracked symbols.
// Implementations may serve from cache.
type MarketDataProvider interface {
	GetSnapshot(ctx context.Context, symbols []string) (*models.MarketSnapshot, error)
}

// Detector produces opportunity candidates from a snapshot. The legacy and
// optimized detectors implement the same contract.
type Detector interface {
	Variant() models.ScannerVariant
	Detect(ctx context.Context, snap *models.MarketSnapshot) ([]models.Opportunity, error)
}

// AlertSink receives accepted opportunities. Delivery is best-effort,
// at-most-once; failures are logged and never block subsequent scans.
type AlertSink interface {
	Deliver(ctx context.Context, o *models.Opportunity) error
	Close() error
}

// AlertStore keeps a queryable history of emitted alerts, performance samples
// and audit events for dashboards. Runtime control state is never restored
// from it.
type AlertStore interface {
	Init(ctx context.Context) error
	StoreAlert(ctx context.Context, o *models.Opportunity) error
	StoreSample(ctx context.Context, s *models.PerformanceSample) error
	StoreAudit(ctx context.Context, e *models.AuditEvent) error
	QueryAlerts(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Opportunity, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordAlert(variant, symbol, tier string)
	RecordError(kind string)
	RecordDetectorLatency(variant string, seconds float64)
	RecordRolloutPercentage(pct float64)
	RecordScanPass(accepted, candidates int)
}
