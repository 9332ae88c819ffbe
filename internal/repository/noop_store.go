package repository

import (
	"context"
	"time"

	"DriftWatch/internal/domain/models"
	"DriftWatch/internal/domain/repository"
)

// NoopAlertStore satisfies AlertStore when history persistence is disabled.
type NoopAlertStore struct{}

func NewNoopAlertStore() repository.AlertStore { return NoopAlertStore{} }

func (NoopAlertStore) Init(context.Context) error                               { return nil }
func (NoopAlertStore) StoreAlert(context.Context, *models.Opportunity) error    { return nil }
func (NoopAlertStore) StoreSample(context.Context, *models.PerformanceSample) error { return nil }
func (NoopAlertStore) StoreAudit(context.Context, *models.AuditEvent) error     { return nil }
func (NoopAlertStore) QueryAlerts(context.Context, string, time.Time, time.Time, int) ([]models.Opportunity, error) {
	return nil, nil
}
func (NoopAlertStore) Health(context.Context) error { return nil }
func (NoopAlertStore) Close() error                 { return nil }
