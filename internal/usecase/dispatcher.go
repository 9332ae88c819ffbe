package usecase

import (
	"context"
	"time"

	"DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	applogger "DriftWatch/pkg/logger"
	"DriftWatch/pkg/queue"
)

const dlqMessageType = "alert_delivery_failed"

// AlertDispatcher fans accepted opportunities out to the configured sink,
// mirrors them to history storage, and parks failed deliveries on a redis
// DLQ when one is configured. Delivery is at-most-once and never blocks the
// next scan pass.
type AlertDispatcher struct {
	sink    domrepo.AlertSink
	store   domrepo.AlertStore
	dlq     queue.QueueService
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewAlertDispatcher(
	sink domrepo.AlertSink,
	store domrepo.AlertStore,
	dlq queue.QueueService,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *AlertDispatcher {
	return &AlertDispatcher{
		sink:    sink,
		store:   store,
		dlq:     dlq,
		metrics: metrics,
		l:       l,
	}
}

// Dispatch delivers one pass worth of alerts. Failures are contained per
// alert.
func (d *AlertDispatcher) Dispatch(ctx context.Context, variant models.ScannerVariant, opps []models.Opportunity) {
	for i := range opps {
		o := &opps[i]
		if err := d.sink.Deliver(ctx, o); err != nil {
			d.l.Error("alert delivery failed",
				applogger.String("symbol", o.Symbol),
				applogger.String("id", o.ID),
				applogger.Error(err),
			)
			if d.metrics != nil {
				d.metrics.RecordError("alert_delivery")
			}
			d.park(ctx, o)
			continue
		}
		if d.metrics != nil {
			d.metrics.RecordAlert(variant.String(), o.Symbol, o.TierName)
		}
		d.persist(o)
	}
}

// Redeliver retries one parked alert through the sink. A failure is returned
// to the caller so the queue machinery can back off and retry; success
// mirrors the alert to history like a first-pass delivery.
func (d *AlertDispatcher) Redeliver(ctx context.Context, o *models.Opportunity) error {
	if err := d.sink.Deliver(ctx, o); err != nil {
		if d.metrics != nil {
			d.metrics.RecordError("alert_redelivery")
		}
		return err
	}
	if d.metrics != nil {
		d.metrics.RecordAlert("redelivered", o.Symbol, o.TierName)
	}
	d.persist(o)
	return nil
}

// park pushes a failed alert onto the DLQ for later inspection.
func (d *AlertDispatcher) park(ctx context.Context, o *models.Opportunity) {
	if d.dlq == nil {
		return
	}
	if err := d.dlq.PublishMessage(ctx, dlqMessageType, o); err != nil {
		d.l.Warn("dlq publish failed",
			applogger.String("symbol", o.Symbol),
			applogger.Error(err),
		)
	}
}

// persist mirrors a delivered alert to history storage off the scan path.
func (d *AlertDispatcher) persist(o *models.Opportunity) {
	if d.store == nil {
		return
	}
	alert := *o
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.store.StoreAlert(ctx, &alert); err != nil {
			d.l.Warn("alert history write failed",
				applogger.String("symbol", alert.Symbol),
				applogger.Error(err),
			)
		}
	}()
}

func (d *AlertDispatcher) Close() error {
	return d.sink.Close()
}
