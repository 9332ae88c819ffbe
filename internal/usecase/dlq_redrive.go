package usecase

import (
	"context"
	"fmt"

	"DriftWatch/internal/domain/models"
	applogger "DriftWatch/pkg/logger"
	"DriftWatch/pkg/queue"
)

// AlertRedeliveryJob drains parked alerts off the DLQ and replays them
// through the dispatcher. A delivery that fails again is retried by the
// queue and dead-lettered once attempts are exhausted.
type AlertRedeliveryJob struct {
	dispatcher *AlertDispatcher
	l          *applogger.Logger
}

func NewAlertRedeliveryJob(dispatcher *AlertDispatcher, l *applogger.Logger) *AlertRedeliveryJob {
	return &AlertRedeliveryJob{dispatcher: dispatcher, l: l}
}

func (j *AlertRedeliveryJob) Name() string { return "alert-redelivery" }

func (j *AlertRedeliveryJob) Type() string { return dlqMessageType }

func (j *AlertRedeliveryJob) Handle(ctx context.Context, payload interface{}) error {
	o, err := queue.ParsePayload[models.Opportunity](payload)
	if err != nil {
		return fmt.Errorf("redelivery payload: %w", err)
	}
	if err := j.dispatcher.Redeliver(ctx, o); err != nil {
		return fmt.Errorf("redeliver %s: %w", o.Symbol, err)
	}
	if j.l != nil {
		j.l.Info("parked alert redelivered",
			applogger.String("symbol", o.Symbol),
			applogger.String("id", o.ID),
		)
	}
	return nil
}

var _ queue.Job = (*AlertRedeliveryJob)(nil)
