package alerting

import (
	"context"
	"fmt"

	"DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	"DriftWatch/pkg/config"
	apphttp "DriftWatch/pkg/http"
	"DriftWatch/pkg/kafka"
	applogger "DriftWatch/pkg/logger"
)

// KafkaSink publishes accepted opportunities to the alerts topic, keyed by
// symbol to preserve per-symbol ordering.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(producer *kafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Deliver(ctx context.Context, o *models.Opportunity) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(o.Symbol), o); err != nil {
		return &models.AlertDeliveryError{Sink: "kafka", Err: err}
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// WebhookSink POSTs each opportunity as JSON to a configured endpoint.
type WebhookSink struct {
	client *apphttp.Client
	url    string
}

func NewWebhookSink(url string, opts ...apphttp.ClientOption) *WebhookSink {
	return &WebhookSink{
		client: apphttp.NewClient(opts...),
		url:    url,
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, o *models.Opportunity) error {
	err := s.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    s.url,
		Body:   o,
	}, nil)
	if err != nil {
		return &models.AlertDeliveryError{Sink: "webhook", Err: err}
	}
	return nil
}

func (s *WebhookSink) Close() error { return nil }

// LogSink writes alerts to the structured log. Default when no external
// sink is configured.
type LogSink struct {
	l *applogger.Logger
}

func NewLogSink(l *applogger.Logger) *LogSink {
	return &LogSink{l: l}
}

func (s *LogSink) Deliver(_ context.Context, o *models.Opportunity) error {
	s.l.Info("opportunity alert",
		applogger.String("id", o.ID),
		applogger.String("symbol", o.Symbol),
		applogger.String("pattern", o.PatternName),
		applogger.String("tier", o.TierName),
		applogger.Any("magnitude", o.Magnitude),
		applogger.Any("confidence", o.Confidence),
		applogger.Any("value_score", o.ValueScore),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// BuildSink constructs the sink named by alerts.sink.
func BuildSink(cfg *config.Config, producer *kafka.Producer, l *applogger.Logger) (domrepo.AlertSink, error) {
	switch cfg.Alerts.Sink {
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka sink requires a configured producer")
		}
		return NewKafkaSink(producer, cfg.Kafka.AlertsTopic), nil
	case "webhook":
		if cfg.Alerts.WebhookURL == "" {
			return nil, fmt.Errorf("webhook sink requires alerts.webhook_url")
		}
		return NewWebhookSink(cfg.Alerts.WebhookURL, apphttp.WithTimeout(cfg.Alerts.Timeout)), nil
	case "log":
		return NewLogSink(l), nil
	}
	return nil, fmt.Errorf("unknown alert sink %q", cfg.Alerts.Sink)
}
