package usecase

import (
	"context"
	"encoding/json"

	"DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	pkgkafka "DriftWatch/pkg/kafka"
)

// KafkaQuotesHandler consumes quote messages and feeds them through the
// pipeline into the window store. Used when marketdata.source is "kafka".
type KafkaQuotesHandler struct {
	topic   string
	pipe    quoteProc
	metrics domrepo.Metrics
}

type quoteProc interface {
	Process(ctx context.Context, q *models.Quote) error
}

func NewKafkaQuotesHandler(topic string, pipe quoteProc, metrics domrepo.Metrics) *KafkaQuotesHandler {
	return &KafkaQuotesHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaQuotesHandler) Topic() string { return h.topic }

// incoming message schema: {s, p, v, t} with t in unix ms
func (h *KafkaQuotesHandler) Handle(ctx context.Context, b []byte) error {
	var q models.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if q.Timestamp > 0 && q.Timestamp < 1e11 { // seconds, normalize to ms
		q.Timestamp *= 1000
	}
	if err := h.pipe.Process(ctx, &q); err != nil {
		h.metrics.RecordError("consumer_process")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaQuotesHandler)(nil)
