package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DriftWatch/internal/domain/models"
	applogger "DriftWatch/pkg/logger"
)

type fakeSink struct {
	mu        sync.Mutex
	fail      map[string]bool
	delivered []string
	closed    bool
}

func (s *fakeSink) Deliver(_ context.Context, o *models.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[o.Symbol] {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, o.Symbol)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeQueue struct {
	mu     sync.Mutex
	parked []string
	err    error
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	o, ok := payload.(*models.Opportunity)
	if !ok {
		return errors.New("unexpected payload type")
	}
	q.parked = append(q.parked, msgType+":"+o.Symbol)
	return nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func TestDispatchFailuresContainedPerAlert(t *testing.T) {
	sink := &fakeSink{fail: map[string]bool{"B": true}}
	dlq := &fakeQueue{}
	d := NewAlertDispatcher(sink, nil, dlq, nil, testLogger(t))

	opps := []models.Opportunity{
		*opp("A", models.PatternBetaDivergence, 0.10, 0.8, true),
		*opp("B", models.PatternBetaDivergence, 0.15, 0.9, true),
		*opp("C", models.PatternBetaDivergence, 0.20, 0.9, true),
	}
	d.Dispatch(context.Background(), models.VariantOptimized, opps)

	assert.Equal(t, []string{"A", "C"}, sink.delivered)
	assert.Equal(t, []string{"alert_delivery_failed:B"}, dlq.parked)
}

func TestDispatchWithoutDLQ(t *testing.T) {
	sink := &fakeSink{fail: map[string]bool{"A": true}}
	d := NewAlertDispatcher(sink, nil, nil, nil, testLogger(t))

	// a failed delivery with no DLQ configured is logged and dropped
	d.Dispatch(context.Background(), models.VariantLegacy, []models.Opportunity{
		*opp("A", models.PatternBetaDivergence, 0.10, 0.8, true),
	})
	assert.Empty(t, sink.delivered)
}

func TestDispatchPersistsDeliveredAlerts(t *testing.T) {
	sink := &fakeSink{}
	store := &captureStore{}
	d := NewAlertDispatcher(sink, store, nil, nil, testLogger(t))

	d.Dispatch(context.Background(), models.VariantOptimized, []models.Opportunity{
		*opp("A", models.PatternBetaDivergence, 0.10, 0.8, true),
	})

	require.Eventually(t, func() bool {
		return store.alertCount() == 1
	}, time.Second, 10*time.Millisecond, "history write is async")
}

func TestRedeliverReplaysParkedAlert(t *testing.T) {
	sink := &fakeSink{}
	store := &captureStore{}
	d := NewAlertDispatcher(sink, store, nil, nil, testLogger(t))
	job := NewAlertRedeliveryJob(d, testLogger(t))

	assert.Equal(t, "alert_delivery_failed", job.Type())

	// a queue worker hands the payload back as a decoded map
	o := opp("A", models.PatternBetaDivergence, 0.10, 0.8, true)
	payload := map[string]interface{}{
		"id":     o.ID,
		"symbol": o.Symbol,
		"tier":   o.TierName,
	}
	require.NoError(t, job.Handle(context.Background(), payload))
	assert.Equal(t, []string{"A"}, sink.delivered)

	require.Eventually(t, func() bool {
		return store.alertCount() == 1
	}, time.Second, 10*time.Millisecond, "redelivered alert is mirrored to history")
}

func TestRedeliverFailureReturnsError(t *testing.T) {
	sink := &fakeSink{fail: map[string]bool{"B": true}}
	d := NewAlertDispatcher(sink, nil, nil, nil, testLogger(t))
	job := NewAlertRedeliveryJob(d, testLogger(t))

	err := job.Handle(context.Background(), opp("B", models.PatternBetaDivergence, 0.15, 0.9, true))
	require.Error(t, err, "the queue retries on a returned error")
	assert.Empty(t, sink.delivered)
}

func TestDispatcherClose(t *testing.T) {
	sink := &fakeSink{}
	d := NewAlertDispatcher(sink, nil, nil, nil, testLogger(t))
	require.NoError(t, d.Close())
	assert.True(t, sink.closed)
}

// captureStore records stored alerts and ignores everything else.
type captureStore struct {
	mu     sync.Mutex
	alerts []models.Opportunity
}

func (s *captureStore) Init(context.Context) error { return nil }

func (s *captureStore) StoreAlert(_ context.Context, o *models.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, *o)
	return nil
}

func (s *captureStore) StoreSample(context.Context, *models.PerformanceSample) error { return nil }
func (s *captureStore) StoreAudit(context.Context, *models.AuditEvent) error         { return nil }

func (s *captureStore) QueryAlerts(context.Context, string, time.Time, time.Time, int) ([]models.Opportunity, error) {
	return nil, nil
}

func (s *captureStore) Health(context.Context) error { return nil }
func (s *captureStore) Close() error                 { return nil }

func (s *captureStore) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}
