package usecase

import (
	"context"

	"DriftWatch/internal/domain/models"
	drepo "DriftWatch/internal/domain/repository"
	mid "DriftWatch/internal/middleware"
	"DriftWatch/internal/service/marketdata"
)

// WindowWriter folds validated quotes into the rolling window store. It is
// the pipeline's downstream processor.
type WindowWriter struct {
	store *marketdata.WindowStore
}

func NewWindowWriter(store *marketdata.WindowStore) *WindowWriter {
	return &WindowWriter{store: store}
}

func (w *WindowWriter) Process(_ context.Context, q *models.Quote) error {
	w.store.Append(q)
	return nil
}

// QuoteCollector collects quotes from the market stream and feeds them
// through the pipeline into the window store.
type QuoteCollector struct {
	stream  drepo.QuoteStream
	writer  *WindowWriter
	metrics drepo.Metrics
	pipe    *mid.QuotePipeline
}

// NewQuoteCollector creates a new QuoteCollector instance.
func NewQuoteCollector(stream drepo.QuoteStream, writer *WindowWriter, metrics drepo.Metrics, pipe *mid.QuotePipeline) *QuoteCollector {
	return &QuoteCollector{stream: stream, writer: writer, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	qCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, qCh, errCh)
	return nil
}

func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case q := <-qCh:
			if q == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, q)
			} else {
				_ = c.writer.Process(ctx, q)
			}
		}
	}
}

func (c *QuoteCollector) Stop() error { return c.stream.Close() }

// Shutdown stops the pipeline and closes the stream.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
