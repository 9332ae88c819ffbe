package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	domrepo "DriftWatch/internal/domain/repository"
	"DriftWatch/pkg/config"
	applogger "DriftWatch/pkg/logger"
)

// ScanRunner drives the periodic scan loop: snapshot, route through the
// canary controller, dispatch accepted alerts. It also resets the daily
// throttle counters at midnight UTC.
type ScanRunner struct {
	cfg        *config.Config
	provider   domrepo.MarketDataProvider
	controller *RolloutController
	dispatcher *AlertDispatcher
	scanner    *TieredScanner
	metrics    domrepo.Metrics
	l          *applogger.Logger

	cron *cron.Cron
}

func NewScanRunner(
	cfg *config.Config,
	provider domrepo.MarketDataProvider,
	controller *RolloutController,
	dispatcher *AlertDispatcher,
	scanner *TieredScanner,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *ScanRunner {
	return &ScanRunner{
		cfg:        cfg,
		provider:   provider,
		controller: controller,
		dispatcher: dispatcher,
		scanner:    scanner,
		metrics:    metrics,
		l:          l,
	}
}

// Start launches the scan loop and the daily reset schedule. Blocks until
// ctx is cancelled.
func (r *ScanRunner) Start(ctx context.Context) error {
	r.cron = cron.New(cron.WithLocation(time.UTC))
	if _, err := r.cron.AddFunc("@midnight", func() {
		r.scanner.State().ResetDaily()
		r.l.Info("daily alert counters reset")
	}); err != nil {
		return fmt.Errorf("schedule daily reset: %w", err)
	}
	r.cron.Start()
	defer func() {
		stopCtx := r.cron.Stop()
		<-stopCtx.Done()
	}()

	ticker := time.NewTicker(r.cfg.Scanner.ScanInterval)
	defer ticker.Stop()

	r.l.Info("scan loop started",
		applogger.Duration("interval", r.cfg.Scanner.ScanInterval),
		applogger.Strings("symbols", r.cfg.MarketData.Symbols),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

// pass executes one scan pass. Failures are contained and the loop
// continues on the next tick.
func (r *ScanRunner) pass(ctx context.Context) {
	snap, err := r.provider.GetSnapshot(ctx, r.cfg.MarketData.Symbols)
	if err != nil {
		r.l.Warn("snapshot unavailable", applogger.Error(err))
		r.metrics.RecordError("snapshot")
		return
	}

	opps, variant, err := r.controller.Route(ctx, snap)
	if err != nil {
		r.l.Warn("scan pass failed", applogger.Error(err))
		return
	}
	if len(opps) == 0 {
		return
	}
	r.dispatcher.Dispatch(ctx, variant, opps)
}
