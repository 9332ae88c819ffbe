package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"DriftWatch/internal/usecase"
	pkgch "DriftWatch/pkg/clickhouse"
	"DriftWatch/pkg/config"
	xhttp "DriftWatch/pkg/http"
	pkgkafka "DriftWatch/pkg/kafka"
	applogger "DriftWatch/pkg/logger"
	"DriftWatch/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	collector  *usecase.QuoteCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	runner     *usecase.ScanRunner
	monitor    *usecase.SafetyMonitor
	dispatcher *usecase.AlertDispatcher
	dlq        *queue.RedisQueue
	handler    xhttp.Handler
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	runner *usecase.ScanRunner,
	monitor *usecase.SafetyMonitor,
	dispatcher *usecase.AlertDispatcher,
	dlq *queue.RedisQueue,
	handler xhttp.Handler,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		collector:  collector,
		consumer:   consumer,
		kh:         kh,
		runner:     runner,
		monitor:    monitor,
		dispatcher: dispatcher,
		dlq:        dlq,
		handler:    handler,
		chClient:   chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Quote intake: websocket collector or kafka consumer per config
	switch a.cfg.MarketData.Source {
	case "kafka":
		if a.consumer != nil && a.kh != nil {
			a.consumer.RegisterHandler(a.kh)
			go func() {
				if err := a.consumer.Start(); err != nil {
					a.l.Error("kafka consumer error", applogger.Error(err))
				}
			}()
			a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
		}
	default:
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.l.Error("collector error", applogger.Error(err))
			}
		}()
		a.l.Info("collector started", applogger.Strings("symbols", a.cfg.MarketData.Symbols))
	}

	// Alert DLQ: parked deliveries, optionally replayed by queue workers
	if a.dlq != nil {
		if a.cfg.Alerts.DLQ.Redeliver {
			a.dlq.RegisterJob(usecase.NewAlertRedeliveryJob(a.dispatcher, a.l))
		}
		if err := a.dlq.Start(); err != nil {
			a.l.Error("dlq start error", applogger.Error(err))
		}
	}

	// Periodic safety governance
	if err := a.monitor.Start(); err != nil {
		a.l.Error("safety monitor start error", applogger.Error(err))
		return err
	}
	a.l.Info("safety monitor started", applogger.String("cadence", a.cfg.Safety.CronSpec))

	// Scan loop
	go func() {
		if err := a.runner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.l.Error("scan runner error", applogger.Error(err))
		}
	}()

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.monitor.Stop()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.dlq != nil {
		if err := a.dlq.Stop(ctx); err != nil {
			a.l.Warn("dlq stop error", applogger.Error(err))
		}
	}

	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			a.l.Warn("dispatcher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
