//go:build wireinject
// +build wireinject

package di

import (
	"DriftWatch/pkg/config"
	"DriftWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideAlertStore,
		ProvideDLQ,
		ProvideDLQService,

		// Market data intake
		ProvideWindowStore,
		ProvideSnapshotProvider,
		ProvideQuoteStream,
		ProvideQuotePipeline,
		ProvideQuoteCollector,
		ProvideKafkaQuotesHandler,

		// Detection and rollout
		ProvideAnalyzers,
		ProvideTieredScanner,
		ProvideRandomSource,
		ProvideRolloutStateStore,
		ProvideSampleLog,
		ProvideRolloutController,
		ProvideSafetyMonitor,

		// Alerting
		ProvideAlertSink,
		ProvideAlertDispatcher,
		ProvideScanRunner,

		// HTTP surface
		ProvideRolloutHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
