package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	segkafka "github.com/segmentio/kafka-go"

	"DriftWatch/internal/domain/repository"
	"DriftWatch/internal/domain/service"
	"DriftWatch/internal/handler/api"
	mid "DriftWatch/internal/middleware"
	internalrepo "DriftWatch/internal/repository"
	"DriftWatch/internal/service/alerting"
	"DriftWatch/internal/service/marketdata"
	"DriftWatch/internal/services/analytics"
	"DriftWatch/internal/usecase"
	"DriftWatch/pkg/cache"
	pkgch "DriftWatch/pkg/clickhouse"
	"DriftWatch/pkg/config"
	pkgkafka "DriftWatch/pkg/kafka"
	applogger "DriftWatch/pkg/logger"
	"DriftWatch/pkg/metrics"
	"DriftWatch/pkg/queue"
	"DriftWatch/pkg/server"
)

// ProvideLogger creates the structured application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client when history
// persistence is enabled. Returns nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS driftwatch",
		"CREATE TABLE IF NOT EXISTS driftwatch.alerts (id String, ts DateTime64(3), symbol String, pattern String, tier String, risk String, magnitude Float64, confidence Float64, value_score Float64, volume_confirmed UInt8, expected_duration_s Int64) ENGINE=MergeTree ORDER BY (symbol, ts)",
		"CREATE TABLE IF NOT EXISTS driftwatch.detector_samples (ts DateTime64(3), variant String, total_alerts Int32, high_value Int32, avg_magnitude Float64, avg_confidence Float64, latency_ms Int64, error_count Int32) ENGINE=MergeTree ORDER BY (variant, ts)",
		"CREATE TABLE IF NOT EXISTS driftwatch.rollout_audit (id String, ts DateTime64(3), action String, reason String, mode String, percentage Float64) ENGINE=MergeTree ORDER BY ts",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideAlertStore creates the alert history store, a no-op when
// ClickHouse is disabled.
func ProvideAlertStore(chClient *pkgch.Client) repository.AlertStore {
	if chClient == nil {
		return internalrepo.NewNoopAlertStore()
	}
	return internalrepo.NewClickHouseAlertStore(chClient.DB())
}

// ProvideKafkaProducer creates a Kafka producer when brokers are configured
// and a kafka surface (alert sink or quote source) needs one.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Alerts.Sink != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Producer.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertSink builds the configured alert sink.
func ProvideAlertSink(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) (repository.AlertSink, error) {
	return alerting.BuildSink(cfg, producer, l)
}

// ProvideDLQ creates the redis-backed dead letter queue for failed alert
// deliveries: publish-only by default, with redelivery workers when
// alerts.dlq.redeliver is set. Started by the app after the redelivery job
// is registered. Nil when disabled.
func ProvideDLQ(cfg *config.Config, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Alerts.DLQ.Enabled || !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	mode := queue.ModeProducerOnly
	if cfg.Alerts.DLQ.Redeliver {
		mode = queue.ModeProducerConsumer
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Alerts.DLQ.Workers,
		RetryLimit: cfg.Alerts.DLQ.RetryLimit,
		RetryDelay: cfg.Alerts.DLQ.RetryDelay,
	}, client, mode, queue.WithKeyPrefix(cfg.Alerts.DLQ.Queue))
}

// ProvideDLQService exposes the queue's publish surface to the dispatcher.
// The nil check keeps a disabled queue an untyped nil interface.
func ProvideDLQService(q *queue.RedisQueue) queue.QueueService {
	if q == nil {
		return nil
	}
	return q
}

// ProvideWindowStore creates the rolling window store.
func ProvideWindowStore(cfg *config.Config) *marketdata.WindowStore {
	return marketdata.NewWindowStore(cfg.MarketData.WindowSize)
}

// ProvideSnapshotProvider creates the snapshot provider with a short-TTL
// cache: layered memory+redis when redis is enabled, in-process otherwise.
func ProvideSnapshotProvider(store *marketdata.WindowStore, cfg *config.Config, l *applogger.Logger) repository.MarketDataProvider {
	var snapCache cache.Service = cache.NewMemoryCache(cache.WithMemoryMaxSize(16))
	if cfg.Redis.Enabled {
		host, port := splitHostPort(cfg.Redis.Addr, 6379)
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(host),
			cache.WithRedisPort(port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
		)
		if err != nil {
			l.Warn("redis cache unavailable, using memory cache", applogger.Error(err))
		} else {
			snapCache = cache.NewLayeredCache(rc)
		}
	}
	return marketdata.NewSnapshotProvider(store, snapCache, cfg.MarketData.ReferenceSymbol, cfg.MarketData.SnapshotTTL, l)
}

func splitHostPort(addr string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// ProvideQuoteStream creates the WebSocket quote stream. The reference
// symbol is subscribed alongside the tracked symbols.
func ProvideQuoteStream(cfg *config.Config) repository.QuoteStream {
	symbols := append([]string{cfg.MarketData.ReferenceSymbol}, cfg.MarketData.Symbols...)
	return marketdata.NewWSClient(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		symbols,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
	)
}

// ProvideQuotePipeline builds the validation/throttle pipeline in front of
// the window store.
func ProvideQuotePipeline(store *marketdata.WindowStore, m repository.Metrics) *mid.QuotePipeline {
	writer := usecase.NewWindowWriter(store)
	return mid.NewQuotePipeline(writer, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideQuoteCollector creates the stream collector.
func ProvideQuoteCollector(
	stream repository.QuoteStream,
	store *marketdata.WindowStore,
	m repository.Metrics,
	pipe *mid.QuotePipeline,
) *usecase.QuoteCollector {
	return usecase.NewQuoteCollector(stream, usecase.NewWindowWriter(store), m, pipe)
}

// ProvideKafkaConsumer creates a Kafka consumer for the quote topic when
// marketdata.source is "kafka". Nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.MarketData.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(consumerHooks(m, l))
	return consumer, nil
}

// consumerHooks stamps trace metadata onto each message context and surfaces
// processing failures through metrics.
func consumerHooks(m repository.Metrics, l *applogger.Logger) pkgkafka.ConsumerHook {
	return pkgkafka.NewHookChain(
		pkgkafka.HookFuncs{
			Before: func(ctx context.Context, _ string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
				ctx = pkgkafka.WithStartTime(ctx, time.Now())
				if id := pkgkafka.ExtractTraceID(km); id != "" {
					ctx = pkgkafka.WithTraceID(ctx, id)
				}
				return ctx, km, data, nil
			},
			Err: func(_ context.Context, topic string, _ segkafka.Message, _ []byte, err error) {
				m.RecordError("kafka_consume")
				l.Warn("kafka message processing failed",
					applogger.String("topic", topic),
					applogger.Error(err),
				)
			},
		},
	)
}

// ProvideKafkaQuotesHandler registers the handler for the quotes topic.
func ProvideKafkaQuotesHandler(pipe *mid.QuotePipeline, m repository.Metrics, cfg *config.Config) *usecase.KafkaQuotesHandler {
	return usecase.NewKafkaQuotesHandler(cfg.Kafka.QuotesTopic, pipe, m)
}

// ProvideAnalyzers builds the pattern analyzer set.
func ProvideAnalyzers(cfg *config.Config) []service.PatternAnalyzer {
	return analytics.BuildAnalyzers(cfg)
}

// ProvideTieredScanner creates the optimized tiered scanner.
func ProvideTieredScanner(cfg *config.Config, analyzers []service.PatternAnalyzer, m repository.Metrics, l *applogger.Logger) *usecase.TieredScanner {
	return usecase.NewTieredScanner(usecase.NewScannerConfig(cfg), analyzers, m, l)
}

// ProvideRandomSource seeds the gradual-rollout draws; a zero seed falls
// back to wall clock.
func ProvideRandomSource(cfg *config.Config) repository.RandomSource {
	seed := cfg.Rollout.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return repository.SeededRandom(seed)
}

// ProvideRolloutStateStore creates the shared canary state.
func ProvideRolloutStateStore(cfg *config.Config) *usecase.RolloutStateStore {
	return usecase.NewRolloutStateStore(cfg)
}

// ProvideSampleLog creates the bounded performance sample log.
func ProvideSampleLog(cfg *config.Config) *usecase.SampleLog {
	return usecase.NewSampleLog(cfg.Rollout.SampleCapacity)
}

// ProvideRolloutController wires both detectors into the canary router.
func ProvideRolloutController(
	cfg *config.Config,
	scanner *usecase.TieredScanner,
	state *usecase.RolloutStateStore,
	samples *usecase.SampleLog,
	store repository.AlertStore,
	m repository.Metrics,
	rng repository.RandomSource,
	l *applogger.Logger,
) *usecase.RolloutController {
	legacy := usecase.NewLegacyDetector(cfg)
	optimized := usecase.NewOptimizedDetector(scanner)
	return usecase.NewRolloutController(legacy, optimized, state, samples, store, m, rng, cfg.Rollout.DetectorTimeout, l)
}

// ProvideSafetyMonitor creates the rollout governor.
func ProvideSafetyMonitor(
	cfg *config.Config,
	state *usecase.RolloutStateStore,
	samples *usecase.SampleLog,
	store repository.AlertStore,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SafetyMonitor {
	return usecase.NewSafetyMonitor(cfg, state, samples, store, m, l)
}

// ProvideAlertDispatcher creates the alert fan-out.
func ProvideAlertDispatcher(
	sink repository.AlertSink,
	store repository.AlertStore,
	dlq queue.QueueService,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AlertDispatcher {
	return usecase.NewAlertDispatcher(sink, store, dlq, m, l)
}

// ProvideScanRunner creates the scan loop.
func ProvideScanRunner(
	cfg *config.Config,
	provider repository.MarketDataProvider,
	controller *usecase.RolloutController,
	dispatcher *usecase.AlertDispatcher,
	scanner *usecase.TieredScanner,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ScanRunner {
	return usecase.NewScanRunner(cfg, provider, controller, dispatcher, scanner, m, l)
}

// ProvideRolloutHandler creates the operator HTTP surface.
func ProvideRolloutHandler(
	l *applogger.Logger,
	monitor *usecase.SafetyMonitor,
	state *usecase.RolloutStateStore,
	store repository.AlertStore,
) *api.RolloutHandler {
	return api.NewRolloutHandler(l, monitor, state, store)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaQuotesHandler,
	runner *usecase.ScanRunner,
	monitor *usecase.SafetyMonitor,
	dispatcher *usecase.AlertDispatcher,
	dlq *queue.RedisQueue,
	handler *api.RolloutHandler,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, collector, consumer, kh, runner, monitor, dispatcher, dlq, handler, chClient)
}
