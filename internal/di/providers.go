package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"TradePulse/internal/account"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/executor"
	"TradePulse/internal/handler/api"
	internalrepo "TradePulse/internal/repository"
	"TradePulse/internal/risk"
	"TradePulse/internal/service/binance"
	"TradePulse/internal/services/ev"
	"TradePulse/internal/services/features"
	"TradePulse/internal/services/fusion"
	"TradePulse/internal/services/sentiment"
	"TradePulse/internal/usecase"
	"TradePulse/pkg/cache"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	pkgkafka "TradePulse/pkg/kafka"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/metrics"
	"TradePulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return logger.New(&logger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client. Table creation is
// owned by the signal store's Init. The sink is additive: when disabled or
// unreachable the app runs without it instead of failing startup.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, error) {
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
		l.Warn("clickhouse unreachable, signal sink disabled", logger.Error(err))
		return nil, nil
	}
	return client, nil
}

// ProvideSignalStore creates the ClickHouse-backed offline sink, or nil when
// no client is available.
func ProvideSignalStore(chClient *pkgch.Client, cfg *config.Config, l *logger.Logger) repository.SignalStore {
	if chClient == nil {
		return nil
	}
	store := internalrepo.NewCHSignalStore(chClient, cfg.ClickHouse.Database)
	if s, ok := store.(*internalrepo.CHSignalStore); ok {
		s.SetLogger(l)
	}
	return store
}

// kafkaLogSink adapts the producer to the log collector's publisher boundary.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// ProvideKafkaProducer creates a Kafka producer and attaches the error-log
// aggregation collector to the application logger.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogsTopic,
		Publisher:      kafkaLogSink{producer: producer},
	})
	return producer, nil
}

// ProvideDecisionPublisher creates the Kafka decision audit publisher.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.DecisionPublisher {
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideKafkaConsumer creates the fills consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Fills.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Fills.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Fills.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Fills.RetryMax, cfg.Kafka.Fills.BackoffMin, cfg.Kafka.Fills.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Fills.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Fills.MinBytes, cfg.Kafka.Fills.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideCache creates the API response cache: layered redis+memory when
// redis is enabled, memory only otherwise.
func ProvideCache(cfg *config.Config) cache.Service {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache()
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return cache.NewMemoryCache()
	}
	port, _ := strconv.Atoi(portStr)
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc)
}

// ProvideMarketStream creates the Binance WebSocket stream.
func ProvideMarketStream(cfg *config.Config, l *logger.Logger) repository.MarketStream {
	return binance.New(
		cfg.Binance.WebSocketURL,
		cfg.Binance.Symbols,
		cfg.Binance.PingInterval,
		cfg.Binance.MaxBackoff,
		l,
	)
}

// ProvideExtractor creates the feature extractor.
func ProvideExtractor() *features.Extractor {
	return features.New(features.Config{})
}

// ProvideFeatureSource exposes the extractor as the snapshot boundary.
func ProvideFeatureSource(ex *features.Extractor) repository.FeatureSource {
	return ex
}

// ProvideAccount creates the paper account.
func ProvideAccount(cfg *config.Config, l *logger.Logger) *account.Account {
	return account.New(cfg.Account.InitialBalance, l)
}

// ProvideAccounting exposes the account as the read-only boundary.
func ProvideAccounting(acct *account.Account) repository.Accounting {
	return acct
}

// ProvideFusionEngine creates the signal fusion engine.
func ProvideFusionEngine(cfg *config.Config, l *logger.Logger) *fusion.Engine {
	return fusion.New(fusion.Config{
		Weights:             cfg.Fusion.Weights,
		ActivationThreshold: cfg.Fusion.ActivationThreshold,
		HistorySize:         cfg.Fusion.HistorySize,
	}, l)
}

// ProvideEVEngine creates the EV engine over the fusion signal set.
func ProvideEVEngine(cfg *config.Config, fus *fusion.Engine, l *logger.Logger) *ev.Engine {
	return ev.New(ev.Config{
		BetaAlpha:   cfg.EV.BetaAlpha,
		BetaBeta:    cfg.EV.BetaBeta,
		TradeWindow: cfg.EV.TradeWindow,
	}, fus, ev.NewUniformLeverage(cfg.EV.RandomSeed), l)
}

// ProvideRiskManager creates the risk manager.
func ProvideRiskManager(cfg *config.Config, acct repository.Accounting, m repository.Metrics, l *logger.Logger) *risk.Manager {
	return risk.New(risk.Config{
		DailyDrawdownLimit:    cfg.Risk.DailyDrawdownLimit,
		MarginHealthThreshold: cfg.Risk.MarginHealthThreshold,
		BreakerCooldown:       cfg.Risk.BreakerCooldown,
		MaxLossStreak:         cfg.Risk.MaxLossStreak,
		EVFloor:               cfg.Executor.EVFloor,
		DrawdownHistorySize:   cfg.Risk.DrawdownHistorySize,
	}, acct, m, l)
}

// ProvideExecutor creates the execution engine.
func ProvideExecutor(cfg *config.Config, evEngine *ev.Engine, riskMgr *risk.Manager, acct repository.Accounting, pub repository.DecisionPublisher, m repository.Metrics, l *logger.Logger) *executor.Engine {
	return executor.New(executor.Config{
		EntryThreshold: cfg.Executor.EntryThreshold,
		EVFloor:        cfg.Executor.EVFloor,
		MaxHolding:     cfg.Executor.MaxHolding,
		StaleAfter:     cfg.Executor.StaleAfter,
		EntryCooldown:  cfg.Executor.EntryCooldown,
		EVDecayRatio:   cfg.Executor.EVDecayRatio,
		RotationRatio:  cfg.Executor.RotationRatio,
	}, evEngine, riskMgr, acct, pub, m, l)
}

// ProvideCycleRunner creates the decision loop.
func ProvideCycleRunner(cfg *config.Config, src repository.FeatureSource, fus *fusion.Engine, evEngine *ev.Engine, exec *executor.Engine, store repository.SignalStore, m repository.Metrics, l *logger.Logger) *usecase.CycleRunner {
	return usecase.NewCycleRunner(usecase.CycleConfig{
		Interval:       cfg.Cycle.Interval,
		PatienceCycles: cfg.Cycle.PatienceCycles,
		ThresholdDecay: cfg.Cycle.ThresholdDecay,
		ThresholdFloor: cfg.Cycle.ThresholdFloor,
	}, src, fus, evEngine, exec, store, m, l)
}

// ProvideMarketCollector wires the stream into the feature extractor.
func ProvideMarketCollector(stream repository.MarketStream, ex *features.Extractor, m repository.Metrics) *usecase.MarketCollector {
	return usecase.NewMarketCollector(stream, ex, m)
}

// ProvideFillsHandler creates the fills consumer handler.
func ProvideFillsHandler(cfg *config.Config, acct *account.Account, riskMgr *risk.Manager, m repository.Metrics) pkgkafka.MessageHandler {
	return usecase.NewFillsHandler(cfg.Kafka.Fills.Topic, acct, riskMgr, m)
}

// ProvideSentimentProvider creates the external sentiment poller.
func ProvideSentimentProvider(cfg *config.Config, ex *features.Extractor, l *logger.Logger) *sentiment.Provider {
	return sentiment.New(sentiment.Config{
		ServiceURL: cfg.Sentiment.ServiceURL,
		Symbols:    cfg.Binance.Symbols,
		Interval:   cfg.Sentiment.Interval,
		Timeout:    cfg.Sentiment.Timeout,
		Attempts:   cfg.Sentiment.Attempts,
	}, ex, l)
}

// ProvideStatusQuery creates the read-side query service.
func ProvideStatusQuery(fus *fusion.Engine, evEngine *ev.Engine, exec *executor.Engine, riskMgr *risk.Manager, acct *account.Account, src repository.FeatureSource, c cache.Service) *usecase.StatusQuery {
	return usecase.NewStatusQuery(fus, evEngine, exec, riskMgr, acct, src, c)
}

// ProvideControlHandler creates the control-surface HTTP handler.
func ProvideControlHandler(l *logger.Logger, q *usecase.StatusQuery, stream repository.MarketStream, store repository.SignalStore) *api.ControlHandler {
	return api.NewControlHandler(l, q, stream, store)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	collector *usecase.MarketCollector,
	runner *usecase.CycleRunner,
	consumer *pkgkafka.Consumer,
	fills pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	store repository.SignalStore,
	pub repository.DecisionPublisher,
	sent *sentiment.Provider,
	handler *api.ControlHandler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, l, collector, runner, consumer, fills, chClient, store, pub)
	app.SetSentiment(sent)
	app.SetHTTPHandler(handler)
	return app
}
