//go:build wireinject
// +build wireinject

package di

import (
	"TradePulse/pkg/config"
	"TradePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideSignalStore,
		ProvideDecisionPublisher,
		ProvideMarketStream,

		// Core engines
		ProvideExtractor,
		ProvideFeatureSource,
		ProvideAccount,
		ProvideAccounting,
		ProvideFusionEngine,
		ProvideEVEngine,
		ProvideRiskManager,
		ProvideExecutor,

		// Use cases
		ProvideCycleRunner,
		ProvideMarketCollector,
		ProvideFillsHandler,
		ProvideSentimentProvider,
		ProvideStatusQuery,

		// HTTP
		ProvideControlHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
