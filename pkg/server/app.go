package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/services/sentiment"
	"TradePulse/internal/usecase"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	pkgkafka "TradePulse/pkg/kafka"
	applogger "TradePulse/pkg/logger"
)

// App encapsulates the entire application lifecycle: market ingestion, the
// decision loop, the fills consumer, and the control-surface HTTP server.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	collector   *usecase.MarketCollector
	runner      *usecase.CycleRunner
	consumer    *pkgkafka.Consumer
	fills       pkgkafka.MessageHandler
	chClient    *pkgch.Client
	store       drepo.SignalStore
	publisher   drepo.DecisionPublisher
	sentiment   *sentiment.Provider
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.MarketCollector,
	runner *usecase.CycleRunner,
	consumer *pkgkafka.Consumer,
	fills pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	store drepo.SignalStore,
	publisher drepo.DecisionPublisher,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		runner:    runner,
		consumer:  consumer,
		fills:     fills,
		chClient:  chClient,
		store:     store,
		publisher: publisher,
	}
}

// SetHTTPHandler allows DI to inject the control-surface handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetSentiment allows DI to inject the optional sentiment poller.
func (a *App) SetSentiment(p *sentiment.Provider) { a.sentiment = p }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Offline sink schema, best-effort
	if a.store != nil {
		if err := a.store.Init(ctx); err != nil {
			l.Warn("signal store init failed", applogger.Error(err))
		}
	}

	// Market ingestion
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("collector error", applogger.Error(err))
		}
	}()
	l.Info("market collector started", applogger.Strings("symbols", a.cfg.Binance.Symbols))

	// External sentiment features, when configured
	if a.sentiment != nil {
		a.sentiment.Start(ctx)
	}

	// Decision loop
	a.runner.Start(ctx)
	l.Info("decision loop started", applogger.Duration("interval", a.cfg.Cycle.Interval))

	// Fills consumer if configured
	if a.consumer != nil && a.fills != nil {
		a.consumer.RegisterHandler(a.fills)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("fills consumer started", applogger.String("topic", a.fills.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx, l)
}

// shutdown gracefully stops all services. The decision loop is stopped
// first so an in-flight cycle completes before its collaborators close.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	a.runner.Stop()

	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// drain the log collector before its producer goes away
	if a.log != nil {
		a.log.RemoveCollector()
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("decision publisher close error", applogger.Error(err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			l.Warn("signal store close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
