package usecase

import (
	"context"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	mid "TradePulse/internal/middleware"
	"TradePulse/internal/services/features"
)

// extractorSink adapts the feature extractor to the pipeline's Sink.
type extractorSink struct {
	extractor *features.Extractor
}

func (s extractorSink) Process(_ context.Context, ev models.MarketEvent) error {
	s.extractor.Ingest(ev)
	return nil
}

// MarketCollector owns the exchange stream lifecycle: connect, consume into
// the realtime pipeline, and reconnect on stream errors.
type MarketCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
}

// NewMarketCollector wires the stream to the feature extractor through a
// realtime pipeline.
func NewMarketCollector(stream drepo.MarketStream, extractor *features.Extractor, metrics drepo.Metrics, opts ...mid.PipelineOption) *MarketCollector {
	return &MarketCollector{
		stream:  stream,
		pipe:    mid.NewRealtimePipeline(extractorSink{extractor}, metrics, opts...),
		metrics: metrics,
	}
}

// IsConnected reports whether the exchange stream is up.
func (c *MarketCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects the stream and launches the consume loop.
func (c *MarketCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *MarketCollector) consume(ctx context.Context, evCh <-chan models.MarketEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, open := <-errCh:
			if !open || err != nil {
				c.metrics.RecordError("stream")
				// Reconnect sleeps with backoff, so retries stay paced.
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				evCh, errCh = c.stream.Read(ctx)
			}
		case ev, open := <-evCh:
			if !open {
				evCh = nil
				continue
			}
			_ = c.pipe.Process(ctx, ev)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *MarketCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
