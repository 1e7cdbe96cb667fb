package sentiment

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/services/features"
	xhttp "TradePulse/pkg/http"
	"TradePulse/pkg/logger"
)

// Config points at the external sentiment model service.
type Config struct {
	ServiceURL string
	Symbols    []string
	Interval   time.Duration
	Timeout    time.Duration
	Attempts   int
}

// Provider polls an external model service for slow-moving sentiment
// features (macro, on-chain, ETF flow, social) and pushes them into the
// feature extractor. Missing or failing fetches leave the previous scores
// in place; fusion treats absent features as neutral.
type Provider struct {
	cfg       Config
	client    *xhttp.Client
	extractor *features.Extractor
	log       *logger.Logger
}

// New creates a provider. Interval defaults to 60s, timeout to 3s, and
// attempts to 2.
func New(cfg Config, extractor *features.Extractor, log *logger.Logger) *Provider {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	return &Provider{
		cfg:       cfg,
		client:    xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		extractor: extractor,
		log:       log,
	}
}

// Start launches the polling loop. A no-op when no service URL is set.
func (p *Provider) Start(ctx context.Context) {
	if p.cfg.ServiceURL == "" {
		return
	}
	go func() {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		p.pollAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.pollAll(ctx)
			}
		}
	}()
}

func (p *Provider) pollAll(ctx context.Context) {
	for _, symbol := range p.cfg.Symbols {
		if err := p.poll(ctx, symbol); err != nil {
			if p.log != nil {
				p.log.Warn("sentiment poll failed",
					logger.String("symbol", symbol),
					logger.Error(err))
			}
		}
	}
}

type scoreResponse struct {
	Macro   float64 `json:"macro"`
	Onchain float64 `json:"onchain"`
	ETF     float64 `json:"etf"`
	Social  float64 `json:"social"`
}

func (p *Provider) poll(ctx context.Context, symbol string) error {
	var res scoreResponse
	if err := p.postJSONWithRetry(ctx, "/v1/sentiment",
		map[string]string{"symbol": symbol}, &res, p.cfg.Attempts); err != nil {
		return err
	}
	p.extractor.SetExternal(symbol, map[string]float64{
		models.FeatureMacroSentiment:  res.Macro,
		models.FeatureOnchainScore:    res.Onchain,
		models.FeatureEtfFlow:         res.ETF,
		models.FeatureSocialSentiment: res.Social,
	})
	return nil
}

func (p *Provider) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}, attempts int) error {
	var err error
	for i := 1; i <= attempts; i++ {
		err = p.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     p.cfg.ServiceURL + path,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    payload,
		}, dest)
		if err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("post %s: %w", path, err)
}
