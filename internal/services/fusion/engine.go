package fusion

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// Config holds fusion weights and history sizing.
type Config struct {
	Weights             map[string]float64
	ActivationThreshold float64
	ConsistencyFactor   float64
	HistorySize         int
}

// Engine combines weighted feature components into a per-symbol score and a
// coarse EV/tier estimate. The coarse estimate exists for operational
// logging only; the EV engine owns the authoritative evaluation.
type Engine struct {
	cfg Config
	log *logger.Logger

	mu      sync.RWMutex
	signals map[string]models.Signal
	history []models.SignalRecord

	now func() time.Time
}

// DefaultWeights returns the component weights used when config leaves them
// unset. They sum to 1.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"breakout":            0.25,
		"momentum":            0.20,
		"whale_flow":          0.15,
		"orderbook_imbalance": 0.10,
		"funding_flip":        0.10,
		"macro_sentiment":     0.05,
		"onchain_flow":        0.05,
		"etf_flow":            0.05,
		"social_sentiment":    0.05,
	}
}

// New creates a fusion engine. HistorySize defaults to 1000 and Weights to
// DefaultWeights when unset, so a config that omits them still fuses.
func New(cfg Config, log *logger.Logger) *Engine {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if len(cfg.Weights) == 0 {
		cfg.Weights = DefaultWeights()
	}
	return &Engine{
		cfg:     cfg,
		log:     log,
		signals: make(map[string]models.Signal),
		now:     time.Now,
	}
}

// Fuse applies the fixed transform for each named feature, scales it by the
// configured weight, and returns the per-component breakdown plus the total
// score. A feature missing from the map contributes its neutral transform.
func (e *Engine) Fuse(feat map[string]float64) (map[string]float64, float64) {
	breakdown := make(map[string]float64, len(e.cfg.Weights))

	breakout := 0.0
	if feat[models.FeaturePriceVelocity] > 0.0005 {
		breakout = 1.0
	}
	breakdown["breakout"] = breakout * e.cfg.Weights["breakout"]

	breakdown["momentum"] = math.Min(feat[models.FeatureVolumeAcceleration]/5, 1) * e.cfg.Weights["momentum"]
	breakdown["whale_flow"] = math.Min(feat[models.FeatureLiquidationHeat]/10, 1) * e.cfg.Weights["whale_flow"]
	breakdown["orderbook_imbalance"] = math.Min(math.Abs(feat[models.FeatureOrderImbalance]), 1) * e.cfg.Weights["orderbook_imbalance"]

	fundingFlip := -0.2
	if feat[models.FeatureFundingBias] > 0 {
		fundingFlip = 0.2
	}
	breakdown["funding_flip"] = fundingFlip * e.cfg.Weights["funding_flip"]

	breakdown["macro_sentiment"] = feat[models.FeatureMacroSentiment] * e.cfg.Weights["macro_sentiment"]
	breakdown["onchain_flow"] = feat[models.FeatureOnchainScore] * e.cfg.Weights["onchain_flow"]
	breakdown["etf_flow"] = feat[models.FeatureEtfFlow] * e.cfg.Weights["etf_flow"]
	breakdown["social_sentiment"] = feat[models.FeatureSocialSentiment] * e.cfg.Weights["social_sentiment"]

	total := 0.0
	for _, v := range breakdown {
		total += v
	}
	return breakdown, total
}

// Compute fuses every symbol in the snapshot, replaces the current signal
// set, and appends one SignalRecord per symbol to the bounded history. It
// returns the records appended by this pass so callers can forward them to
// the offline sink.
func (e *Engine) Compute(snapshot models.MarketSnapshot) []models.SignalRecord {
	now := e.now()
	next := make(map[string]models.Signal, len(snapshot))
	recs := make([]models.SignalRecord, 0, len(snapshot))

	for symbol, state := range snapshot {
		breakdown, score := e.Fuse(state.Features)
		ev := e.coarseEV(score, state)
		tier := models.ClassifyTier(ev)

		next[symbol] = models.Signal{
			Symbol:    symbol,
			Timestamp: now,
			Score:     score,
			EV:        ev,
			Tier:      tier,
			Breakdown: breakdown,
		}
		recs = append(recs, models.SignalRecord{
			Timestamp: now,
			Symbol:    symbol,
			Score:     score,
			EV:        ev,
			Tier:      tier,
		})
	}

	e.mu.Lock()
	e.signals = next
	e.history = append(e.history, recs...)
	if n := len(e.history); n > e.cfg.HistorySize {
		e.history = append(e.history[:0:0], e.history[n-e.cfg.HistorySize:]...)
	}
	e.mu.Unlock()

	if e.log != nil {
		e.log.Debug("signals updated", logger.Int("symbols", len(next)))
	}
	return recs
}

// coarseEV runs the simplified win-probability model over the fused score.
// It shares the tier thresholds with the EV engine via models.ClassifyTier.
func (e *Engine) coarseEV(score float64, state models.MarketState) float64 {
	p := 1 / (1 + math.Exp(-6*(score-e.cfg.ActivationThreshold)))
	gain := 1.0 + 2.5*state.Features[models.FeatureVolumeAcceleration]/5
	loss := 1.0 + state.Volatility
	return p*gain - (1-p)*loss - 0.0016
}

// Signal returns the current fused signal for one symbol.
func (e *Engine) Signal(symbol string) (models.Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.signals[symbol]
	return s, ok
}

// AllSignals returns a copy of the current signal set.
func (e *Engine) AllSignals() map[string]models.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]models.Signal, len(e.signals))
	for k, v := range e.signals {
		out[k] = v
	}
	return out
}

// History returns a copy of the bounded signal history, oldest first.
func (e *Engine) History() []models.SignalRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.SignalRecord, len(e.history))
	copy(out, e.history)
	return out
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }
