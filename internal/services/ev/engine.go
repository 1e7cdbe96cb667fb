package ev

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// SignalSource provides the current fused signal for a symbol.
type SignalSource interface {
	Signal(symbol string) (models.Signal, bool)
}

// Band is a half-open leverage range [Min, Max).
type Band struct {
	Min int
	Max int
}

// Config holds the Bayesian prior, the rolling window size, and the
// per-tier leverage bands.
type Config struct {
	BetaAlpha     float64
	BetaBeta      float64
	TradeWindow   int
	LeverageBands map[models.Tier]Band
}

// DefaultLeverageBands returns the tier bands used when config leaves them
// unset.
func DefaultLeverageBands() map[models.Tier]Band {
	return map[models.Tier]Band{
		models.TierExplosive: {90, 120},
		models.TierStrong:    {50, 85},
		models.TierModerate:  {20, 50},
		models.TierNeutral:   {10, 30},
		models.TierScalping:  {5, 15},
		models.TierDefensive: {1, 5},
	}
}

// Engine refines a fused score into a full evaluation: Beta-posterior win
// probability corrected by market regime, gain/loss/fee estimates, net EV,
// tier, a leverage draw, and a capped Kelly fraction. Every evaluation
// appends a TradeRecord to the bounded rolling window that feeds the
// posterior's per-symbol win/loss counts.
type Engine struct {
	cfg     Config
	signals SignalSource
	lev     LeverageStrategy
	log     *logger.Logger

	mu       sync.Mutex
	history  []models.TradeRecord
	observer func(models.EVResult)

	now func() time.Time
}

// New creates an EV engine. TradeWindow defaults to 500 and leverage bands
// to DefaultLeverageBands when unset.
func New(cfg Config, signals SignalSource, lev LeverageStrategy, log *logger.Logger) *Engine {
	if cfg.TradeWindow <= 0 {
		cfg.TradeWindow = 500
	}
	if len(cfg.LeverageBands) == 0 {
		cfg.LeverageBands = DefaultLeverageBands()
	}
	return &Engine{cfg: cfg, signals: signals, lev: lev, log: log, now: time.Now}
}

// Evaluate computes a fresh EVResult for one symbol against the given
// market state and records it in the rolling trade window. It returns false
// when no fused signal exists yet.
func (e *Engine) Evaluate(symbol string, state models.MarketState) (models.EVResult, bool) {
	res, ok := e.evaluate(symbol, state)
	if !ok {
		return models.EVResult{}, false
	}

	e.record(models.TradeRecord{
		Symbol: symbol,
		PWin:   res.PWin,
		Gain:   res.Gain,
		Loss:   res.Loss,
		EV:     res.EV,
		Tier:   res.Tier,
		Win:    res.EV > 0,
	})
	if obs := e.observerFn(); obs != nil {
		obs(res)
	}
	return res, true
}

// Preview computes the same evaluation without touching the trade window or
// the observer, for read-side queries that must not shift the posterior.
func (e *Engine) Preview(symbol string, state models.MarketState) (models.EVResult, bool) {
	return e.evaluate(symbol, state)
}

func (e *Engine) evaluate(symbol string, state models.MarketState) (models.EVResult, bool) {
	sig, ok := e.signals.Signal(symbol)
	if !ok {
		return models.EVResult{}, false
	}

	p := e.estimateProbability(symbol, sig.Score, state)
	gain := estimateGain(state)
	loss := estimateLoss(state)
	fee := estimateFee(state)
	netEV := p*gain - (1-p)*loss - fee
	tier := models.ClassifyTier(netEV)

	band := e.cfg.LeverageBands[tier]
	return models.EVResult{
		Symbol:    symbol,
		Timestamp: e.now(),
		PWin:      p,
		Gain:      gain,
		Loss:      loss,
		Fee:       fee,
		EV:        netEV,
		Tier:      tier,
		Leverage:  e.lev.Draw(band.Min, band.Max),
		Kelly:     kellyFraction(p, gain, loss),
		Breakdown: sig.Breakdown,
	}, true
}

// SetObserver installs a callback invoked with every evaluation, used to
// feed the offline sink. The callback must not block.
func (e *Engine) SetObserver(fn func(models.EVResult)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

func (e *Engine) observerFn() func(models.EVResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observer
}

// estimateProbability is the Beta-posterior mean over the symbol's rolling
// win/loss counts plus score pseudo-counts, scaled by a volatility penalty
// and a trend-consistency boost, clamped to [0.01, 0.99].
func (e *Engine) estimateProbability(symbol string, score float64, state models.MarketState) float64 {
	wins, losses := e.winLossCounts(symbol)

	alpha := e.cfg.BetaAlpha + float64(wins) + score*10
	beta := e.cfg.BetaBeta + float64(losses) + (1-score)*10
	den := alpha + beta
	if den <= 0 {
		den = 1e-9
	}
	p := alpha / den

	p *= math.Exp(-state.Volatility)
	p *= 1 + 0.15*state.TrendConsistency
	return clamp(p, 0.01, 0.99)
}

func (e *Engine) winLossCounts(symbol string) (wins, losses int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.history {
		if t.Symbol != symbol {
			continue
		}
		if t.Win {
			wins++
		} else {
			losses++
		}
	}
	return wins, losses
}

func (e *Engine) record(rec models.TradeRecord) {
	e.mu.Lock()
	e.history = append(e.history, rec)
	if n := len(e.history); n > e.cfg.TradeWindow {
		e.history = append(e.history[:0:0], e.history[n-e.cfg.TradeWindow:]...)
	}
	e.mu.Unlock()
}

// History returns a copy of the rolling trade window, oldest first.
func (e *Engine) History() []models.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.TradeRecord, len(e.history))
	copy(out, e.history)
	return out
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// estimateGain models upside from realized range, momentum, and liquidity.
func estimateGain(state models.MarketState) float64 {
	return clamp(1+3*state.ATR*state.Momentum*state.LiquidityScore, 0.5, 5.0)
}

// estimateLoss models downside from volatility against book depth plus
// slippage. Depth is floored to keep the division defined.
func estimateLoss(state models.MarketState) float64 {
	depth := state.DepthScore
	if depth <= 0 {
		depth = 1e-9
	}
	return clamp(1+2*state.Volatility/depth+10*state.Slippage, 0.5, 5.0)
}

// estimateFee is base commission plus funding cost plus slippage penalty.
func estimateFee(state models.MarketState) float64 {
	return 0.0016 + 10*math.Abs(state.FundingRate) + 2*state.Slippage
}

// kellyFraction caps the optimal-growth fraction at a quarter of equity.
func kellyFraction(p, gain, loss float64) float64 {
	b := 1.0
	if loss != 0 {
		b = gain / loss
	}
	if b == 0 {
		return 0
	}
	return clamp((p*(b+1)-1)/b, 0, 0.25)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
