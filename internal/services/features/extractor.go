package features

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
)

// Config bounds the rolling buffers behind feature computation.
type Config struct {
	TradeWindow      int           // trades kept per symbol
	LiquidationDecay time.Duration // liquidation heat lookback
}

type trade struct {
	ts    time.Time
	price float64
	qty   float64
}

type book struct {
	bidPrice, bidQty float64
	askPrice, askQty float64
}

type symbolState struct {
	trades       []trade
	book         book
	fundingRate  float64
	liquidations []trade
}

// Extractor folds the raw event stream into per-symbol rolling buffers and
// derives the feature vector plus regime statistics the decision core reads
// once per cycle. Ingest is called from the stream pipeline; Snapshot from
// the cycle runner.
type Extractor struct {
	cfg Config

	mu       sync.RWMutex
	symbols  map[string]*symbolState
	external map[string]map[string]float64

	now func() time.Time
}

// New creates an extractor. TradeWindow defaults to 200 and the liquidation
// lookback to 5 minutes.
func New(cfg Config) *Extractor {
	if cfg.TradeWindow <= 0 {
		cfg.TradeWindow = 200
	}
	if cfg.LiquidationDecay <= 0 {
		cfg.LiquidationDecay = 5 * time.Minute
	}
	return &Extractor{
		cfg:      cfg,
		symbols:  make(map[string]*symbolState),
		external: make(map[string]map[string]float64),
		now:      time.Now,
	}
}

// SetExternal replaces the externally sourced features for a symbol, for
// example sentiment scores polled from a model service. They are merged
// into every subsequent snapshot.
func (e *Extractor) SetExternal(symbol string, feats map[string]float64) {
	cp := make(map[string]float64, len(feats))
	for k, v := range feats {
		cp[k] = v
	}
	e.mu.Lock()
	e.external[symbol] = cp
	e.mu.Unlock()
}

// Ingest folds one stream event into the symbol's rolling state.
func (e *Extractor) Ingest(ev models.MarketEvent) {
	if ev.Symbol == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.symbols[ev.Symbol]
	if !ok {
		st = &symbolState{}
		e.symbols[ev.Symbol] = st
	}

	switch ev.Kind {
	case models.EventTrade:
		st.trades = append(st.trades, trade{ts: ev.Timestamp, price: ev.Price, qty: ev.Qty})
		if n := len(st.trades); n > e.cfg.TradeWindow {
			st.trades = append(st.trades[:0:0], st.trades[n-e.cfg.TradeWindow:]...)
		}
	case models.EventBook:
		st.book = book{
			bidPrice: ev.BidPrice, bidQty: ev.BidQty,
			askPrice: ev.AskPrice, askQty: ev.AskQty,
		}
	case models.EventFunding:
		st.fundingRate = ev.FundingRate
	case models.EventLiquidation:
		st.liquidations = append(st.liquidations, trade{ts: ev.Timestamp, price: ev.Price, qty: ev.Qty})
		cutoff := e.now().Add(-e.cfg.LiquidationDecay)
		for len(st.liquidations) > 0 && st.liquidations[0].ts.Before(cutoff) {
			st.liquidations = st.liquidations[1:]
		}
	}
}

// Snapshot derives the current MarketState for every symbol with at least
// two trades. The returned snapshot is a fresh copy.
func (e *Extractor) Snapshot() models.MarketSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	out := make(models.MarketSnapshot, len(e.symbols))
	for symbol, st := range e.symbols {
		if len(st.trades) < 2 {
			continue
		}
		out[symbol] = e.derive(symbol, st, now)
	}
	return out
}

func (e *Extractor) derive(symbol string, st *symbolState, now time.Time) models.MarketState {
	returns := logReturns(st.trades)
	vol := stddev(returns)
	last := st.trades[len(st.trades)-1]
	first := st.trades[0]

	// price velocity: fractional move per second over the window
	elapsed := last.ts.Sub(first.ts).Seconds()
	velocity := 0.0
	if elapsed > 0 && first.price > 0 {
		velocity = (last.price - first.price) / first.price / elapsed
	}

	// volume acceleration: recent half volume over prior half volume
	volumeAccel := volumeAcceleration(st.trades)

	// liquidation heat: notional liquidated inside the lookback, log-scaled
	liqNotional := 0.0
	cutoff := now.Add(-e.cfg.LiquidationDecay)
	for _, l := range st.liquidations {
		if !l.ts.Before(cutoff) {
			liqNotional += l.price * l.qty
		}
	}
	liqHeat := math.Log1p(liqNotional / 1e4)

	imbalance := orderImbalance(st.book)
	depth := depthScore(st.book, last.price)
	slippage := spreadFraction(st.book)

	fundingBias := 0.0
	if st.fundingRate != 0 {
		// positive funding means crowded longs, a short bias
		fundingBias = -st.fundingRate * 1e3
	}

	feats := map[string]float64{
		models.FeaturePriceVelocity:      velocity,
		models.FeatureVolumeAcceleration: volumeAccel,
		models.FeatureLiquidationHeat:    liqHeat,
		models.FeatureOrderImbalance:     imbalance,
		models.FeatureFundingBias:        fundingBias,
	}
	for k, v := range e.external[symbol] {
		feats[k] = v
	}

	return models.MarketState{
		Symbol:           symbol,
		Timestamp:        now,
		LastPrice:        last.price,
		Volatility:       vol,
		ATR:              averageRange(st.trades),
		Momentum:         momentum(returns),
		LiquidityScore:   liquidityScore(st.book),
		DepthScore:       depth,
		Slippage:         slippage,
		FundingRate:      st.fundingRate,
		OrderImbalance:   imbalance,
		TrendConsistency: trendConsistency(returns),
		Features:         feats,
	}
}

// SetClock overrides the time source for tests.
func (e *Extractor) SetClock(now func() time.Time) { e.now = now }

// logReturns computes r_t = ln(P_t / P_{t-1}) over the trade buffer.
func logReturns(trades []trade) []float64 {
	if len(trades) < 2 {
		return nil
	}
	out := make([]float64, 0, len(trades)-1)
	for i := 1; i < len(trades); i++ {
		prev, cur := trades[i-1].price, trades[i].price
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, x := range xs {
		sum += x
		sum2 += x * x
	}
	mean := sum / float64(n)
	variance := (sum2 - float64(n)*mean*mean) / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// momentum is the mean return scaled into a roughly [-1, 1] signal.
func momentum(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	m := sum / float64(len(returns)) * 1e3
	if m > 1 {
		m = 1
	}
	if m < -1 {
		m = -1
	}
	return m
}

// trendConsistency is the signed excess of same-direction returns, in [-1, 1].
func trendConsistency(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	up := 0
	for _, r := range returns {
		if r > 0 {
			up++
		}
	}
	return 2*float64(up)/float64(len(returns)) - 1
}

// averageRange approximates a true-range statistic from absolute tick moves.
func averageRange(trades []trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(trades); i++ {
		prev := trades[i-1].price
		if prev <= 0 {
			continue
		}
		sum += math.Abs(trades[i].price-prev) / prev
	}
	return sum / float64(len(trades)-1)
}

func volumeAcceleration(trades []trade) float64 {
	n := len(trades)
	if n < 4 {
		return 0
	}
	half := n / 2
	older, recent := 0.0, 0.0
	for i, t := range trades {
		if i < half {
			older += t.qty
		} else {
			recent += t.qty
		}
	}
	if older <= 0 {
		return 0
	}
	return recent / older
}

func orderImbalance(b book) float64 {
	total := b.bidQty + b.askQty
	if total <= 0 {
		return 0
	}
	return (b.bidQty - b.askQty) / total
}

// depthScore is top-of-book notional on a log scale, in [0, ~1].
func depthScore(b book, price float64) float64 {
	if price <= 0 {
		return 0
	}
	notional := (b.bidQty + b.askQty) * price
	return math.Min(math.Log1p(notional/1e5), 1)
}

func liquidityScore(b book) float64 {
	spread := spreadFraction(b)
	if spread <= 0 {
		return 1
	}
	return math.Min(1e-4/spread, 1)
}

func spreadFraction(b book) float64 {
	if b.bidPrice <= 0 || b.askPrice <= b.bidPrice {
		return 0
	}
	mid := (b.bidPrice + b.askPrice) / 2
	return (b.askPrice - b.bidPrice) / mid
}
