package features

import (
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

func tradeEvent(symbol string, ts time.Time, price, qty float64) models.MarketEvent {
	return models.MarketEvent{Kind: models.EventTrade, Symbol: symbol, Timestamp: ts, Price: price, Qty: qty}
}

func TestSnapshotRequiresTwoTrades(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Ingest(tradeEvent("BTCUSDT", base, 100, 1))
	if snap := e.Snapshot(); len(snap) != 0 {
		t.Fatalf("one trade must not produce a state")
	}
	e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Second), 101, 1))
	snap := e.Snapshot()
	if _, ok := snap["BTCUSDT"]; !ok {
		t.Fatalf("two trades must produce a state")
	}
}

func TestIngestIgnoresEmptySymbol(t *testing.T) {
	e := New(Config{})
	e.Ingest(models.MarketEvent{Kind: models.EventTrade, Price: 100, Qty: 1})
	if snap := e.Snapshot(); len(snap) != 0 {
		t.Fatalf("events without a symbol must be dropped")
	}
}

func TestTradeWindowBounded(t *testing.T) {
	e := New(Config{TradeWindow: 5})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ { // capacity+1
		e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Duration(i)*time.Second), 100+float64(i), 1))
	}
	e.mu.RLock()
	n := len(e.symbols["BTCUSDT"].trades)
	oldest := e.symbols["BTCUSDT"].trades[0].price
	e.mu.RUnlock()
	if n != 5 {
		t.Fatalf("trade buffer len = %d, want capacity 5", n)
	}
	if oldest != 101 {
		t.Fatalf("oldest price = %v, want 101 (first trade evicted)", oldest)
	}
}

func TestPriceVelocity(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// +1% over 10 seconds -> 0.001/s
	e.Ingest(tradeEvent("BTCUSDT", base, 100, 1))
	e.Ingest(tradeEvent("BTCUSDT", base.Add(10*time.Second), 101, 1))

	state := e.Snapshot()["BTCUSDT"]
	v := state.Features[models.FeaturePriceVelocity]
	if math.Abs(v-0.001) > 1e-9 {
		t.Fatalf("price velocity = %v, want 0.001", v)
	}
	if state.LastPrice != 101 {
		t.Fatalf("last price = %v, want 101", state.LastPrice)
	}
}

func TestVolumeAcceleration(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// older half qty 1+1, recent half qty 3+3 -> 3x
	qtys := []float64{1, 1, 3, 3}
	for i, q := range qtys {
		e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Duration(i)*time.Second), 100, q))
	}
	va := e.Snapshot()["BTCUSDT"].Features[models.FeatureVolumeAcceleration]
	if math.Abs(va-3) > 1e-9 {
		t.Fatalf("volume acceleration = %v, want 3", va)
	}
}

func TestOrderBookFeatures(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Ingest(tradeEvent("BTCUSDT", base, 100, 1))
	e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Second), 100, 1))
	e.Ingest(models.MarketEvent{
		Kind: models.EventBook, Symbol: "BTCUSDT",
		BidPrice: 99.9, BidQty: 30, AskPrice: 100.1, AskQty: 10,
	})

	state := e.Snapshot()["BTCUSDT"]
	if math.Abs(state.OrderImbalance-0.5) > 1e-9 {
		t.Fatalf("imbalance = %v, want (30-10)/40 = 0.5", state.OrderImbalance)
	}
	wantSpread := (100.1 - 99.9) / 100.0
	if math.Abs(state.Slippage-wantSpread) > 1e-9 {
		t.Fatalf("slippage = %v, want spread fraction %v", state.Slippage, wantSpread)
	}
	wantDepth := math.Min(math.Log1p((30+10)*100/1e5), 1)
	if math.Abs(state.DepthScore-wantDepth) > 1e-9 {
		t.Fatalf("depth = %v, want %v", state.DepthScore, wantDepth)
	}
}

func TestFundingBias(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Ingest(tradeEvent("BTCUSDT", base, 100, 1))
	e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Second), 100, 1))
	e.Ingest(models.MarketEvent{Kind: models.EventFunding, Symbol: "BTCUSDT", FundingRate: 0.0001})

	state := e.Snapshot()["BTCUSDT"]
	if state.FundingRate != 0.0001 {
		t.Fatalf("funding rate = %v", state.FundingRate)
	}
	// positive funding flips to a short bias
	if bias := state.Features[models.FeatureFundingBias]; math.Abs(bias-(-0.1)) > 1e-9 {
		t.Fatalf("funding bias = %v, want -0.1", bias)
	}
}

func TestLiquidationHeatDecays(t *testing.T) {
	e := New(Config{LiquidationDecay: 5 * time.Minute})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := base
	e.SetClock(func() time.Time { return now })

	e.Ingest(tradeEvent("BTCUSDT", base, 100, 1))
	e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Second), 100, 1))
	e.Ingest(models.MarketEvent{Kind: models.EventLiquidation, Symbol: "BTCUSDT", Timestamp: base, Price: 100, Qty: 100})

	heat := e.Snapshot()["BTCUSDT"].Features[models.FeatureLiquidationHeat]
	want := math.Log1p(100 * 100 / 1e4)
	if math.Abs(heat-want) > 1e-9 {
		t.Fatalf("liquidation heat = %v, want %v", heat, want)
	}

	// outside the lookback the heat drains to zero
	now = base.Add(6 * time.Minute)
	if heat := e.Snapshot()["BTCUSDT"].Features[models.FeatureLiquidationHeat]; heat != 0 {
		t.Fatalf("decayed heat = %v, want 0", heat)
	}
}

func TestTrendConsistency(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	prices := []float64{100, 101, 102, 103, 102} // 3 up, 1 down
	for i, p := range prices {
		e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Duration(i)*time.Second), p, 1))
	}
	tc := e.Snapshot()["BTCUSDT"].TrendConsistency
	if math.Abs(tc-0.5) > 1e-9 {
		t.Fatalf("trend consistency = %v, want 2*3/4-1 = 0.5", tc)
	}
}

func TestExternalFeaturesMerged(t *testing.T) {
	e := New(Config{})
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Ingest(tradeEvent("BTCUSDT", base, 100, 1))
	e.Ingest(tradeEvent("BTCUSDT", base.Add(time.Second), 100, 1))

	e.SetExternal("BTCUSDT", map[string]float64{models.FeatureMacroSentiment: 0.7})
	state := e.Snapshot()["BTCUSDT"]
	if state.Features[models.FeatureMacroSentiment] != 0.7 {
		t.Fatalf("external feature missing from snapshot")
	}
	// computed features survive the merge
	if _, ok := state.Features[models.FeaturePriceVelocity]; !ok {
		t.Fatalf("computed features must remain present")
	}

	// replacement, not accumulation
	e.SetExternal("BTCUSDT", map[string]float64{models.FeatureEtfFlow: 0.2})
	state = e.Snapshot()["BTCUSDT"]
	if _, ok := state.Features[models.FeatureMacroSentiment]; ok {
		t.Fatalf("stale external feature must be replaced")
	}
	if state.Features[models.FeatureEtfFlow] != 0.2 {
		t.Fatalf("fresh external feature missing")
	}
}
