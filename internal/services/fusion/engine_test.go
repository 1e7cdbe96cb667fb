package fusion

import (
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

func testWeights() map[string]float64 {
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

func newTestEngine() *Engine {
	return New(Config{Weights: testWeights(), ActivationThreshold: 0.65, HistorySize: 10}, nil)
}

func TestMissingWeightsFallBackToDefaults(t *testing.T) {
	e := New(Config{ActivationThreshold: 0.65}, nil)
	bd, total := e.Fuse(map[string]float64{
		models.FeaturePriceVelocity:      0.001,
		models.FeatureVolumeAcceleration: 50,
	})
	if bd["breakout"] != 0.25 {
		t.Fatalf("breakout = %v, want default weight 0.25", bd["breakout"])
	}
	if total <= 0 {
		t.Fatalf("score = %v, want positive with live features", total)
	}
}

func TestFuseBreakoutThreshold(t *testing.T) {
	e := newTestEngine()
	bd, _ := e.Fuse(map[string]float64{models.FeaturePriceVelocity: 0.0005})
	if bd["breakout"] != 0 {
		t.Fatalf("breakout at the boundary = %v, want 0", bd["breakout"])
	}
	bd, _ = e.Fuse(map[string]float64{models.FeaturePriceVelocity: 0.0006})
	if bd["breakout"] != 0.25 {
		t.Fatalf("breakout above the boundary = %v, want full weight", bd["breakout"])
	}
}

func TestFuseMomentumSaturates(t *testing.T) {
	e := newTestEngine()
	bd, _ := e.Fuse(map[string]float64{models.FeatureVolumeAcceleration: 2.5})
	if math.Abs(bd["momentum"]-0.5*0.20) > 1e-12 {
		t.Fatalf("momentum = %v, want va/5 * weight", bd["momentum"])
	}
	bd, _ = e.Fuse(map[string]float64{models.FeatureVolumeAcceleration: 50})
	if bd["momentum"] != 0.20 {
		t.Fatalf("momentum = %v, want saturation at the weight", bd["momentum"])
	}
}

func TestFuseWhaleFlowSaturates(t *testing.T) {
	e := newTestEngine()
	bd, _ := e.Fuse(map[string]float64{models.FeatureLiquidationHeat: 5})
	if math.Abs(bd["whale_flow"]-0.5*0.15) > 1e-12 {
		t.Fatalf("whale_flow = %v, want heat/10 * weight", bd["whale_flow"])
	}
	bd, _ = e.Fuse(map[string]float64{models.FeatureLiquidationHeat: 100})
	if bd["whale_flow"] != 0.15 {
		t.Fatalf("whale_flow = %v, want saturation at the weight", bd["whale_flow"])
	}
}

func TestFuseImbalanceUsesMagnitude(t *testing.T) {
	e := newTestEngine()
	pos, _ := e.Fuse(map[string]float64{models.FeatureOrderImbalance: 0.5})
	neg, _ := e.Fuse(map[string]float64{models.FeatureOrderImbalance: -0.5})
	if pos["orderbook_imbalance"] != neg["orderbook_imbalance"] {
		t.Fatalf("imbalance sign must not matter: %v vs %v",
			pos["orderbook_imbalance"], neg["orderbook_imbalance"])
	}
}

func TestFuseFundingFlip(t *testing.T) {
	e := newTestEngine()
	bd, _ := e.Fuse(map[string]float64{models.FeatureFundingBias: 0.1})
	if math.Abs(bd["funding_flip"]-0.2*0.10) > 1e-12 {
		t.Fatalf("funding_flip = %v, want +0.2 * weight", bd["funding_flip"])
	}
	bd, _ = e.Fuse(map[string]float64{models.FeatureFundingBias: -0.1})
	if math.Abs(bd["funding_flip"]-(-0.2*0.10)) > 1e-12 {
		t.Fatalf("funding_flip = %v, want -0.2 * weight", bd["funding_flip"])
	}
	// zero bias counts as non-positive
	bd, _ = e.Fuse(map[string]float64{})
	if math.Abs(bd["funding_flip"]-(-0.2*0.10)) > 1e-12 {
		t.Fatalf("neutral funding_flip = %v, want -0.2 * weight", bd["funding_flip"])
	}
}

func TestFusePassthroughComponents(t *testing.T) {
	e := newTestEngine()
	bd, _ := e.Fuse(map[string]float64{
		models.FeatureMacroSentiment:  0.8,
		models.FeatureOnchainScore:    -0.4,
		models.FeatureEtfFlow:         0.2,
		models.FeatureSocialSentiment: 1.0,
	})
	if math.Abs(bd["macro_sentiment"]-0.8*0.05) > 1e-12 {
		t.Fatalf("macro_sentiment = %v", bd["macro_sentiment"])
	}
	if math.Abs(bd["onchain_flow"]-(-0.4*0.05)) > 1e-12 {
		t.Fatalf("onchain_flow = %v", bd["onchain_flow"])
	}
	if math.Abs(bd["social_sentiment"]-0.05) > 1e-12 {
		t.Fatalf("social_sentiment = %v", bd["social_sentiment"])
	}
}

func TestFuseTotalIsComponentSum(t *testing.T) {
	e := newTestEngine()
	bd, total := e.Fuse(map[string]float64{
		models.FeaturePriceVelocity:      0.001,
		models.FeatureOrderImbalance:     0.3,
		models.FeatureVolumeAcceleration: 1.2,
	})
	sum := 0.0
	for _, v := range bd {
		sum += v
	}
	if math.Abs(total-sum) > 1e-12 {
		t.Fatalf("total = %v, component sum = %v", total, sum)
	}
}

func TestComputeReplacesSignalSet(t *testing.T) {
	e := newTestEngine()
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return fixed })

	snapA := models.MarketSnapshot{
		"BTCUSDT": {Features: map[string]float64{models.FeaturePriceVelocity: 0.001}},
	}
	recs := e.Compute(snapA)
	if len(recs) != 1 || recs[0].Symbol != "BTCUSDT" {
		t.Fatalf("records = %v", recs)
	}
	sig, ok := e.Signal("BTCUSDT")
	if !ok || !sig.Timestamp.Equal(fixed) {
		t.Fatalf("signal = %+v, ok = %v", sig, ok)
	}
	if sig.Tier != models.ClassifyTier(sig.EV) {
		t.Fatalf("tier %s does not match EV %v", sig.Tier, sig.EV)
	}

	// the next pass replaces the set wholesale
	snapB := models.MarketSnapshot{"ETHUSDT": {Features: map[string]float64{}}}
	e.Compute(snapB)
	if _, ok := e.Signal("BTCUSDT"); ok {
		t.Fatalf("stale symbol must drop out of the signal set")
	}
	if _, ok := e.Signal("ETHUSDT"); !ok {
		t.Fatalf("fresh symbol must be present")
	}
}

func TestHistoryBounded(t *testing.T) {
	e := newTestEngine() // history capacity 10
	snap := models.MarketSnapshot{"BTCUSDT": {Features: map[string]float64{}}}
	for i := 0; i < 11; i++ { // capacity+1 passes
		e.Compute(snap)
	}
	if n := len(e.History()); n != 10 {
		t.Fatalf("history len = %d, want capacity 10", n)
	}
}
