package ev

import (
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

type stubSignals map[string]models.Signal

func (s stubSignals) Signal(symbol string) (models.Signal, bool) {
	sig, ok := s[symbol]
	return sig, ok
}

func newTestEngine(signals stubSignals) *Engine {
	return New(Config{BetaAlpha: 2, BetaBeta: 2, TradeWindow: 10}, signals, FixedLeverage{}, nil)
}

func TestEstimateGainLossFee(t *testing.T) {
	state := models.MarketState{
		ATR:            0.01,
		Momentum:       1.0,
		LiquidityScore: 1.0,
		Volatility:     1.0,
		DepthScore:     1.0,
		Slippage:       0.01,
		FundingRate:    0,
	}
	if g := estimateGain(state); math.Abs(g-1.03) > 1e-9 {
		t.Fatalf("gain = %v, want 1.03", g)
	}
	if l := estimateLoss(state); math.Abs(l-3.1) > 1e-9 {
		t.Fatalf("loss = %v, want 3.1", l)
	}
	if f := estimateFee(state); math.Abs(f-0.0216) > 1e-9 {
		t.Fatalf("fee = %v, want 0.0216", f)
	}
	// with p=0.5: EV = 0.5*1.03 - 0.5*3.1 - 0.0216 = -1.0566 -> defensive
	ev := 0.5*1.03 - 0.5*3.1 - 0.0216
	if math.Abs(ev-(-1.0566)) > 1e-9 {
		t.Fatalf("ev = %v, want -1.0566", ev)
	}
	if tier := models.ClassifyTier(ev); tier != models.TierDefensive {
		t.Fatalf("tier = %s, want %s", tier, models.TierDefensive)
	}
}

func TestGainLossClamps(t *testing.T) {
	high := models.MarketState{ATR: 10, Momentum: 10, LiquidityScore: 10, Volatility: 100, DepthScore: 0.001, Slippage: 1}
	if g := estimateGain(high); g != 5.0 {
		t.Fatalf("gain clamp = %v, want 5.0", g)
	}
	if l := estimateLoss(high); l != 5.0 {
		t.Fatalf("loss clamp = %v, want 5.0", l)
	}
	low := models.MarketState{ATR: -10, Momentum: 1, LiquidityScore: 1, DepthScore: 1}
	if g := estimateGain(low); g != 0.5 {
		t.Fatalf("gain floor = %v, want 0.5", g)
	}
}

func TestEstimateLossZeroDepth(t *testing.T) {
	state := models.MarketState{Volatility: 0.5, DepthScore: 0}
	if l := estimateLoss(state); l != 5.0 {
		t.Fatalf("loss at zero depth = %v, want clamp 5.0", l)
	}
}

func TestKellyFraction(t *testing.T) {
	// p=0.6, G=2, L=1 -> b=2, kelly = (0.6*3-1)/2 = 0.4 -> capped 0.25
	if k := kellyFraction(0.6, 2, 1); k != 0.25 {
		t.Fatalf("kelly = %v, want cap 0.25", k)
	}
	// p=0.4, G=1, L=1 -> b=1, kelly = (0.8-1)/1 < 0 -> floor 0
	if k := kellyFraction(0.4, 1, 1); k != 0 {
		t.Fatalf("kelly = %v, want floor 0", k)
	}
	// L=0 -> b defaults to 1
	if k := kellyFraction(0.6, 2, 0); math.Abs(k-0.2) > 1e-9 {
		t.Fatalf("kelly with zero loss = %v, want 0.2", k)
	}
}

func TestProbabilityClamp(t *testing.T) {
	e := newTestEngine(stubSignals{})
	// extreme negative regime drives p to the floor
	p := e.estimateProbability("BTCUSDT", 0, models.MarketState{Volatility: 50})
	if p < 0.01 || p > 0.99 {
		t.Fatalf("p = %v, want within [0.01, 0.99]", p)
	}
	if p != 0.01 {
		t.Fatalf("p = %v, want floor 0.01", p)
	}
	// perfect score with trend boost hits the ceiling
	p = e.estimateProbability("BTCUSDT", 1, models.MarketState{TrendConsistency: 5})
	if p != 0.99 {
		t.Fatalf("p = %v, want ceiling 0.99", p)
	}
}

func TestEvaluateNoSignal(t *testing.T) {
	e := newTestEngine(stubSignals{})
	if _, ok := e.Evaluate("BTCUSDT", models.MarketState{}); ok {
		t.Fatalf("expected no evaluation without a signal")
	}
}

func TestEvaluateRecordsHistory(t *testing.T) {
	e := newTestEngine(stubSignals{"BTCUSDT": {Symbol: "BTCUSDT", Score: 0.7}})
	res, ok := e.Evaluate("BTCUSDT", models.MarketState{DepthScore: 1, LiquidityScore: 1})
	if !ok {
		t.Fatalf("expected evaluation")
	}
	if res.Tier != models.ClassifyTier(res.EV) {
		t.Fatalf("tier %s does not match EV %v", res.Tier, res.EV)
	}
	hist := e.History()
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
	if hist[0].Win != (res.EV > 0) {
		t.Fatalf("win flag %v does not follow EV sign %v", hist[0].Win, res.EV)
	}
}

func TestPreviewLeavesWindowUntouched(t *testing.T) {
	e := newTestEngine(stubSignals{"BTCUSDT": {Symbol: "BTCUSDT", Score: 0.5}})
	var observed int
	e.SetObserver(func(models.EVResult) { observed++ })
	state := models.MarketState{DepthScore: 1}

	if _, ok := e.Preview("BTCUSDT", state); !ok {
		t.Fatalf("expected a preview result")
	}
	if n := len(e.History()); n != 0 {
		t.Fatalf("trade window after preview = %d records, want 0", n)
	}
	if observed != 0 {
		t.Fatalf("preview must not reach the observer, saw %d calls", observed)
	}

	if _, ok := e.Evaluate("BTCUSDT", state); !ok {
		t.Fatalf("expected an evaluation")
	}
	if n := len(e.History()); n != 1 {
		t.Fatalf("trade window after evaluate = %d records, want 1", n)
	}
}

func TestHistoryWindowFIFO(t *testing.T) {
	e := newTestEngine(stubSignals{"BTCUSDT": {Symbol: "BTCUSDT", Score: 0.5}})
	for i := 0; i < 11; i++ { // capacity 10, insert capacity+1
		e.record(models.TradeRecord{Symbol: "BTCUSDT", EV: float64(i)})
	}
	hist := e.History()
	if len(hist) != 10 {
		t.Fatalf("history len = %d, want capacity 10", len(hist))
	}
	if hist[0].EV != 1 {
		t.Fatalf("oldest record EV = %v, want 1 (record 0 evicted first)", hist[0].EV)
	}
	if hist[9].EV != 10 {
		t.Fatalf("newest record EV = %v, want 10", hist[9].EV)
	}
}

func TestLeverageBands(t *testing.T) {
	bands := DefaultLeverageBands()
	want := map[models.Tier]Band{
		models.TierExplosive: {90, 120},
		models.TierStrong:    {50, 85},
		models.TierModerate:  {20, 50},
		models.TierNeutral:   {10, 30},
		models.TierScalping:  {5, 15},
		models.TierDefensive: {1, 5},
	}
	for tier, b := range want {
		if bands[tier] != b {
			t.Fatalf("band for %s = %+v, want %+v", tier, bands[tier], b)
		}
	}
}

func TestUniformLeverageInBand(t *testing.T) {
	u := NewUniformLeverage(42)
	for i := 0; i < 100; i++ {
		lv := u.Draw(90, 120)
		if lv < 90 || lv >= 120 {
			t.Fatalf("draw %d outside [90, 120)", lv)
		}
	}
	if lv := u.Draw(7, 7); lv != 7 {
		t.Fatalf("degenerate band draw = %d, want 7", lv)
	}
}

func TestObserverSeesEvaluation(t *testing.T) {
	e := newTestEngine(stubSignals{"ETHUSDT": {Symbol: "ETHUSDT", Score: 0.4}})
	var seen []models.EVResult
	e.SetObserver(func(res models.EVResult) { seen = append(seen, res) })
	e.Evaluate("ETHUSDT", models.MarketState{DepthScore: 1})
	if len(seen) != 1 || seen[0].Symbol != "ETHUSDT" {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestPosteriorUsesSymbolHistory(t *testing.T) {
	e := newTestEngine(stubSignals{})
	for i := 0; i < 5; i++ {
		e.record(models.TradeRecord{Symbol: "BTCUSDT", Win: true})
		e.record(models.TradeRecord{Symbol: "ETHUSDT", Win: false})
	}
	calm := models.MarketState{}
	pBTC := e.estimateProbability("BTCUSDT", 0.5, calm)
	pETH := e.estimateProbability("ETHUSDT", 0.5, calm)
	if pBTC <= pETH {
		t.Fatalf("winning symbol p=%v should exceed losing symbol p=%v", pBTC, pETH)
	}
}

func TestEvaluateTimestampUsesClock(t *testing.T) {
	e := newTestEngine(stubSignals{"BTCUSDT": {Symbol: "BTCUSDT", Score: 0.5}})
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return fixed })
	res, _ := e.Evaluate("BTCUSDT", models.MarketState{DepthScore: 1})
	if !res.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v", res.Timestamp, fixed)
	}
}
