package executor

import (
	"context"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

type stubEval map[string]models.EVResult

func (s stubEval) Evaluate(symbol string, _ models.MarketState) (models.EVResult, bool) {
	res, ok := s[symbol]
	return res, ok
}

type stubRisk struct {
	breaker bool
	preFail bool
}

func (r *stubRisk) CheckCircuitBreaker() bool    { return r.breaker }
func (r *stubRisk) PreTradeCheck(_ float64) bool { return !r.preFail }

type stubAcct struct {
	balance float64
	margin  float64
}

func (a *stubAcct) AvailableBalance() float64   { return a.balance }
func (a *stubAcct) Equity() float64             { return a.balance }
func (a *stubAcct) EquityPeak() float64         { return a.balance }
func (a *stubAcct) MarginRatio() float64        { return 1 }
func (a *stubAcct) ReserveMargin(delta float64) { a.margin += delta }

type recordingPub struct {
	events []models.DecisionEvent
}

func (p *recordingPub) Publish(_ context.Context, ev models.DecisionEvent) error {
	p.events = append(p.events, ev)
	return nil
}
func (p *recordingPub) Close() error { return nil }

func (p *recordingPub) last() models.DecisionEvent {
	return p.events[len(p.events)-1]
}

type fixture struct {
	eng  *Engine
	eval stubEval
	risk *stubRisk
	acct *stubAcct
	pub  *recordingPub
	now  time.Time
}

func newFixture() *fixture {
	f := &fixture{
		eval: stubEval{},
		risk: &stubRisk{},
		acct: &stubAcct{balance: 10000},
		pub:  &recordingPub{},
		now:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	f.eng = New(Config{EntryThreshold: 0.03}, f.eval, f.risk, f.acct, f.pub, nil, nil)
	f.eng.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func entryResult(ev float64) models.EVResult {
	return models.EVResult{PWin: 0.6, EV: ev, Kelly: 0.1, Leverage: 10}
}

func snapshot(symbols ...string) models.MarketSnapshot {
	snap := make(models.MarketSnapshot, len(symbols))
	for _, s := range symbols {
		snap[s] = models.MarketState{LastPrice: 100}
	}
	return snap
}

func TestEntryOpensPosition(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)

	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
	pos, ok := f.eng.Positions()["BTCUSDT"]
	if !ok {
		t.Fatalf("expected an open position")
	}
	if pos.Side != models.SideBuy {
		t.Fatalf("side = %s, want BUY for p_win > 0.5", pos.Side)
	}
	if pos.Notional != 10000*0.1*10 {
		t.Fatalf("notional = %v, want balance*kelly*leverage", pos.Notional)
	}
	if ev := f.pub.last(); ev.Type != "entry" || ev.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected decision event %+v", ev)
	}
}

func TestEntryRequiresThresholdExceeded(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.03) // exactly at threshold, not above

	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 0 {
		t.Fatalf("entries = %d, want 0 at the threshold boundary", n)
	}
}

func TestEntryBlockedByPreTradeCheck(t *testing.T) {
	f := newFixture()
	f.risk.preFail = true
	f.eval["BTCUSDT"] = entryResult(0.05)

	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 0 {
		t.Fatalf("entries = %d, want 0 when the risk gate rejects", n)
	}
}

func TestBreakerHaltsCycle(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.risk.breaker = true
	// invalid signal would normally force an exit, but the breaker gates first
	f.eval["BTCUSDT"] = models.EVResult{PWin: 0.3, EV: -0.01}
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if _, ok := f.eng.Positions()["BTCUSDT"]; !ok {
		t.Fatalf("breaker must halt all position work, exits included")
	}
}

func TestEVFloorSkipsSymbol(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.eval["BTCUSDT"] = models.EVResult{PWin: 0.6, EV: -0.06}
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if _, ok := f.eng.Positions()["BTCUSDT"]; !ok {
		t.Fatalf("symbol under the hard floor is skipped, not exited")
	}
}

func TestExitSignalInvalid(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.eval["BTCUSDT"] = models.EVResult{PWin: 0.4, EV: 0.05}
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if _, ok := f.eng.Positions()["BTCUSDT"]; ok {
		t.Fatalf("position must close on p_win < 0.5")
	}
	if ev := f.pub.last(); ev.Type != "exit" || ev.Reason != ReasonSignalInvalid {
		t.Fatalf("event = %+v, want exit %q", ev, ReasonSignalInvalid)
	}
}

func TestExitPrecedenceFirstMatchWins(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	// both "signal invalid" and "time exceeded" hold; the earlier trigger wins
	f.advance(25 * time.Hour)
	f.eval["BTCUSDT"] = models.EVResult{PWin: 0.3, EV: -0.01}
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if ev := f.pub.last(); ev.Reason != ReasonSignalInvalid {
		t.Fatalf("reason = %q, want %q", ev.Reason, ReasonSignalInvalid)
	}
}

func TestExitTimeExceeded(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.advance(25 * time.Hour)
	// signal still valid and EV undecayed, only the holding limit fires
	f.eval["BTCUSDT"] = entryResult(0.05)
	snap := models.MarketSnapshot{"BTCUSDT": {LastPrice: 110}}
	f.eng.ExecuteCycle(context.Background(), snap)

	if ev := f.pub.last(); ev.Reason != ReasonTimeExceeded {
		t.Fatalf("reason = %q, want %q", ev.Reason, ReasonTimeExceeded)
	}
}

func TestExitNoProfitAndCooldownWindow(t *testing.T) {
	f := newFixture()
	t0 := f.now
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	// 16 minutes in, price unchanged: stale exit fires
	f.now = t0.Add(16 * time.Minute)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))
	if ev := f.pub.last(); ev.Reason != ReasonNoProfit {
		t.Fatalf("reason = %q, want %q", ev.Reason, ReasonNoProfit)
	}
	until, ok := f.eng.CooldownUntil("BTCUSDT")
	if !ok || !until.Equal(t0.Add(21*time.Minute)) {
		t.Fatalf("cooldown until %v, want t0+21min", until)
	}

	// re-entry blocked inside the cooldown window
	f.now = t0.Add(18 * time.Minute)
	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 0 {
		t.Fatalf("entry at t0+18min must be rejected")
	}

	// and allowed once it elapses
	f.now = t0.Add(22 * time.Minute)
	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 1 {
		t.Fatalf("entry at t0+22min must be allowed")
	}
}

func TestExitInProfitNotStale(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.advance(16 * time.Minute)
	snap := models.MarketSnapshot{"BTCUSDT": {LastPrice: 105}}
	f.eng.ExecuteCycle(context.Background(), snap)

	if _, ok := f.eng.Positions()["BTCUSDT"]; !ok {
		t.Fatalf("profitable position must survive the stale check")
	}
}

func TestExitEVDecayed(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.10)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.advance(1 * time.Minute)
	f.eval["BTCUSDT"] = entryResult(0.04) // under half of the 0.10 entry EV
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if ev := f.pub.last(); ev.Reason != ReasonEVDecayed {
		t.Fatalf("reason = %q, want %q", ev.Reason, ReasonEVDecayed)
	}
}

func TestRotationNeedsTwoPositions(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))
	opened := f.eng.Positions()["BTCUSDT"].EntryTime

	f.advance(1 * time.Minute)
	f.eval["BTCUSDT"] = entryResult(0.50)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	pos := f.eng.Positions()["BTCUSDT"]
	if !pos.EntryTime.Equal(opened) {
		t.Fatalf("single position must never rotate")
	}
}

func TestRotationReplacesPosition(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.10)
	f.eval["ETHUSDT"] = entryResult(0.20)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT", "ETHUSDT"))

	f.advance(1 * time.Minute)
	// 0.18 >= own 0.10 entry and >= 0.8 * max(0.20)
	f.eval["BTCUSDT"] = entryResult(0.18)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	pos, ok := f.eng.Positions()["BTCUSDT"]
	if !ok || pos.EntryEV != 0.18 {
		t.Fatalf("position = %+v, want reopened at EV 0.18", pos)
	}
	if _, cooling := f.eng.CooldownUntil("BTCUSDT"); cooling {
		t.Fatalf("rotation must not set a cooldown")
	}
	n := len(f.pub.events)
	rot, ent := f.pub.events[n-2], f.pub.events[n-1]
	if rot.Type != "rotation" || rot.Reason != ReasonRotated {
		t.Fatalf("rotation event = %+v", rot)
	}
	if ent.Type != "entry" {
		t.Fatalf("reopen event = %+v", ent)
	}
}

func TestRotationBelowRatioSkipped(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.10)
	f.eval["ETHUSDT"] = entryResult(0.20)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT", "ETHUSDT"))

	f.advance(1 * time.Minute)
	// beats its own entry but not 80% of the strongest open entry
	f.eval["BTCUSDT"] = entryResult(0.15)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if pos := f.eng.Positions()["BTCUSDT"]; pos.EntryEV != 0.10 {
		t.Fatalf("entry EV = %v, want original 0.10", pos.EntryEV)
	}
}

func TestEntryReservesMargin(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	// notional 10000*0.1*10 at 10x leverage locks notional/leverage
	if f.acct.margin != 1000 {
		t.Fatalf("reserved margin = %v, want 1000", f.acct.margin)
	}
}

func TestExitReleasesMargin(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	f.advance(1 * time.Minute)
	f.eval["BTCUSDT"] = models.EVResult{PWin: 0.4, EV: 0.05}
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	if _, ok := f.eng.Positions()["BTCUSDT"]; ok {
		t.Fatalf("expected the position closed")
	}
	if f.acct.margin != 0 {
		t.Fatalf("margin after exit = %v, want fully released", f.acct.margin)
	}
}

func TestRotationRebooksMargin(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.10)
	f.eval["ETHUSDT"] = entryResult(0.20)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT", "ETHUSDT"))

	f.advance(1 * time.Minute)
	f.eval["BTCUSDT"] = entryResult(0.18)
	f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT"))

	// two open positions, each 1000 margin: the rotation released and
	// re-reserved its own share, never double-booking
	if f.acct.margin != 2000 {
		t.Fatalf("margin after rotation = %v, want 2000", f.acct.margin)
	}
}

func TestExecuteCycleCountsEntries(t *testing.T) {
	f := newFixture()
	f.eval["BTCUSDT"] = entryResult(0.05)
	f.eval["ETHUSDT"] = entryResult(0.07)
	f.eval["SOLUSDT"] = entryResult(0.01) // under threshold

	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT", "ETHUSDT", "SOLUSDT")); n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}
}

func TestDynamicThreshold(t *testing.T) {
	f := newFixture()
	f.eng.SetEntryThreshold(0.06)
	f.eval["BTCUSDT"] = entryResult(0.05)
	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 0 {
		t.Fatalf("raised threshold must gate the entry")
	}
	f.eng.SetEntryThreshold(0.03)
	if n := f.eng.ExecuteCycle(context.Background(), snapshot("BTCUSDT")); n != 1 {
		t.Fatalf("restored threshold must admit the entry")
	}
}
