package usecase

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/executor"
	"TradePulse/internal/services/ev"
	"TradePulse/internal/services/fusion"
)

type stubFeatures struct {
	snap models.MarketSnapshot
}

func (s *stubFeatures) Snapshot() models.MarketSnapshot { return s.snap }

type openRiskGate struct{}

func (openRiskGate) CheckCircuitBreaker() bool    { return false }
func (openRiskGate) PreTradeCheck(_ float64) bool { return true }

type fixedAccount struct{}

func (fixedAccount) AvailableBalance() float64 { return 10000 }
func (fixedAccount) Equity() float64           { return 10000 }
func (fixedAccount) EquityPeak() float64       { return 10000 }
func (fixedAccount) MarginRatio() float64      { return 1 }
func (fixedAccount) ReserveMargin(float64)     {}

type recordingStore struct {
	mu          sync.Mutex
	signalCalls int
	evalCalls   int
}

func (s *recordingStore) Init(ctx context.Context) error { return nil }
func (s *recordingStore) StoreSignals(ctx context.Context, recs []models.SignalRecord) error {
	s.mu.Lock()
	s.signalCalls++
	s.mu.Unlock()
	return nil
}
func (s *recordingStore) StoreEvaluation(ctx context.Context, res models.EVResult) error {
	s.mu.Lock()
	s.evalCalls++
	s.mu.Unlock()
	return nil
}
func (s *recordingStore) Health(ctx context.Context) error { return nil }
func (s *recordingStore) Close() error                     { return nil }

func newRunnerFixture(cfg CycleConfig, snap models.MarketSnapshot) (*CycleRunner, *executor.Engine, *recordingStore) {
	return newRunnerFixtureWith(cfg, &stubFeatures{snap: snap})
}

func newRunnerFixtureWith(cfg CycleConfig, src drepo.FeatureSource) (*CycleRunner, *executor.Engine, *recordingStore) {
	fus := fusion.New(fusion.Config{
		Weights:             map[string]float64{"breakout": 0.25, "momentum": 0.20},
		ActivationThreshold: 0.65,
	}, nil)
	evEngine := ev.New(ev.Config{BetaAlpha: 2, BetaBeta: 2, TradeWindow: 10}, fus, ev.FixedLeverage{}, nil)
	exec := executor.New(executor.Config{EntryThreshold: 0.1},
		evEngine, openRiskGate{}, fixedAccount{}, nil, nil, nil)
	store := &recordingStore{}
	r := NewCycleRunner(cfg, src, fus, evEngine, exec, store, newNoopMetrics(), nil)
	return r, exec, store
}

func TestAutoPatchRelaxesAfterPatience(t *testing.T) {
	r, exec, _ := newRunnerFixture(CycleConfig{
		PatienceCycles: 2,
		ThresholdDecay: 0.9,
		ThresholdFloor: 0.085,
	}, nil)

	r.autoPatch(0)
	if got := exec.EntryThreshold(); got != 0.1 {
		t.Fatalf("threshold relaxed too early: %v", got)
	}
	r.autoPatch(0)
	if got := exec.EntryThreshold(); math.Abs(got-0.09) > 1e-12 {
		t.Fatalf("threshold = %v, want 0.09 after patience", got)
	}

	// the next relax step would undershoot the floor and is clamped there
	r.autoPatch(0)
	r.autoPatch(0)
	if got := exec.EntryThreshold(); got != 0.085 {
		t.Fatalf("threshold = %v, want floor 0.085", got)
	}
}

func TestAutoPatchRestoresBaseOnEntry(t *testing.T) {
	r, exec, _ := newRunnerFixture(CycleConfig{
		PatienceCycles: 1,
		ThresholdDecay: 0.9,
	}, nil)

	r.autoPatch(0)
	if got := exec.EntryThreshold(); math.Abs(got-0.09) > 1e-12 {
		t.Fatalf("threshold = %v, want relaxed 0.09", got)
	}
	r.autoPatch(3)
	if got := exec.EntryThreshold(); got != 0.1 {
		t.Fatalf("threshold = %v, want base restored", got)
	}
	if r.idleCycles != 0 {
		t.Fatalf("idle counter = %d, want reset", r.idleCycles)
	}
}

func TestRunCycleStoresSignals(t *testing.T) {
	snap := models.MarketSnapshot{
		"BTCUSDT": {LastPrice: 100, Features: map[string]float64{models.FeaturePriceVelocity: 0.001}},
	}
	r, _, store := newRunnerFixture(CycleConfig{PatienceCycles: 100}, snap)

	r.RunCycle(context.Background())
	if store.signalCalls != 1 {
		t.Fatalf("signal store calls = %d, want 1", store.signalCalls)
	}
	if _, ok := r.fusion.Signal("BTCUSDT"); !ok {
		t.Fatalf("fused signal missing after a cycle")
	}
}

type blockingFeatures struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingFeatures) Snapshot() models.MarketSnapshot {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	feats := &blockingFeatures{entered: make(chan struct{}), release: make(chan struct{})}
	r, _, _ := newRunnerFixtureWith(CycleConfig{Interval: time.Millisecond, PatienceCycles: 1000}, feats)

	r.Start(context.Background())
	<-feats.entered // a cycle is now mid-flight

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Stop returned while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(feats.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return after the cycle finished")
	}
}

func TestRunCycleEmptySnapshotIsNoop(t *testing.T) {
	r, exec, store := newRunnerFixture(CycleConfig{PatienceCycles: 1}, models.MarketSnapshot{})

	r.RunCycle(context.Background())
	if store.signalCalls != 0 {
		t.Fatalf("empty snapshot must not hit the store")
	}
	// nor does it count against patience
	if got := exec.EntryThreshold(); got != 0.1 {
		t.Fatalf("threshold = %v, want untouched", got)
	}
}
