package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/executor"
	"TradePulse/internal/services/ev"
	"TradePulse/internal/services/fusion"
	"TradePulse/pkg/logger"
)

// CycleConfig tunes the decision loop cadence and the entry-threshold
// auto-patch.
type CycleConfig struct {
	Interval       time.Duration
	PatienceCycles int     // idle cycles before the threshold is relaxed
	ThresholdDecay float64 // multiplier applied on each relax step
	ThresholdFloor float64
}

// CycleRunner drives the decision loop: snapshot, fuse, execute, and relax
// the entry threshold when the market yields nothing for long stretches.
// Fused signals and EV evaluations are forwarded to the offline sink
// best-effort; the sink never blocks a cycle.
type CycleRunner struct {
	cfg      CycleConfig
	features drepo.FeatureSource
	fusion   *fusion.Engine
	evEngine *ev.Engine
	exec     *executor.Engine
	store    drepo.SignalStore
	metrics  drepo.Metrics
	log      *logger.Logger

	baseThreshold float64
	idleCycles    int

	evalCh  chan models.EVResult
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
	once    sync.Once
}

// NewCycleRunner creates the loop with defaults: 5s interval, 30 idle
// cycles of patience, a 0.9 decay step, and a zero floor.
func NewCycleRunner(cfg CycleConfig, features drepo.FeatureSource, fus *fusion.Engine, evEngine *ev.Engine, exec *executor.Engine, store drepo.SignalStore, metrics drepo.Metrics, log *logger.Logger) *CycleRunner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.PatienceCycles <= 0 {
		cfg.PatienceCycles = 30
	}
	if cfg.ThresholdDecay <= 0 || cfg.ThresholdDecay >= 1 {
		cfg.ThresholdDecay = 0.9
	}
	return &CycleRunner{
		cfg:           cfg,
		features:      features,
		fusion:        fus,
		evEngine:      evEngine,
		exec:          exec,
		store:         store,
		metrics:       metrics,
		log:           log,
		baseThreshold: exec.EntryThreshold(),
		evalCh:        make(chan models.EVResult, 256),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the loop and the sink flusher.
func (r *CycleRunner) Start(ctx context.Context) {
	r.evEngine.SetObserver(func(res models.EVResult) {
		select {
		case r.evalCh <- res:
		default:
			// sink backlog, drop rather than stall the cycle
		}
	})

	go r.flushEvaluations(ctx)
	r.started.Store(true)
	go func() {
		defer close(r.doneCh)
		r.loop(ctx)
	}()
}

// Stop halts the loop and waits for it to return, so an in-flight cycle
// always finishes before the caller tears down the loop's collaborators.
func (r *CycleRunner) Stop() {
	r.once.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.doneCh
	}
}

func (r *CycleRunner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle executes one snapshot-fuse-execute pass.
func (r *CycleRunner) RunCycle(ctx context.Context) {
	snapshot := r.features.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	recs := r.fusion.Compute(snapshot)
	if r.store != nil && len(recs) > 0 {
		if err := r.store.StoreSignals(ctx, recs); err != nil {
			r.metrics.RecordError("signal_store")
			if r.log != nil {
				r.log.Warn("signal store write failed", logger.Error(err))
			}
		}
	}

	entries := r.exec.ExecuteCycle(ctx, snapshot)
	r.autoPatch(entries)
}

// autoPatch relaxes the entry threshold by the decay factor after a long
// idle stretch and restores the configured base on the next entry.
func (r *CycleRunner) autoPatch(entries int) {
	if entries > 0 {
		r.idleCycles = 0
		if r.exec.EntryThreshold() != r.baseThreshold {
			r.exec.SetEntryThreshold(r.baseThreshold)
			if r.log != nil {
				r.log.Info("entry threshold restored", logger.Any("threshold", r.baseThreshold))
			}
		}
		return
	}
	r.idleCycles++
	if r.idleCycles < r.cfg.PatienceCycles {
		return
	}
	r.idleCycles = 0
	next := r.exec.EntryThreshold() * r.cfg.ThresholdDecay
	if next < r.cfg.ThresholdFloor {
		next = r.cfg.ThresholdFloor
	}
	r.exec.SetEntryThreshold(next)
	if r.log != nil {
		r.log.Info("entry threshold relaxed", logger.Any("threshold", next))
	}
}

func (r *CycleRunner) flushEvaluations(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case res := <-r.evalCh:
			if r.store == nil {
				continue
			}
			if err := r.store.StoreEvaluation(ctx, res); err != nil {
				r.metrics.RecordError("evaluation_store")
			}
		}
	}
}
