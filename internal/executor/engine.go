package executor

import (
	"context"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Exit reasons emitted on decision events.
const (
	ReasonSignalInvalid = "signal invalid"
	ReasonTimeExceeded  = "time exceeded"
	ReasonNoProfit      = "no profit after 15m"
	ReasonEVDecayed     = "EV decayed"
	ReasonRotated       = "rotated for higher EV"
)

// Evaluator produces the per-symbol evaluation consumed each cycle.
type Evaluator interface {
	Evaluate(symbol string, state models.MarketState) (models.EVResult, bool)
}

// RiskGate is the slice of the risk manager the executor needs.
type RiskGate interface {
	CheckCircuitBreaker() bool
	PreTradeCheck(ev float64) bool
}

// Config holds entry/exit thresholds and timing.
type Config struct {
	EntryThreshold float64
	EVFloor        float64
	MaxHolding     time.Duration
	StaleAfter     time.Duration
	EntryCooldown  time.Duration
	EVDecayRatio   float64
	RotationRatio  float64
}

// Engine drives the per-symbol position state machine: entry, exit,
// rotation, and cooldown enforcement. It is the sole writer of the position
// and cooldown maps; one mutex serializes the whole cycle so concurrent
// enter/exit/rotate on the same symbol cannot lose updates.
type Engine struct {
	cfg     Config
	eval    Evaluator
	risk    RiskGate
	acct    drepo.Accounting
	pub     drepo.DecisionPublisher
	metrics drepo.Metrics
	log     *logger.Logger

	mu        sync.Mutex
	positions map[string]models.Position
	cooldowns map[string]time.Time
	entered   int

	now func() time.Time
}

// New creates an execution engine, filling in timing defaults for any zero
// config value.
func New(cfg Config, eval Evaluator, risk RiskGate, acct drepo.Accounting, pub drepo.DecisionPublisher, metrics drepo.Metrics, log *logger.Logger) *Engine {
	if cfg.MaxHolding <= 0 {
		cfg.MaxHolding = 24 * time.Hour
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.EntryCooldown <= 0 {
		cfg.EntryCooldown = 5 * time.Minute
	}
	if cfg.EVDecayRatio <= 0 {
		cfg.EVDecayRatio = 0.5
	}
	if cfg.RotationRatio <= 0 {
		cfg.RotationRatio = 0.8
	}
	if cfg.EVFloor == 0 {
		cfg.EVFloor = -0.05
	}
	return &Engine{
		cfg:       cfg,
		eval:      eval,
		risk:      risk,
		acct:      acct,
		pub:       pub,
		metrics:   metrics,
		log:       log,
		positions: make(map[string]models.Position),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// ExecuteCycle runs one decision pass over the snapshot and returns the
// number of entries opened. Every symbol is evaluated against this same
// snapshot; a symbol's exit or rotation always completes before its own
// re-entry is considered.
func (e *Engine) ExecuteCycle(ctx context.Context, snapshot models.MarketSnapshot) int {
	start := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.entered

	for symbol, state := range snapshot {
		res, ok := e.eval.Evaluate(symbol, state)
		if !ok {
			continue
		}
		if e.metrics != nil {
			e.metrics.RecordEV(symbol, res.EV)
		}
		if !e.cycleGate(res.EV) {
			continue
		}
		if e.inCooldownLocked(symbol) {
			continue
		}

		if pos, open := e.positions[symbol]; open {
			if e.maybeExitLocked(ctx, symbol, pos, res, state) {
				continue
			}
			e.maybeRotateLocked(ctx, symbol, pos, res, state)
			continue
		}

		if res.EV > e.cfg.EntryThreshold && e.risk.PreTradeCheck(res.EV) {
			e.enterLocked(ctx, symbol, res, state)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordOpenPositions(len(e.positions))
		e.metrics.RecordCycleDuration(e.now().Sub(start).Seconds())
	}
	return e.entered - before
}

// cycleGate is the continuous risk check applied to every symbol before any
// position work: the circuit breaker plus the hard EV floor.
func (e *Engine) cycleGate(ev float64) bool {
	if e.risk.CheckCircuitBreaker() {
		if e.log != nil {
			e.log.Warn("circuit breaker active, trading paused")
		}
		return false
	}
	if ev < e.cfg.EVFloor {
		if e.metrics != nil {
			e.metrics.RecordRiskRejection("ev_floor")
		}
		return false
	}
	return true
}

func (e *Engine) inCooldownLocked(symbol string) bool {
	until, ok := e.cooldowns[symbol]
	return ok && e.now().Before(until)
}

// maybeExitLocked checks the four exit triggers in order; only the first
// match is acted on. Returns true when the position was closed.
func (e *Engine) maybeExitLocked(ctx context.Context, symbol string, pos models.Position, res models.EVResult, state models.MarketState) bool {
	held := e.now().Sub(pos.EntryTime)

	switch {
	case res.EV < 0 || res.PWin < 0.5:
		e.exitLocked(ctx, symbol, pos, ReasonSignalInvalid, true)
	case held > e.cfg.MaxHolding:
		e.exitLocked(ctx, symbol, pos, ReasonTimeExceeded, true)
	case held > e.cfg.StaleAfter && unrealizedReturn(pos, state.LastPrice) <= 0:
		e.exitLocked(ctx, symbol, pos, ReasonNoProfit, true)
	case res.EV < e.cfg.EVDecayRatio*pos.EntryEV:
		e.exitLocked(ctx, symbol, pos, ReasonEVDecayed, true)
	default:
		return false
	}
	return true
}

// maybeRotateLocked replaces the position when the fresh EV is at least its
// own entry EV and at least RotationRatio of the strongest open entry EV.
// With fewer than two open positions rotation is a no-op.
func (e *Engine) maybeRotateLocked(ctx context.Context, symbol string, pos models.Position, res models.EVResult, state models.MarketState) {
	if len(e.positions) < 2 {
		return
	}
	if res.EV < pos.EntryEV {
		return
	}
	maxEntry := pos.EntryEV
	for _, p := range e.positions {
		if p.EntryEV > maxEntry {
			maxEntry = p.EntryEV
		}
	}
	if res.EV < e.cfg.RotationRatio*maxEntry {
		return
	}

	// Rotation is exit-and-reopen as one atomic step, so no cooldown.
	e.exitLocked(ctx, symbol, pos, ReasonRotated, false)
	e.enterLocked(ctx, symbol, res, state)
}

func (e *Engine) enterLocked(ctx context.Context, symbol string, res models.EVResult, state models.MarketState) {
	side := models.SideSell
	if res.PWin > 0.5 {
		side = models.SideBuy
	}
	notional := e.acct.AvailableBalance() * res.Kelly * float64(res.Leverage)
	e.acct.ReserveMargin(positionMargin(notional, res.Leverage))

	e.entered++
	e.positions[symbol] = models.Position{
		Symbol:     symbol,
		EntryTime:  e.now(),
		EntryPrice: state.LastPrice,
		Leverage:   res.Leverage,
		Notional:   notional,
		EntryEV:    res.EV,
		Side:       side,
		Open:       true,
	}

	if e.log != nil {
		e.log.Info("entry",
			logger.String("symbol", symbol),
			logger.Any("ev", res.EV),
			logger.Any("notional", notional),
			logger.Int("leverage", res.Leverage))
	}
	e.emit(ctx, models.DecisionEvent{
		Type:      "entry",
		Symbol:    symbol,
		Side:      side,
		EV:        res.EV,
		Tier:      res.Tier,
		Leverage:  res.Leverage,
		Notional:  notional,
		Timestamp: e.now(),
	})
	if e.metrics != nil {
		e.metrics.RecordDecision("entry", symbol, "")
	}
}

func (e *Engine) exitLocked(ctx context.Context, symbol string, pos models.Position, reason string, cooldown bool) {
	delete(e.positions, symbol)
	e.acct.ReserveMargin(-positionMargin(pos.Notional, pos.Leverage))
	if cooldown {
		e.cooldowns[symbol] = e.now().Add(e.cfg.EntryCooldown)
	}

	if e.log != nil {
		e.log.Info("exit", logger.String("symbol", symbol), logger.String("reason", reason))
	}
	kind := "exit"
	if reason == ReasonRotated {
		kind = "rotation"
	}
	e.emit(ctx, models.DecisionEvent{
		Type:      kind,
		Symbol:    symbol,
		Reason:    reason,
		Side:      pos.Side,
		EV:        pos.EntryEV,
		Leverage:  pos.Leverage,
		Notional:  pos.Notional,
		Timestamp: e.now(),
	})
	if e.metrics != nil {
		e.metrics.RecordDecision(kind, symbol, reason)
	}
}

func (e *Engine) emit(ctx context.Context, ev models.DecisionEvent) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		if e.metrics != nil {
			e.metrics.RecordError("decision_publish")
		}
		if e.log != nil {
			e.log.Warn("decision publish failed", logger.Error(err))
		}
	}
}

// positionMargin is the capital locked behind a position's notional.
func positionMargin(notional float64, leverage int) float64 {
	if leverage <= 0 {
		return notional
	}
	return notional / float64(leverage)
}

// unrealizedReturn is the signed fractional move since entry, positive when
// the position is in profit. Unknown prices count as flat.
func unrealizedReturn(pos models.Position, price float64) float64 {
	if pos.EntryPrice <= 0 || price <= 0 {
		return 0
	}
	r := (price - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == models.SideSell {
		r = -r
	}
	return r
}

// Positions returns a copy of the open position set.
func (e *Engine) Positions() map[string]models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]models.Position, len(e.positions))
	for k, v := range e.positions {
		out[k] = v
	}
	return out
}

// CooldownUntil reports the active cooldown deadline for a symbol, if any.
func (e *Engine) CooldownUntil(symbol string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	until, ok := e.cooldowns[symbol]
	if !ok || !e.now().Before(until) {
		return time.Time{}, false
	}
	return until, true
}

// EntryThreshold returns the current dynamic entry threshold.
func (e *Engine) EntryThreshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.EntryThreshold
}

// SetEntryThreshold adjusts the dynamic entry threshold.
func (e *Engine) SetEntryThreshold(v float64) {
	e.mu.Lock()
	e.cfg.EntryThreshold = v
	e.mu.Unlock()
}

// SetClock overrides the time source for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }
