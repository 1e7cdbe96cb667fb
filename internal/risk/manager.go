package risk

import (
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Rejection reasons surfaced through metrics. A rejection is normal control
// flow, never an error.
const (
	RejectBreaker  = "breaker_active"
	RejectEVFloor  = "ev_floor"
	RejectDrawdown = "drawdown"
	RejectMargin   = "margin_health"
)

// Config holds the risk limits and breaker timing.
type Config struct {
	DailyDrawdownLimit    float64
	MarginHealthThreshold float64
	BreakerCooldown       time.Duration
	MaxLossStreak         int
	EVFloor               float64
	DrawdownHistorySize   int
}

// Manager is the circuit breaker and drawdown controller. It owns RiskState
// exclusively: the breaker flag, trigger time, loss streak, and the bounded
// drawdown history behind the risk-heat index.
type Manager struct {
	cfg     Config
	acct    drepo.Accounting
	metrics drepo.Metrics
	log     *logger.Logger

	mu            sync.Mutex
	breakerActive bool
	triggeredAt   time.Time
	triggerReason string
	lossStreak    int
	drawdowns     []float64

	now func() time.Time
}

// New creates a risk manager. Cooldown defaults to 180 minutes, the streak
// limit to 3, the EV floor to -0.05, and the drawdown history bound to 100.
func New(cfg Config, acct drepo.Accounting, metrics drepo.Metrics, log *logger.Logger) *Manager {
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 180 * time.Minute
	}
	if cfg.MaxLossStreak <= 0 {
		cfg.MaxLossStreak = 3
	}
	if cfg.EVFloor == 0 {
		cfg.EVFloor = -0.05
	}
	if cfg.DrawdownHistorySize <= 0 {
		cfg.DrawdownHistorySize = 100
	}
	return &Manager{cfg: cfg, acct: acct, metrics: metrics, log: log, now: time.Now}
}

// PreTradeCheck gates a single entry attempt. It rejects when the breaker
// is tripped, when EV is under the hard floor, or when the drawdown or
// margin checks fail; the latter two trip the breaker as a side effect.
func (m *Manager) PreTradeCheck(ev float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.breakerLocked() {
		m.reject(RejectBreaker)
		return false
	}
	if ev < m.cfg.EVFloor {
		m.reject(RejectEVFloor)
		return false
	}
	if !m.drawdownOKLocked() {
		m.reject(RejectDrawdown)
		return false
	}
	if !m.marginOKLocked() {
		m.reject(RejectMargin)
		return false
	}
	return true
}

// CheckCircuitBreaker reports whether trading is halted. Cooldown expiry is
// evaluated lazily here: once BreakerCooldown has elapsed since the trip,
// the breaker re-arms and the loss streak resets.
func (m *Manager) CheckCircuitBreaker() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerLocked()
}

func (m *Manager) breakerLocked() bool {
	if !m.breakerActive {
		return false
	}
	if m.now().Sub(m.triggeredAt) > m.cfg.BreakerCooldown {
		m.breakerActive = false
		m.lossStreak = 0
		if m.metrics != nil {
			m.metrics.RecordBreaker(false)
		}
		if m.log != nil {
			m.log.Info("circuit breaker cooldown complete, trading resumed")
		}
		return false
	}
	return true
}

func (m *Manager) drawdownOKLocked() bool {
	dd := m.drawdownLocked()
	if dd > m.cfg.DailyDrawdownLimit {
		m.tripLocked("daily drawdown limit hit")
		return false
	}
	return true
}

func (m *Manager) marginOKLocked() bool {
	if m.acct.MarginRatio() < m.cfg.MarginHealthThreshold {
		m.tripLocked("margin health breach")
		return false
	}
	return true
}

func (m *Manager) drawdownLocked() float64 {
	peak := m.acct.EquityPeak()
	if peak <= 0 {
		return 0
	}
	return (peak - m.acct.Equity()) / peak
}

func (m *Manager) tripLocked(reason string) {
	if m.breakerActive {
		return
	}
	m.breakerActive = true
	m.triggeredAt = m.now()
	m.triggerReason = reason
	if m.metrics != nil {
		m.metrics.RecordBreaker(true)
	}
	if m.log != nil {
		m.log.Error("circuit breaker tripped", logger.String("reason", reason))
	}
}

func (m *Manager) reject(reason string) {
	if m.metrics != nil {
		m.metrics.RecordRiskRejection(reason)
	}
}

// RegisterTradeResult records a realized outcome. Three consecutive losses
// trip the breaker; any win clears the streak. Losses also enter the
// bounded drawdown history behind the risk-heat index.
func (m *Manager) RegisterTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pnl >= 0 {
		m.lossStreak = 0
		return
	}
	m.lossStreak++
	m.drawdowns = append(m.drawdowns, pnl)
	if n := len(m.drawdowns); n > m.cfg.DrawdownHistorySize {
		m.drawdowns = append(m.drawdowns[:0:0], m.drawdowns[n-m.cfg.DrawdownHistorySize:]...)
	}
	if m.lossStreak >= m.cfg.MaxLossStreak {
		m.tripLocked("loss streak detected")
	}
}

// DynamicStopLoss returns a volatility-scaled stop adjusted by the current
// risk heat.
func (m *Manager) DynamicStopLoss(entryPrice, volatility float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := entryPrice - 2*volatility
	return base * (1 + m.riskHeatLocked())
}

// riskHeatLocked is the average magnitude of the last ten losses scaled
// against a 5% reference, clamped to [0, 1].
func (m *Manager) riskHeatLocked() float64 {
	n := len(m.drawdowns)
	if n == 0 {
		return 0
	}
	start := n - 10
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, d := range m.drawdowns[start:] {
		sum += d
	}
	avg := sum / float64(n-start)
	if avg < 0 {
		avg = -avg
	}
	heat := avg / 0.05
	if heat > 1 {
		heat = 1
	}
	return heat
}

// HedgeRecommendation proposes a short hedge on the two reference assets
// when risk heat runs above 0.8.
func (m *Manager) HedgeRecommendation() models.HedgePlan {
	m.mu.Lock()
	heat := m.riskHeatLocked()
	m.mu.Unlock()

	if heat > 0.8 {
		if m.log != nil {
			m.log.Warn("activating hedge due to high risk heat")
		}
		return models.HedgePlan{Hedge: true, Assets: []string{"BTCUSDT", "ETHUSDT"}, Side: models.SideSell}
	}
	return models.HedgePlan{}
}

// RecoveryMode switches to the capital-preservation posture once drawdown
// exceeds 20%: leverage halved and entries restricted to the conservative
// T4/T5 bands until drawdown recovers under 10% with positive edge.
func (m *Manager) RecoveryMode() models.RecoveryPlan {
	m.mu.Lock()
	dd := m.drawdownLocked()
	m.mu.Unlock()

	if dd > 0.20 {
		if m.log != nil {
			m.log.Warn("switching to capital preservation mode")
		}
		return models.RecoveryPlan{
			Mode:              "capital_preservation",
			LeverageReduction: 0.5,
			AllowedTiers:      []models.Tier{models.TierNeutral, models.TierScalping},
			ResumeCondition:   "drawdown < 10% and EV > 0.05",
		}
	}
	return models.RecoveryPlan{Mode: "normal"}
}

// Status snapshots the risk state for the control surface.
func (m *Manager) Status() models.RiskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := m.breakerLocked()
	mode := "normal"
	if m.drawdownLocked() > 0.20 {
		mode = "capital_preservation"
	}
	return models.RiskStatus{
		BreakerActive: active,
		TriggeredAt:   m.triggeredAt,
		TriggerReason: m.triggerReason,
		LossStreak:    m.lossStreak,
		RiskHeat:      m.riskHeatLocked(),
		Drawdown:      m.drawdownLocked(),
		Mode:          mode,
	}
}

// SetClock overrides the time source for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }
