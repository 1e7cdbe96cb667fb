package account

import (
	"sync"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// Account is the paper accounting ledger: balance, equity, the running
// equity peak, and a margin-ratio estimate. Fills mutate it; the risk
// manager and executor only read it.
type Account struct {
	log *logger.Logger

	mu         sync.RWMutex
	balance    float64
	equity     float64
	equityPeak float64
	usedMargin float64
}

// New creates an account funded with the initial balance.
func New(initialBalance float64, log *logger.Logger) *Account {
	return &Account{
		log:        log,
		balance:    initialBalance,
		equity:     initialBalance,
		equityPeak: initialBalance,
	}
}

// ApplyFill settles a realized PnL into balance and equity and advances the
// equity peak.
func (a *Account) ApplyFill(fill models.Fill) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance += fill.PnL
	a.equity = a.balance
	if a.equity > a.equityPeak {
		a.equityPeak = a.equity
	}
	if a.log != nil {
		a.log.Debug("fill applied",
			logger.String("symbol", fill.Symbol),
			logger.Any("pnl", fill.PnL),
			logger.Any("balance", a.balance))
	}
}

// ReserveMargin tracks margin locked by an open position; a negative delta
// releases it.
func (a *Account) ReserveMargin(delta float64) {
	a.mu.Lock()
	a.usedMargin += delta
	if a.usedMargin < 0 {
		a.usedMargin = 0
	}
	a.mu.Unlock()
}

func (a *Account) AvailableBalance() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

func (a *Account) Equity() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equity
}

func (a *Account) EquityPeak() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equityPeak
}

// MarginRatio is equity over used margin. With nothing at risk it reports
// fully healthy.
func (a *Account) MarginRatio() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.usedMargin <= 0 {
		return 1
	}
	r := a.equity / a.usedMargin
	if r > 1 {
		r = 1
	}
	if r < 0 {
		r = 0
	}
	return r
}

// Snapshot returns the account state for the control surface.
func (a *Account) Snapshot() models.AccountSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ratio := 1.0
	if a.usedMargin > 0 {
		ratio = a.equity / a.usedMargin
		if ratio > 1 {
			ratio = 1
		}
	}
	return models.AccountSnapshot{
		Balance:     a.balance,
		Equity:      a.equity,
		EquityPeak:  a.equityPeak,
		MarginRatio: ratio,
	}
}
