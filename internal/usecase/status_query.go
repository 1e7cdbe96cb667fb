package usecase

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/account"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/executor"
	"TradePulse/internal/risk"
	"TradePulse/internal/services/ev"
	"TradePulse/internal/services/fusion"
	"TradePulse/pkg/cache"
)

// StatusQuery is the read side of the control surface: current signals,
// evaluations, positions, risk posture, and account state. Hot reads go
// through the cache with short TTLs; the engines stay authoritative.
type StatusQuery struct {
	fusion   *fusion.Engine
	evEngine *ev.Engine
	exec     *executor.Engine
	riskMgr  *risk.Manager
	acct     *account.Account
	features drepo.FeatureSource
	cache    cache.Service
	cacheTTL time.Duration
}

func NewStatusQuery(fus *fusion.Engine, evEngine *ev.Engine, exec *executor.Engine, riskMgr *risk.Manager, acct *account.Account, features drepo.FeatureSource, c cache.Service) *StatusQuery {
	return &StatusQuery{
		fusion:   fus,
		evEngine: evEngine,
		exec:     exec,
		riskMgr:  riskMgr,
		acct:     acct,
		features: features,
		cache:    c,
		cacheTTL: 2 * time.Second,
	}
}

// Signals returns the current fused signal set.
func (q *StatusQuery) Signals(ctx context.Context) map[string]models.Signal {
	const key = "tradepulse:signals"
	if q.cache != nil {
		var cached map[string]models.Signal
		if err := q.cache.Get(ctx, key, &cached); err == nil {
			return cached
		}
	}
	out := q.fusion.AllSignals()
	if q.cache != nil {
		_ = q.cache.Set(ctx, key, out, q.cacheTTL)
	}
	return out
}

// Signal returns the fused signal for one symbol.
func (q *StatusQuery) Signal(ctx context.Context, symbol string) (models.Signal, error) {
	s, ok := q.fusion.Signal(symbol)
	if !ok {
		return models.Signal{}, fmt.Errorf("no signal for %s", symbol)
	}
	return s, nil
}

// History returns the most recent fused-signal records, optionally filtered
// by symbol, newest last.
func (q *StatusQuery) History(ctx context.Context, symbol string, limit int) []models.SignalRecord {
	all := q.fusion.History()
	if symbol != "" {
		filtered := all[:0:0]
		for _, r := range all {
			if r.Symbol == symbol {
				filtered = append(filtered, r)
			}
		}
		all = filtered
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// Evaluation computes a fresh EV evaluation for a symbol against the latest
// market state. It previews only: a read must not feed the trade window.
func (q *StatusQuery) Evaluation(ctx context.Context, symbol string) (models.EVResult, error) {
	state, ok := q.features.Snapshot()[symbol]
	if !ok {
		return models.EVResult{}, fmt.Errorf("no market state for %s", symbol)
	}
	res, ok := q.evEngine.Preview(symbol, state)
	if !ok {
		return models.EVResult{}, fmt.Errorf("no signal for %s", symbol)
	}
	return res, nil
}

// Positions returns the open position set.
func (q *StatusQuery) Positions(ctx context.Context) map[string]models.Position {
	return q.exec.Positions()
}

// Risk returns the risk posture: breaker state, heat, drawdown, plus the
// current hedge and recovery recommendations.
func (q *StatusQuery) Risk(ctx context.Context) (models.RiskStatus, models.HedgePlan, models.RecoveryPlan) {
	return q.riskMgr.Status(), q.riskMgr.HedgeRecommendation(), q.riskMgr.RecoveryMode()
}

// Account returns the paper-account snapshot.
func (q *StatusQuery) Account(ctx context.Context) models.AccountSnapshot {
	return q.acct.Snapshot()
}
