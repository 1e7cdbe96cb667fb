package usecase

import (
	"context"
	"encoding/json"
	"time"

	"TradePulse/internal/account"
	"TradePulse/internal/domain/models"
	domrepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/risk"
	pkgkafka "TradePulse/pkg/kafka"
)

// FillsHandler consumes realized-fill messages and settles them into the
// account and the risk manager. This is the only path that feeds the loss
// streak and risk heat with realized outcomes.
type FillsHandler struct {
	topic   string
	acct    *account.Account
	risk    *risk.Manager
	metrics domrepo.Metrics
}

func NewFillsHandler(topic string, acct *account.Account, riskMgr *risk.Manager, metrics domrepo.Metrics) *FillsHandler {
	return &FillsHandler{topic: topic, acct: acct, risk: riskMgr, metrics: metrics}
}

func (h *FillsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, pnl, t}
func (h *FillsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		PnL    float64 `json:"pnl"`
		T      int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("fills_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("fill_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	fill := models.Fill{Symbol: m.Symbol, PnL: m.PnL, Timestamp: time.Unix(m.T, 0)}
	h.acct.ApplyFill(fill)
	h.risk.RegisterTradeResult(m.PnL)
	return nil
}

var _ pkgkafka.MessageHandler = (*FillsHandler)(nil)
