package repository

import (
	"context"

	"TradePulse/internal/domain/models"
)

// FeatureSource is the boundary to the ingestion collaborator. Snapshot
// returns the latest per-symbol market state, refreshed on the source's own
// cadence; callers must treat it as read-only.
type FeatureSource interface {
	Snapshot() models.MarketSnapshot
}

// MarketStream is a live exchange feed of normalized market events.
type MarketStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.MarketEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Accounting is the boundary to the account/balance collaborator. The
// executor reserves margin when it opens a position and releases it on
// close; everything else only reads.
type Accounting interface {
	AvailableBalance() float64
	Equity() float64
	EquityPeak() float64
	MarginRatio() float64
	ReserveMargin(delta float64)
}

// DecisionPublisher emits decision audit events (entries, exits, rotations).
type DecisionPublisher interface {
	Publish(ctx context.Context, ev models.DecisionEvent) error
	Close() error
}

// SignalStore is the offline-analysis sink for fused signals and EV
// evaluations. The in-memory bounded histories stay authoritative; this
// sink is additive and best-effort.
type SignalStore interface {
	Init(ctx context.Context) error
	StoreSignals(ctx context.Context, recs []models.SignalRecord) error
	StoreEvaluation(ctx context.Context, res models.EVResult) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters for the decision loop. A risk
// rejection is normal control flow, not an error, but must stay observable
// as a counted event.
type Metrics interface {
	RecordDecision(kind, symbol, reason string)
	RecordRiskRejection(reason string)
	RecordBreaker(active bool)
	RecordOpenPositions(n int)
	RecordEV(symbol string, ev float64)
	RecordCycleDuration(seconds float64)
	RecordLatency(name string, seconds float64)
	RecordError(kind string)
}
