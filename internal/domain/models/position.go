package models

import "time"

// Side is the position direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is an open exposure on one symbol. At most one exists per symbol
// at any time; it is created on entry and deleted on exit, never partially
// mutated in between.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   int       `json:"leverage"`
	Notional   float64   `json:"notional"`
	EntryEV    float64   `json:"entry_ev"`
	Side       Side      `json:"side"`
	Open       bool      `json:"open"`
}

// DecisionEvent is the audit record emitted for every capital-affecting
// decision the executor takes.
type DecisionEvent struct {
	Type      string    `json:"type"` // "entry", "exit", "rotation"
	Symbol    string    `json:"symbol"`
	Reason    string    `json:"reason,omitempty"`
	Side      Side      `json:"side,omitempty"`
	EV        float64   `json:"ev"`
	Tier      Tier      `json:"tier,omitempty"`
	Leverage  int       `json:"leverage,omitempty"`
	Notional  float64   `json:"notional,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Fill is a realized trade outcome reported back by the execution venue
// (consumed from the fills topic).
type Fill struct {
	Symbol    string    `json:"symbol"`
	PnL       float64   `json:"pnl"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountSnapshot mirrors the accounting collaborator's view of the account.
type AccountSnapshot struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	EquityPeak  float64 `json:"equity_peak"`
	MarginRatio float64 `json:"margin_ratio"`
}
