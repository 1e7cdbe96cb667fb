package models

import "time"

// EVResult is the refined per-symbol evaluation produced once per cycle.
// It is recomputed fresh every time and never mutated afterwards.
type EVResult struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	PWin     float64 `json:"p_win"`    // clamped to [0.01, 0.99]
	Gain     float64 `json:"gain"`     // clamped to [0.5, 5.0]
	Loss     float64 `json:"loss"`     // clamped to [0.5, 5.0]
	Fee      float64 `json:"fee"`
	EV       float64 `json:"ev"`       // p*G - (1-p)*L - fee
	Tier     Tier    `json:"tier"`
	Leverage int     `json:"leverage"` // drawn from the tier band
	Kelly    float64 `json:"kelly"`    // clamped to [0, 0.25]

	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// TradeRecord feeds the Bayesian posterior's per-symbol win/loss counts.
// Win reflects the EV sign at computation time, not a realized outcome;
// realized outcomes arrive later through the fills path.
type TradeRecord struct {
	Symbol string  `json:"symbol"`
	PWin   float64 `json:"p_win"`
	Gain   float64 `json:"gain"`
	Loss   float64 `json:"loss"`
	EV     float64 `json:"ev"`
	Tier   Tier    `json:"tier"`
	Win    bool    `json:"win"`
}
