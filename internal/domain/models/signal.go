package models

import "time"

// Signal is the current fused view for one symbol: the weighted component
// breakdown, the total score, and a coarse EV/tier estimate kept for
// operational visibility. The authoritative EV comes from the EV engine.
type Signal struct {
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"timestamp"`
	Score     float64            `json:"score"`
	EV        float64            `json:"ev"`
	Tier      Tier               `json:"tier"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// SignalRecord is the compact history entry appended on every fusion pass.
// Records are read-only once created and evicted oldest-first.
type SignalRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	EV        float64   `json:"ev"`
	Tier      Tier      `json:"tier"`
}
