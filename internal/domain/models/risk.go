package models

import "time"

// RiskStatus is the externally visible state of the risk manager.
type RiskStatus struct {
	BreakerActive bool      `json:"breaker_active"`
	TriggeredAt   time.Time `json:"triggered_at,omitempty"`
	TriggerReason string    `json:"trigger_reason,omitempty"`
	LossStreak    int       `json:"loss_streak"`
	RiskHeat      float64   `json:"risk_heat"` // [0, 1]
	Drawdown      float64   `json:"drawdown"`
	Mode          string    `json:"mode"` // "normal" or "capital_preservation"
}

// HedgePlan is the recommendation returned when risk heat runs hot.
type HedgePlan struct {
	Hedge  bool     `json:"hedge"`
	Assets []string `json:"assets,omitempty"`
	Side   Side     `json:"side,omitempty"`
}

// RecoveryPlan describes the capital-preservation posture entered under
// deep drawdown, and the condition for resuming normal operation.
type RecoveryPlan struct {
	Mode              string  `json:"mode"`
	LeverageReduction float64 `json:"leverage_reduction,omitempty"`
	AllowedTiers      []Tier  `json:"allowed_tiers,omitempty"`
	ResumeCondition   string  `json:"resume_condition,omitempty"`
}
