package models

// Tier is one of six ordered EV bands driving leverage and eligibility.
type Tier string

const (
	TierExplosive Tier = "T1_explosive"
	TierStrong    Tier = "T2_strong"
	TierModerate  Tier = "T3_moderate"
	TierNeutral   Tier = "T4_neutral"
	TierScalping  Tier = "T5_scalping"
	TierDefensive Tier = "T6_defensive"
)

// ClassifyTier maps a net EV onto its band. Boundaries are inclusive at the
// lower edge, so an EV sitting exactly on a threshold belongs to the higher
// tier. Both the fusion engine's coarse classifier and the EV engine use
// this single function so the two can never disagree.
func ClassifyTier(ev float64) Tier {
	switch {
	case ev >= 0.35:
		return TierExplosive
	case ev >= 0.20:
		return TierStrong
	case ev >= 0.10:
		return TierModerate
	case ev >= 0.03:
		return TierNeutral
	case ev >= -0.02:
		return TierScalping
	default:
		return TierDefensive
	}
}
