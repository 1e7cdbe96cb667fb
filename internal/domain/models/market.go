package models

import "time"

// Feature names published by the ingestion layer and consumed by fusion.
// A symbol missing a feature is treated as neutral (0) by the fusion engine.
const (
	FeaturePriceVelocity      = "price_velocity"
	FeatureVolumeAcceleration = "volume_acceleration"
	FeatureLiquidationHeat    = "liquidation_heat"
	FeatureOrderImbalance     = "order_imbalance"
	FeatureFundingBias        = "funding_bias"
	FeatureMacroSentiment     = "macro_sentiment_score"
	FeatureOnchainScore       = "onchain_score"
	FeatureEtfFlow            = "etf_flow_score"
	FeatureSocialSentiment    = "social_sentiment_score"
)

// MarketState is the per-symbol, per-cycle snapshot produced by the
// ingestion layer. It is immutable once published; the decision core only
// reads it.
type MarketState struct {
	Symbol    string
	Timestamp time.Time
	LastPrice float64

	Volatility       float64
	ATR              float64
	Momentum         float64
	LiquidityScore   float64
	DepthScore       float64
	Slippage         float64
	FundingRate      float64
	OrderImbalance   float64
	TrendConsistency float64

	// Named fusion inputs. Map access yields the neutral zero value for
	// anything the extractor could not compute.
	Features map[string]float64
}

// MarketSnapshot is the full refreshed view handed to one execution cycle.
// All symbols in a cycle are evaluated against the same snapshot.
type MarketSnapshot map[string]MarketState

// MarketEvent kinds emitted by the exchange stream.
const (
	EventTrade       = "trade"
	EventBook        = "book"
	EventFunding     = "funding"
	EventLiquidation = "liquidation"
)

// MarketEvent is one raw message from the exchange stream, normalized to a
// single shape. Fields outside the kind's group stay zero.
type MarketEvent struct {
	Kind      string
	Symbol    string
	Timestamp time.Time

	// trade / liquidation
	Price float64
	Qty   float64

	// book
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64

	// funding
	FundingRate float64
}
