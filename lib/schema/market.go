// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Bar is a single OHLCV bar. Timestamps are Unix seconds; integer
// time keeps canonical bytes stable across timezones and platforms.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Fill is an executed trade.
type Fill struct {
	Timestamp  int64   `json:"timestamp"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp      int64   `json:"timestamp"`
	Equity         float64 `json:"equity"`
	Cash           float64 `json:"cash"`
	PositionsValue float64 `json:"positions_value"`
}

// FidelityTier is a dataset's declared data richness level. The store
// treats it as opaque provenance metadata; comparability rules live in
// [DatasetMetadata.ComparableWith].
type FidelityTier string

const (
	FidelityTier1Bar       FidelityTier = "tier1_bar"
	FidelityTier2TickQuote FidelityTier = "tier2_tick_quote"
	FidelityTier3OrderBook FidelityTier = "tier3_order_book"
)

// LatencyClass describes how fresh a dataset's source feed was.
type LatencyClass string

const (
	LatencyRealtime LatencyClass = "realtime"
	LatencyDelayed  LatencyClass = "delayed"
	LatencyEndOfDay LatencyClass = "end_of_day"
	LatencyUnknown  LatencyClass = "unknown"
)

// QualityFlag marks a known defect or derivation in a dataset.
type QualityFlag string

const (
	QualityMissingSourceField   QualityFlag = "missing_source_field"
	QualityDerivedValue         QualityFlag = "derived_value"
	QualityLateSourceData       QualityFlag = "late_source_data"
	QualityNormalizationWarning QualityFlag = "normalization_warning"
)

// TransformationStep records one step of the pipeline that produced a
// dataset from its raw source (normalization, resampling, joins).
type TransformationStep struct {
	Step    string `json:"step"`
	Details string `json:"details"`
}
