// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Dataset is an immutable snapshot of market data plus the provenance
// metadata needed to judge whether two backtests ran on comparable
// inputs.
type Dataset struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Bars        []Bar           `json:"bars"`
	Metadata    DatasetMetadata `json:"metadata"`
}

// DatasetMetadata describes where a dataset came from and what was
// done to it. Provider and venue identify the source; the calendar,
// adjustment policy, and fidelity tier determine which other datasets
// results can meaningfully be compared against.
type DatasetMetadata struct {
	Symbols          []string             `json:"symbols"`
	StartTimestamp   int64                `json:"start_timestamp"`
	EndTimestamp     int64                `json:"end_timestamp"`
	BarCount         int                  `json:"bar_count"`
	Provider         string               `json:"provider"`
	VenueClass       string               `json:"venue_class"`
	TimezoneCalendar string               `json:"timezone_calendar"`
	AdjustmentPolicy string               `json:"adjustment_policy"`
	FidelityTier     FidelityTier         `json:"fidelity_tier"`
	LatencyClass     LatencyClass         `json:"latency_class"`
	QualityFlags     []QualityFlag        `json:"quality_flags,omitempty"`
	TransformLineage []TransformationStep `json:"transform_lineage,omitempty"`
}

func (d *Dataset) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: dataset missing name", ErrMalformed)
	}
	return d.Metadata.ValidateProvenance()
}

// ValidateProvenance checks that the metadata names its source. A
// dataset with an unknown provider or venue cannot participate in
// comparability checks, so these fields are required at commit time.
func (m *DatasetMetadata) ValidateProvenance() error {
	if m.Provider == "" {
		return fmt.Errorf("%w: dataset metadata missing provider", ErrMalformed)
	}
	if m.VenueClass == "" {
		return fmt.Errorf("%w: dataset metadata missing venue_class", ErrMalformed)
	}
	if m.TimezoneCalendar == "" {
		return fmt.Errorf("%w: dataset metadata missing timezone_calendar", ErrMalformed)
	}
	if m.AdjustmentPolicy == "" {
		return fmt.Errorf("%w: dataset metadata missing adjustment_policy", ErrMalformed)
	}
	return nil
}

// ComparableWith reports whether results computed on this dataset can
// be meaningfully compared with results computed on other. Provider
// may differ (two vendors selling the same feed), but fidelity tier,
// adjustment policy, and calendar must match exactly.
func (m *DatasetMetadata) ComparableWith(other *DatasetMetadata) error {
	if m.FidelityTier != other.FidelityTier {
		return fmt.Errorf("non-equivalent comparison: fidelity tier mismatch (%s vs %s)",
			m.FidelityTier, other.FidelityTier)
	}
	if m.AdjustmentPolicy != other.AdjustmentPolicy {
		return fmt.Errorf("non-equivalent comparison: adjustment policy mismatch (%s vs %s)",
			m.AdjustmentPolicy, other.AdjustmentPolicy)
	}
	if m.TimezoneCalendar != other.TimezoneCalendar {
		return fmt.Errorf("non-equivalent comparison: timezone/calendar mismatch (%s vs %s)",
			m.TimezoneCalendar, other.TimezoneCalendar)
	}
	return nil
}
