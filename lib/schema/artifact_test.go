// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"testing"
)

func validDataset() Dataset {
	return Dataset{
		Name: "spy-daily-2024",
		Bars: []Bar{
			{Timestamp: 1704153600, Symbol: "SPY", Open: 475.1, High: 477.8, Low: 474.0, Close: 476.5, Volume: 81_000_000},
		},
		Metadata: DatasetMetadata{
			Symbols:          []string{"SPY"},
			StartTimestamp:   1704153600,
			EndTimestamp:     1704153600,
			BarCount:         1,
			Provider:         "polygon",
			VenueClass:       "us_equities",
			TimezoneCalendar: "America/New_York:XNYS",
			AdjustmentPolicy: "split_adjusted",
			FidelityTier:     FidelityTier1Bar,
			LatencyClass:     LatencyEndOfDay,
		},
	}
}

func TestValidateAcceptsWellFormedArtifacts(t *testing.T) {
	limit := 0.2
	artifacts := []Artifact{
		NewDataset(validDataset()),
		NewStrategySpec(StrategySpec{
			Name:         "momo-20d",
			StrategyType: "momentum",
			Parameters:   map[string]any{"lookback": int64(20)},
			Goal:         "capture medium-term trends",
			RegimeTags:   []string{"trending", "high_vol"},
		}),
		NewBacktestConfig(BacktestConfig{
			InitialCash:  100_000,
			Seed:         42,
			StrategyHash: "ab12",
			DatasetHash:  "cd34",
			CostModel:    CostModelConfig{ModelType: "fixed_bps", Parameters: map[string]any{"bps": 1.5}},
			Policy:       PolicyConstraints{MaxDrawdown: &limit},
		}),
		NewBacktestResult(BacktestResult{ConfigHash: "ef56"}),
		NewCRVReport(CRVReport{
			ResultHash:   "0011",
			RulesChecked: []string{"max_drawdown"},
			Violations: []Violation{
				{RuleID: "max_drawdown", Severity: SeverityWarning, Message: "drawdown 21% exceeds 20%"},
			},
		}),
		NewTrace(Trace{SubjectHash: "2233", Label: "engine-decisions"}),
	}

	for _, a := range artifacts {
		if err := a.Validate(); err != nil {
			t.Errorf("Validate(%s): %v", a.Kind, err)
		}
	}
}

func TestValidateRejectsKindPayloadMismatch(t *testing.T) {
	d := validDataset()
	a := Artifact{Kind: KindStrategySpec, Dataset: &d}
	err := a.Validate()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Validate() = %v, want ErrMalformed", err)
	}
}

func TestValidateRejectsMultiplePayloads(t *testing.T) {
	d := validDataset()
	a := NewDataset(d)
	a.Trace = &Trace{SubjectHash: "ff"}
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Validate() = %v, want ErrMalformed", err)
	}
}

func TestValidateRejectsEmptyEnvelope(t *testing.T) {
	a := Artifact{Kind: KindDataset}
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Validate() = %v, want ErrMalformed", err)
	}
}

func TestValidateRejectsMissingProvenance(t *testing.T) {
	d := validDataset()
	d.Metadata.Provider = ""
	a := NewDataset(d)
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Error("dataset without provider passed validation")
	}

	d = validDataset()
	d.Metadata.AdjustmentPolicy = ""
	a = NewDataset(d)
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Error("dataset without adjustment policy passed validation")
	}
}

func TestValidateRejectsDanglingFieldRequirements(t *testing.T) {
	cfg := BacktestConfig{
		InitialCash: 100_000,
		DatasetHash: "cd34",
		CostModel:   CostModelConfig{ModelType: "fixed_bps"},
	}
	a := NewBacktestConfig(cfg)
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Error("config without strategy_hash passed validation")
	}

	a = NewBacktestResult(BacktestResult{})
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Error("result without config_hash passed validation")
	}
}

func TestValidateRejectsNonPositiveCash(t *testing.T) {
	cfg := BacktestConfig{
		InitialCash:  0,
		StrategyHash: "ab",
		DatasetHash:  "cd",
		CostModel:    CostModelConfig{ModelType: "fixed_bps"},
	}
	a := NewBacktestConfig(cfg)
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Error("config with zero initial_cash passed validation")
	}
}

func TestValidateRejectsUnknownSeverity(t *testing.T) {
	rep := CRVReport{
		ResultHash: "0011",
		Violations: []Violation{{RuleID: "r1", Severity: "fatal"}},
	}
	a := NewCRVReport(rep)
	if err := a.Validate(); !errors.Is(err, ErrMalformed) {
		t.Error("report with unknown severity passed validation")
	}
}

func TestPolicyConstraintKeys(t *testing.T) {
	dd, lev := 0.2, 3.0
	p := PolicyConstraints{MaxLeverage: &lev, MaxDrawdown: &dd}
	keys := p.Keys()
	want := []string{"max_drawdown", "max_leverage"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}

	var empty PolicyConstraints
	if got := empty.Keys(); len(got) != 0 {
		t.Errorf("Keys() on empty constraints = %v, want none", got)
	}
}

func TestComparableWith(t *testing.T) {
	base := validDataset().Metadata

	same := base
	same.Provider = "databento"
	if err := base.ComparableWith(&same); err != nil {
		t.Errorf("different provider should be comparable: %v", err)
	}

	tier := base
	tier.FidelityTier = FidelityTier3OrderBook
	if err := base.ComparableWith(&tier); err == nil {
		t.Error("fidelity tier mismatch accepted")
	}

	adj := base
	adj.AdjustmentPolicy = "unadjusted"
	if err := base.ComparableWith(&adj); err == nil {
		t.Error("adjustment policy mismatch accepted")
	}

	cal := base
	cal.TimezoneCalendar = "UTC:24x7"
	if err := base.ComparableWith(&cal); err == nil {
		t.Error("calendar mismatch accepted")
	}
}
