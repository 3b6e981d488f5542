// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
)

// ErrMalformed is the sentinel for artifacts that fail structural
// validation. Errors returned by [Artifact.Validate] wrap it, so
// callers use errors.Is(err, schema.ErrMalformed). Malformed input is
// a caller bug; the store never retries it.
var ErrMalformed = errors.New("malformed artifact")

// Kind identifies an artifact variant. The set is closed: every place
// that branches on Kind switches exhaustively over these constants, so
// adding a variant is a compile-surface change in all of them
// (validation, index field extraction, diff).
type Kind string

const (
	KindDataset        Kind = "dataset"
	KindStrategySpec   Kind = "strategy_spec"
	KindBacktestConfig Kind = "backtest_config"
	KindBacktestResult Kind = "backtest_result"
	KindCRVReport      Kind = "crv_report"
	KindTrace          Kind = "trace"
)

// Kinds returns all artifact kinds in a fixed order.
func Kinds() []Kind {
	return []Kind{
		KindDataset,
		KindStrategySpec,
		KindBacktestConfig,
		KindBacktestResult,
		KindCRVReport,
		KindTrace,
	}
}

// Artifact is the tagged union of everything the store persists. Kind
// names the variant and exactly one of the variant pointers is
// non-nil; [Artifact.Validate] enforces the pairing. The envelope
// itself carries no timestamps or identifiers: an artifact's identity
// is the hash of its canonical bytes, so everything inside the
// envelope must be caller-provided, deterministic data.
type Artifact struct {
	Kind Kind `json:"kind"`

	Dataset        *Dataset        `json:"dataset,omitempty"`
	StrategySpec   *StrategySpec   `json:"strategy_spec,omitempty"`
	BacktestConfig *BacktestConfig `json:"backtest_config,omitempty"`
	BacktestResult *BacktestResult `json:"backtest_result,omitempty"`
	CRVReport      *CRVReport      `json:"crv_report,omitempty"`
	Trace          *Trace          `json:"trace,omitempty"`
}

// NewDataset wraps a Dataset in an artifact envelope.
func NewDataset(d Dataset) Artifact {
	return Artifact{Kind: KindDataset, Dataset: &d}
}

// NewStrategySpec wraps a StrategySpec in an artifact envelope.
func NewStrategySpec(s StrategySpec) Artifact {
	return Artifact{Kind: KindStrategySpec, StrategySpec: &s}
}

// NewBacktestConfig wraps a BacktestConfig in an artifact envelope.
func NewBacktestConfig(c BacktestConfig) Artifact {
	return Artifact{Kind: KindBacktestConfig, BacktestConfig: &c}
}

// NewBacktestResult wraps a BacktestResult in an artifact envelope.
func NewBacktestResult(r BacktestResult) Artifact {
	return Artifact{Kind: KindBacktestResult, BacktestResult: &r}
}

// NewCRVReport wraps a CRVReport in an artifact envelope.
func NewCRVReport(r CRVReport) Artifact {
	return Artifact{Kind: KindCRVReport, CRVReport: &r}
}

// NewTrace wraps a Trace in an artifact envelope.
func NewTrace(t Trace) Artifact {
	return Artifact{Kind: KindTrace, Trace: &t}
}

// Validate checks the envelope and the variant's structural
// invariants. All failures wrap [ErrMalformed].
func (a *Artifact) Validate() error {
	if err := a.validateEnvelope(); err != nil {
		return err
	}

	switch a.Kind {
	case KindDataset:
		return a.Dataset.validate()
	case KindStrategySpec:
		return a.StrategySpec.validate()
	case KindBacktestConfig:
		return a.BacktestConfig.validate()
	case KindBacktestResult:
		return a.BacktestResult.validate()
	case KindCRVReport:
		return a.CRVReport.validate()
	case KindTrace:
		return a.Trace.validate()
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, a.Kind)
	}
}

// validateEnvelope checks that Kind is set and that exactly the
// matching variant pointer is non-nil.
func (a *Artifact) validateEnvelope() error {
	variants := []struct {
		kind Kind
		set  bool
	}{
		{KindDataset, a.Dataset != nil},
		{KindStrategySpec, a.StrategySpec != nil},
		{KindBacktestConfig, a.BacktestConfig != nil},
		{KindBacktestResult, a.BacktestResult != nil},
		{KindCRVReport, a.CRVReport != nil},
		{KindTrace, a.Trace != nil},
	}

	found := false
	for _, v := range variants {
		if !v.set {
			continue
		}
		if v.kind != a.Kind {
			return fmt.Errorf("%w: kind is %q but %q payload is set",
				ErrMalformed, a.Kind, v.kind)
		}
		if found {
			return fmt.Errorf("%w: multiple variant payloads set", ErrMalformed)
		}
		found = true
	}
	if !found {
		return fmt.Errorf("%w: no variant payload set for kind %q",
			ErrMalformed, a.Kind)
	}
	return nil
}
