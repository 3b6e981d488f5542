// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Severity grades how badly a verification rule was violated.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Violation is one finding from a verification rule.
type Violation struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Timestamp of the offending observation, Unix seconds. Zero when
	// the violation is not tied to a point in time.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// CRVReport records the outcome of running cost/risk/verification
// rules against a committed backtest result. ResultHash is the hex
// content hash of the BacktestResult that was checked. The report
// stores findings, not a verdict: whether a set of violations is
// acceptable is a policy decision made by the consumer.
type CRVReport struct {
	ResultHash   string      `json:"result_hash"`
	RulesChecked []string    `json:"rules_checked"`
	Violations   []Violation `json:"violations"`
}

func (r *CRVReport) validate() error {
	if r.ResultHash == "" {
		return fmt.Errorf("%w: crv report missing result_hash", ErrMalformed)
	}
	for i, v := range r.Violations {
		if v.RuleID == "" {
			return fmt.Errorf("%w: crv report violation %d missing rule_id", ErrMalformed, i)
		}
		switch v.Severity {
		case SeverityInfo, SeverityWarning, SeverityCritical:
		default:
			return fmt.Errorf("%w: crv report violation %d has unknown severity %q",
				ErrMalformed, i, v.Severity)
		}
	}
	return nil
}

// TraceEvent is one entry in a decision trace.
type TraceEvent struct {
	Timestamp int64          `json:"timestamp"`
	Stage     string         `json:"stage"`
	Detail    string         `json:"detail"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Trace is a free-form decision log emitted by an engine run, kept as
// a first-class artifact so a result's reasoning survives alongside
// its numbers. SubjectHash is the hex content hash of the artifact the
// trace describes, usually a backtest result.
type Trace struct {
	SubjectHash string       `json:"subject_hash"`
	Label       string       `json:"label"`
	Events      []TraceEvent `json:"events"`
}

func (t *Trace) validate() error {
	if t.SubjectHash == "" {
		return fmt.Errorf("%w: trace missing subject_hash", ErrMalformed)
	}
	return nil
}
