// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// BacktestStats are the summary statistics of one backtest run.
type BacktestStats struct {
	InitialEquity   float64 `json:"initial_equity"`
	FinalEquity     float64 `json:"final_equity"`
	TotalReturn     float64 `json:"total_return"`
	NumTrades       int     `json:"num_trades"`
	TotalCommission float64 `json:"total_commission"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
}

// BacktestResult is the output of running a backtest engine on a
// committed config. ConfigHash is the hex content hash of the
// BacktestConfig that produced it. ExecutionTimestamp records when
// the engine originally ran; it is caller-supplied input data, part
// of the hashed payload like every other field, and a replayed engine
// must reproduce it (deterministic engines derive it from the config
// or the data, not the wall clock).
type BacktestResult struct {
	ConfigHash         string        `json:"config_hash"`
	Stats              BacktestStats `json:"stats"`
	Trades             []Fill        `json:"trades"`
	EquityCurve        []EquityPoint `json:"equity_curve"`
	ExecutionTimestamp int64         `json:"execution_timestamp"`
}

func (r *BacktestResult) validate() error {
	if r.ConfigHash == "" {
		return fmt.Errorf("%w: backtest result missing config_hash", ErrMalformed)
	}
	return nil
}
