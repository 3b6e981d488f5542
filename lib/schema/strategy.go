// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"slices"
)

// StrategySpec describes a trading strategy: its type, parameters,
// the goal it was generated for, and the market regimes it targets.
// Parameters is a free-form mapping (string keys only) so strategy
// generators can evolve without schema changes; canonical encoding
// sorts the keys, so parameter maps hash deterministically.
type StrategySpec struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	StrategyType string         `json:"strategy_type"`
	Parameters   map[string]any `json:"parameters"`
	Goal         string         `json:"goal"`
	RegimeTags   []string       `json:"regime_tags"`
}

func (s *StrategySpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: strategy spec missing name", ErrMalformed)
	}
	if s.StrategyType == "" {
		return fmt.Errorf("%w: strategy spec missing strategy_type", ErrMalformed)
	}
	return nil
}

// BacktestConfig pins down one backtest run: which strategy, which
// data, starting capital, RNG seed, cost model, and policy limits.
// StrategyHash and DatasetHash are hex content hashes of previously
// committed artifacts, so the config's identity covers the exact
// inputs. That is what makes replay a strict equality test.
type BacktestConfig struct {
	InitialCash  float64           `json:"initial_cash"`
	Seed         uint64            `json:"seed"`
	StrategyHash string            `json:"strategy_hash"`
	DatasetHash  string            `json:"dataset_hash"`
	CostModel    CostModelConfig   `json:"cost_model"`
	Policy       PolicyConstraints `json:"policy"`
}

// CostModelConfig selects and parameterizes a trading cost model.
type CostModelConfig struct {
	ModelType  string         `json:"model_type"`
	Parameters map[string]any `json:"parameters"`
}

// PolicyConstraints are the risk limits a backtest is verified
// against. Nil means the constraint is not declared.
type PolicyConstraints struct {
	MaxDrawdown   *float64 `json:"max_drawdown,omitempty"`
	MaxLeverage   *float64 `json:"max_leverage,omitempty"`
	TurnoverLimit *float64 `json:"turnover_limit,omitempty"`
}

// Keys returns the names of the declared constraints, sorted. Used by
// the metadata index for policy-key search.
func (p *PolicyConstraints) Keys() []string {
	var keys []string
	if p.MaxDrawdown != nil {
		keys = append(keys, "max_drawdown")
	}
	if p.MaxLeverage != nil {
		keys = append(keys, "max_leverage")
	}
	if p.TurnoverLimit != nil {
		keys = append(keys, "turnover_limit")
	}
	slices.Sort(keys)
	return keys
}

func (c *BacktestConfig) validate() error {
	if c.StrategyHash == "" {
		return fmt.Errorf("%w: backtest config missing strategy_hash", ErrMalformed)
	}
	if c.DatasetHash == "" {
		return fmt.Errorf("%w: backtest config missing dataset_hash", ErrMalformed)
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("%w: backtest config initial_cash must be positive", ErrMalformed)
	}
	if c.CostModel.ModelType == "" {
		return fmt.Errorf("%w: backtest config missing cost_model.model_type", ErrMalformed)
	}
	return nil
}
