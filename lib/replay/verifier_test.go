// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/schema"
)

// deterministicEngine computes a toy but fully deterministic result:
// buy on the first bar, sell on the last, with stats derived from the
// data alone.
func deterministicEngine(_ context.Context, config *schema.BacktestConfig, dataset *schema.Dataset, _ *schema.StrategySpec) (*schema.BacktestResult, error) {
	first := dataset.Bars[0]
	last := dataset.Bars[len(dataset.Bars)-1]

	quantity := 100.0
	profit := (last.Close - first.Close) * quantity

	computed := &schema.BacktestResult{
		ConfigHash: "",
		Stats: schema.BacktestStats{
			InitialEquity: config.InitialCash,
			FinalEquity:   config.InitialCash + profit,
			TotalReturn:   profit / config.InitialCash,
			NumTrades:     2,
		},
		Trades: []schema.Fill{
			{Timestamp: first.Timestamp, Symbol: first.Symbol, Side: schema.SideBuy, Quantity: quantity, Price: first.Close},
			{Timestamp: last.Timestamp, Symbol: last.Symbol, Side: schema.SideSell, Quantity: quantity, Price: last.Close},
		},
		ExecutionTimestamp: last.Timestamp,
	}
	return computed, nil
}

type fixture struct {
	store      *object.Store
	resultHash object.Hash
	configHash object.Hash
}

// buildFixture commits a full lineage chain (dataset, strategy,
// config, result computed by deterministicEngine) into a fresh store.
func buildFixture(t *testing.T) fixture {
	t.Helper()

	store, err := object.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	dataset := schema.NewDataset(schema.Dataset{
		Name: "spy-two-days",
		Bars: []schema.Bar{
			{Timestamp: 1704153600, Symbol: "SPY", Open: 475, High: 478, Low: 474, Close: 476, Volume: 1e6},
			{Timestamp: 1704240000, Symbol: "SPY", Open: 476, High: 480, Low: 475, Close: 479, Volume: 1e6},
		},
		Metadata: schema.DatasetMetadata{
			Symbols:          []string{"SPY"},
			StartTimestamp:   1704153600,
			EndTimestamp:     1704240000,
			BarCount:         2,
			Provider:         "polygon",
			VenueClass:       "us_equities",
			TimezoneCalendar: "America/New_York:XNYS",
			AdjustmentPolicy: "split_adjusted",
			FidelityTier:     schema.FidelityTier1Bar,
			LatencyClass:     schema.LatencyEndOfDay,
		},
	})
	datasetHash := mustPut(t, store, &dataset)

	strategy := schema.NewStrategySpec(schema.StrategySpec{
		Name:         "buy-and-hold",
		StrategyType: "passive",
	})
	strategyHash := mustPut(t, store, &strategy)

	config := schema.NewBacktestConfig(schema.BacktestConfig{
		InitialCash:  100_000,
		Seed:         7,
		StrategyHash: object.FormatHash(strategyHash),
		DatasetHash:  object.FormatHash(datasetHash),
		CostModel:    schema.CostModelConfig{ModelType: "zero"},
	})
	configHash := mustPut(t, store, &config)

	result, err := deterministicEngine(context.Background(),
		config.BacktestConfig, dataset.Dataset, strategy.StrategySpec)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	result.ConfigHash = object.FormatHash(configHash)
	resultArtifact := schema.NewBacktestResult(*result)
	resultHash := mustPut(t, store, &resultArtifact)

	return fixture{store: store, resultHash: resultHash, configHash: configHash}
}

func mustPut(t *testing.T, store *object.Store, artifact *schema.Artifact) object.Hash {
	t.Helper()
	if err := artifact.Validate(); err != nil {
		t.Fatalf("fixture artifact invalid: %v", err)
	}
	_, raw, err := object.HashArtifact(artifact)
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}
	hash, err := store.Put(raw)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return hash
}

// engineWithConfigHash wraps deterministicEngine so the recomputed
// result carries the same config reference the stored one does.
func engineWithConfigHash(configHash object.Hash) Compute {
	return func(ctx context.Context, config *schema.BacktestConfig, dataset *schema.Dataset, strategy *schema.StrategySpec) (*schema.BacktestResult, error) {
		result, err := deterministicEngine(ctx, config, dataset, strategy)
		if err != nil {
			return nil, err
		}
		result.ConfigHash = object.FormatHash(configHash)
		return result, nil
	}
}

func TestReplayVerified(t *testing.T) {
	fx := buildFixture(t)
	verifier := &Verifier{Objects: fx.store}

	outcome, err := verifier.Replay(context.Background(), fx.resultHash,
		engineWithConfigHash(fx.configHash))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.Status != StatusVerified {
		t.Fatalf("Status = %s, want verified (diff: %v)", outcome.Status, outcome.Diff)
	}
	if outcome.ComputedHash != fx.resultHash {
		t.Error("verified outcome has mismatched hashes")
	}
	if len(outcome.Diff) != 0 {
		t.Errorf("verified outcome carries a diff: %v", outcome.Diff)
	}
}

func TestReplayDiverged(t *testing.T) {
	fx := buildFixture(t)
	verifier := &Verifier{Objects: fx.store}

	// An engine whose cost handling drifted: every stat matches
	// except final equity.
	drifted := func(ctx context.Context, config *schema.BacktestConfig, dataset *schema.Dataset, strategy *schema.StrategySpec) (*schema.BacktestResult, error) {
		result, err := engineWithConfigHash(fx.configHash)(ctx, config, dataset, strategy)
		if err != nil {
			return nil, err
		}
		result.Stats.FinalEquity += 0.01
		return result, nil
	}

	outcome, err := verifier.Replay(context.Background(), fx.resultHash, drifted)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.Status != StatusDiverged {
		t.Fatalf("Status = %s, want diverged", outcome.Status)
	}
	if outcome.ComputedHash == fx.resultHash {
		t.Error("diverged outcome reports identical hashes")
	}
	if len(outcome.Diff) != 1 {
		t.Fatalf("Diff = %v, want exactly the drifted field", outcome.Diff)
	}
	if outcome.Diff[0].Path != "backtest_result.stats.final_equity" {
		t.Errorf("diff path = %q", outcome.Diff[0].Path)
	}
}

func TestReplayMissingResult(t *testing.T) {
	store, err := object.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	verifier := &Verifier{Objects: store}

	missing := object.HashBytes([]byte("never committed"))
	_, err = verifier.Replay(context.Background(), missing, engineWithConfigHash(missing))

	var missingErr *MissingLineageError
	if !errors.As(err, &missingErr) {
		t.Fatalf("Replay = %v, want MissingLineageError", err)
	}
	if missingErr.Hash != missing {
		t.Errorf("MissingLineageError.Hash = %s, want %s", missingErr.Hash, missing)
	}
}

func TestReplayMissingAncestor(t *testing.T) {
	store, err := object.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	// A result whose config was never stored: a dangling reference.
	danglingConfig := object.HashBytes([]byte("dangling config"))
	resultArtifact := schema.NewBacktestResult(schema.BacktestResult{
		ConfigHash: object.FormatHash(danglingConfig),
	})
	resultHash := mustPut(t, store, &resultArtifact)

	verifier := &Verifier{Objects: store}
	_, err = verifier.Replay(context.Background(), resultHash,
		engineWithConfigHash(danglingConfig))

	var missingErr *MissingLineageError
	if !errors.As(err, &missingErr) {
		t.Fatalf("Replay = %v, want MissingLineageError", err)
	}
	if missingErr.Hash != danglingConfig {
		t.Errorf("MissingLineageError.Hash = %s, want the config hash", missingErr.Hash)
	}
}

func TestReplayRejectsWrongKind(t *testing.T) {
	fx := buildFixture(t)
	verifier := &Verifier{Objects: fx.store}

	// Pointing replay at the config instead of a result must fail
	// loudly, not misinterpret the payload.
	_, err := verifier.Replay(context.Background(), fx.configHash,
		engineWithConfigHash(fx.configHash))
	if err == nil {
		t.Fatal("Replay accepted a non-result artifact")
	}
}
