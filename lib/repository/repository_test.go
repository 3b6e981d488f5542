// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-quant/meridian/lib/clock"
	"github.com/meridian-quant/meridian/lib/index"
	"github.com/meridian-quant/meridian/lib/lineage"
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/replay"
	"github.com/meridian-quant/meridian/lib/schema"
)

func openTestRepo(t *testing.T, root string) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), Options{
		Root:  root,
		Clock: clock.Fake(time.Unix(1_700_000_000, 0)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		// Some tests close the repository themselves; a second Close
		// panics in the sqlite pool, so swallow it here.
		defer func() { _ = recover() }()
		repo.Close()
	})
	return repo
}

func testDataset() schema.Artifact {
	return schema.NewDataset(schema.Dataset{
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
}

func testStrategy() schema.Artifact {
	return schema.NewStrategySpec(schema.StrategySpec{
		Name:         "momo-20d",
		StrategyType: "momentum",
		Parameters:   map[string]any{"lookback": int64(20)},
		Goal:         "trend capture",
		RegimeTags:   []string{"trending"},
	})
}

// commitChain commits the canonical four-artifact chain and returns
// the hashes in commit order: dataset, strategy, config, result.
func commitChain(t *testing.T, repo *Repository) [4]object.Hash {
	t.Helper()
	ctx := context.Background()

	dataset := testDataset()
	datasetCommit, err := repo.Commit(ctx, &dataset, nil, "raw bars")
	if err != nil {
		t.Fatalf("Commit dataset: %v", err)
	}

	strategy := testStrategy()
	strategyCommit, err := repo.Commit(ctx, &strategy, nil, "candidate strategy")
	if err != nil {
		t.Fatalf("Commit strategy: %v", err)
	}

	config := schema.NewBacktestConfig(schema.BacktestConfig{
		InitialCash:  100_000,
		Seed:         7,
		StrategyHash: object.FormatHash(strategyCommit.Hash),
		DatasetHash:  object.FormatHash(datasetCommit.Hash),
		CostModel:    schema.CostModelConfig{ModelType: "zero"},
	})
	configCommit, err := repo.Commit(ctx, &config,
		[]object.Hash{strategyCommit.Hash, datasetCommit.Hash}, "run setup")
	if err != nil {
		t.Fatalf("Commit config: %v", err)
	}

	result := schema.NewBacktestResult(schema.BacktestResult{
		ConfigHash: object.FormatHash(configCommit.Hash),
		Stats: schema.BacktestStats{
			InitialEquity: 100_000,
			FinalEquity:   100_300,
			TotalReturn:   0.003,
			NumTrades:     2,
		},
		ExecutionTimestamp: 1704240000,
	})
	resultCommit, err := repo.Commit(ctx, &result,
		[]object.Hash{configCommit.Hash}, "first run")
	if err != nil {
		t.Fatalf("Commit result: %v", err)
	}

	return [4]object.Hash{
		datasetCommit.Hash, strategyCommit.Hash, configCommit.Hash, resultCommit.Hash,
	}
}

func TestCommitGetRoundTrip(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())

	dataset := testDataset()
	commit, err := repo.Commit(context.Background(), &dataset, nil, "raw bars")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if commit.Sequence != 1 {
		t.Errorf("first commit sequence = %d, want 1", commit.Sequence)
	}

	got, gotCommit, err := repo.Get(commit.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != schema.KindDataset || got.Dataset.Name != "spy-two-days" {
		t.Errorf("Get returned wrong artifact: %+v", got)
	}
	if gotCommit.Sequence != commit.Sequence || gotCommit.Message != "raw bars" {
		t.Errorf("Get returned wrong commit: %+v", gotCommit)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())
	ctx := context.Background()

	dataset := testDataset()
	first, err := repo.Commit(ctx, &dataset, nil, "raw bars")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	again := testDataset()
	second, err := repo.Commit(ctx, &again, nil, "ignored on repeat")
	if err != nil {
		t.Fatalf("repeat Commit: %v", err)
	}

	if second.Hash != first.Hash || second.Sequence != first.Sequence {
		t.Errorf("repeat commit = %+v, want the original %+v", second, first)
	}
	if second.Message != "raw bars" {
		t.Errorf("repeat commit message = %q, original should win", second.Message)
	}
	if head, _ := repo.Head(); head.Sequence != 1 {
		t.Errorf("head sequence = %d after repeat commit, want 1", head.Sequence)
	}
}

func TestCommitRejectsInvalidArtifact(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())

	bad := schema.Artifact{Kind: schema.KindDataset}
	_, err := repo.Commit(context.Background(), &bad, nil, "")
	if !errors.Is(err, schema.ErrMalformed) {
		t.Fatalf("Commit invalid = %v, want ErrMalformed", err)
	}
	if _, ok := repo.Head(); ok {
		t.Error("rejected commit still reached the log")
	}
}

func TestCommitRejectsUnknownParent(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())

	dataset := testDataset()
	_, err := repo.Commit(context.Background(), &dataset,
		[]object.Hash{object.HashBytes([]byte("ghost"))}, "")
	if !errors.Is(err, lineage.ErrUnknownParent) {
		t.Fatalf("Commit = %v, want ErrUnknownParent", err)
	}
}

func TestHistoryAcrossChain(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())
	hashes := commitChain(t, repo)

	history, err := repo.History(hashes[3])
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}

	// Newest first: result, config, strategy, dataset.
	want := []object.Hash{hashes[3], hashes[2], hashes[1], hashes[0]}
	for i, commit := range history {
		if commit.Hash != want[i] {
			t.Errorf("history[%d] = %s, want %s",
				i, object.FormatRef(commit.Hash), object.FormatRef(want[i]))
		}
	}
}

func TestSearchAndMetadata(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())
	hashes := commitChain(t, repo)
	ctx := context.Background()

	specs, err := repo.Search(ctx, index.Query{
		Kind:       schema.KindStrategySpec,
		RegimeTags: []string{"trending"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(specs) != 1 || specs[0].Hash != hashes[1] {
		t.Fatalf("search = %v, want the strategy commit", specs)
	}
	if specs[0].Goal != "trend capture" {
		t.Errorf("indexed goal = %q", specs[0].Goal)
	}

	meta, err := repo.Metadata(ctx, hashes[0])
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Provider != "polygon" || meta.Kind != schema.KindDataset {
		t.Errorf("dataset metadata = %+v", meta)
	}
}

func TestDiffCommittedArtifacts(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())
	ctx := context.Background()

	original := testStrategy()
	originalCommit, err := repo.Commit(ctx, &original, nil, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tuned := testStrategy()
	tuned.StrategySpec.Parameters["lookback"] = int64(50)
	tunedCommit, err := repo.Commit(ctx, &tuned, nil, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	diffs, err := repo.Diff(originalCommit.Hash, tunedCommit.Hash)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("Diff = %v, want one entry", diffs)
	}
	if diffs[0].Path != "strategy_spec.parameters.lookback" {
		t.Errorf("diff path = %q", diffs[0].Path)
	}
}

func TestReopenPreservesEverything(t *testing.T) {
	root := t.TempDir()

	repo := openTestRepo(t, root)
	hashes := commitChain(t, repo)
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestRepo(t, root)
	if head, ok := reopened.Head(); !ok || head.Sequence != 4 {
		t.Fatalf("reopened head = %+v, %v", head, ok)
	}

	artifact, _, err := reopened.Get(hashes[3])
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if artifact.Kind != schema.KindBacktestResult {
		t.Errorf("reopened artifact kind = %s", artifact.Kind)
	}
}

func TestOpenRebuildsDeletedIndex(t *testing.T) {
	root := t.TempDir()

	repo := openTestRepo(t, root)
	hashes := commitChain(t, repo)
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Lose the derived view entirely.
	if err := os.Remove(filepath.Join(root, indexFile)); err != nil {
		t.Fatalf("removing index: %v", err)
	}

	reopened := openTestRepo(t, root)
	specs, err := reopened.Search(context.Background(), index.Query{
		Kind: schema.KindStrategySpec,
	})
	if err != nil {
		t.Fatalf("Search after rebuild: %v", err)
	}
	if len(specs) != 1 || specs[0].Hash != hashes[1] {
		t.Fatalf("rebuilt search = %v, want the strategy commit", specs)
	}
	if len(specs[0].RegimeTags) != 1 || specs[0].RegimeTags[0] != "trending" {
		t.Errorf("rebuilt tags = %v", specs[0].RegimeTags)
	}
}

func TestReplayThroughRepository(t *testing.T) {
	repo := openTestRepo(t, t.TempDir())
	ctx := context.Background()

	dataset := testDataset()
	datasetCommit, err := repo.Commit(ctx, &dataset, nil, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	strategy := testStrategy()
	strategyCommit, err := repo.Commit(ctx, &strategy, nil, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	config := schema.NewBacktestConfig(schema.BacktestConfig{
		InitialCash:  100_000,
		StrategyHash: object.FormatHash(strategyCommit.Hash),
		DatasetHash:  object.FormatHash(datasetCommit.Hash),
		CostModel:    schema.CostModelConfig{ModelType: "zero"},
	})
	configCommit, err := repo.Commit(ctx, &config,
		[]object.Hash{strategyCommit.Hash, datasetCommit.Hash}, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	engine := func(_ context.Context, cfg *schema.BacktestConfig, data *schema.Dataset, _ *schema.StrategySpec) (*schema.BacktestResult, error) {
		last := data.Bars[len(data.Bars)-1]
		return &schema.BacktestResult{
			ConfigHash: object.FormatHash(configCommit.Hash),
			Stats: schema.BacktestStats{
				InitialEquity: cfg.InitialCash,
				FinalEquity:   cfg.InitialCash + last.Close,
			},
			ExecutionTimestamp: last.Timestamp,
		}, nil
	}

	result, err := engine(ctx, config.BacktestConfig, dataset.Dataset, strategy.StrategySpec)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	resultArtifact := schema.NewBacktestResult(*result)
	resultCommit, err := repo.Commit(ctx, &resultArtifact,
		[]object.Hash{configCommit.Hash}, "")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	outcome, err := repo.Replay(ctx, resultCommit.Hash, engine)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.Status != replay.StatusVerified {
		t.Fatalf("Replay status = %s, want verified (diff: %v)",
			outcome.Status, outcome.Diff)
	}
}

func TestOpenRejectsFutureFormatVersion(t *testing.T) {
	root := t.TempDir()
	content := "version: 99\ncreated_at: \"2026-01-01T00:00:00Z\"\n"
	if err := os.WriteFile(filepath.Join(root, configFile), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	_, err := Open(context.Background(), Options{Root: root})
	if err == nil {
		t.Fatal("Open accepted an unsupported format version")
	}
}
