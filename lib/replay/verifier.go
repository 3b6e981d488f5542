// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridian-quant/meridian/lib/codec"
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/schema"
)

// Compute runs a backtest engine over fully resolved inputs and
// returns the result it produces. Implementations must be
// deterministic: same config, dataset, and strategy, same result,
// byte for byte. The verifier treats any deviation as divergence, not
// as noise to retry through.
type Compute func(ctx context.Context, config *schema.BacktestConfig, dataset *schema.Dataset, strategy *schema.StrategySpec) (*schema.BacktestResult, error)

// Status is the outcome of a replay.
type Status string

const (
	// StatusVerified means the recomputed result hashed identically
	// to the stored one.
	StatusVerified Status = "verified"

	// StatusDiverged means recomputation produced different
	// canonical bytes. One divergence is conclusive.
	StatusDiverged Status = "diverged"
)

// Outcome reports what a replay found.
type Outcome struct {
	Status Status

	// ResultHash is the stored result that was replayed.
	ResultHash object.Hash

	// ComputedHash is the hash of the recomputed result. Equals
	// ResultHash exactly when Status is StatusVerified.
	ComputedHash object.Hash

	// Diff lists the differing fields when diverged, empty otherwise.
	Diff []schema.FieldDiff
}

// MissingLineageError is returned when an artifact the replay depends
// on (the result itself, its config, or the config's inputs) is not
// in the object store. The result's provenance claim cannot be
// checked either way.
type MissingLineageError struct {
	Hash object.Hash
}

func (e *MissingLineageError) Error() string {
	return fmt.Sprintf("replay: lineage artifact %s is not stored", object.FormatRef(e.Hash))
}

// Verifier replays stored backtest results against a deterministic
// engine and reports whether the stored bytes are reproducible.
type Verifier struct {
	// Objects is the store holding the result and its lineage.
	Objects *object.Store

	// Logger receives replay outcomes. Nil discards.
	Logger *slog.Logger
}

// Replay loads the result at resultHash, walks its lineage references
// (config, then the config's dataset and strategy), recomputes the
// result with compute, and compares canonical hashes.
//
// A missing artifact anywhere along the chain returns a
// *MissingLineageError. A hash mismatch is not an error: it returns a
// StatusDiverged outcome with a field diff.
func (v *Verifier) Replay(ctx context.Context, resultHash object.Hash, compute Compute) (*Outcome, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	resultArtifact, err := v.loadArtifact(resultHash, schema.KindBacktestResult)
	if err != nil {
		return nil, err
	}
	result := resultArtifact.BacktestResult

	configHash, err := object.ParseHash(result.ConfigHash)
	if err != nil {
		return nil, fmt.Errorf("replay: result %s has malformed config reference: %w",
			object.FormatRef(resultHash), err)
	}
	configArtifact, err := v.loadArtifact(configHash, schema.KindBacktestConfig)
	if err != nil {
		return nil, err
	}
	config := configArtifact.BacktestConfig

	datasetHash, err := object.ParseHash(config.DatasetHash)
	if err != nil {
		return nil, fmt.Errorf("replay: config %s has malformed dataset reference: %w",
			object.FormatRef(configHash), err)
	}
	datasetArtifact, err := v.loadArtifact(datasetHash, schema.KindDataset)
	if err != nil {
		return nil, err
	}

	strategyHash, err := object.ParseHash(config.StrategyHash)
	if err != nil {
		return nil, fmt.Errorf("replay: config %s has malformed strategy reference: %w",
			object.FormatRef(configHash), err)
	}
	strategyArtifact, err := v.loadArtifact(strategyHash, schema.KindStrategySpec)
	if err != nil {
		return nil, err
	}

	computed, err := compute(ctx, config, datasetArtifact.Dataset, strategyArtifact.StrategySpec)
	if err != nil {
		return nil, fmt.Errorf("replay: recomputing result %s: %w",
			object.FormatRef(resultHash), err)
	}

	computedArtifact := schema.NewBacktestResult(*computed)
	computedHash, _, err := object.HashArtifact(&computedArtifact)
	if err != nil {
		return nil, fmt.Errorf("replay: hashing recomputed result: %w", err)
	}

	if computedHash == resultHash {
		logger.Info("replay verified",
			"ref", object.FormatRef(resultHash))
		return &Outcome{
			Status:       StatusVerified,
			ResultHash:   resultHash,
			ComputedHash: computedHash,
		}, nil
	}

	diff, err := schema.Diff(resultArtifact, &computedArtifact)
	if err != nil {
		return nil, fmt.Errorf("replay: diffing diverged result: %w", err)
	}

	logger.Warn("replay diverged",
		"ref", object.FormatRef(resultHash),
		"computed_ref", object.FormatRef(computedHash),
		"differing_fields", len(diff))

	return &Outcome{
		Status:       StatusDiverged,
		ResultHash:   resultHash,
		ComputedHash: computedHash,
		Diff:         diff,
	}, nil
}

// loadArtifact fetches, decodes, and validates one lineage artifact,
// checking it is the expected kind.
func (v *Verifier) loadArtifact(hash object.Hash, want schema.Kind) (*schema.Artifact, error) {
	raw, err := v.Objects.Get(hash)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return nil, &MissingLineageError{Hash: hash}
		}
		return nil, fmt.Errorf("replay: loading %s: %w", object.FormatRef(hash), err)
	}

	var artifact schema.Artifact
	if err := codec.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("replay: decoding %s: %w", object.FormatRef(hash), err)
	}
	if artifact.Kind != want {
		return nil, fmt.Errorf("replay: %s is a %s, want %s",
			object.FormatRef(hash), artifact.Kind, want)
	}
	return &artifact, nil
}
