// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"github.com/meridian-quant/meridian/lib/lineage"
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/schema"
)

// Entry is one indexed artifact: the commit identity plus the
// searchable fields extracted from the artifact payload. Fields that
// do not apply to the artifact's kind stay empty.
type Entry struct {
	Sequence     uint64
	Hash         object.Hash
	Kind         schema.Kind
	Name         string
	Goal         string
	StrategyType string
	Provider     string
	FidelityTier string
	CommittedAt  int64
	Message      string
	RegimeTags   []string
	PolicyKeys   []string
}

// EntryFromCommit extracts the searchable fields for one commit. The
// switch is exhaustive over artifact kinds; a new kind must decide
// here what it exposes to search.
func EntryFromCommit(commit lineage.Commit, artifact *schema.Artifact) Entry {
	entry := Entry{
		Sequence:    commit.Sequence,
		Hash:        commit.Hash,
		Kind:        commit.ArtifactKind,
		CommittedAt: commit.Time,
		Message:     commit.Message,
	}

	switch artifact.Kind {
	case schema.KindDataset:
		entry.Name = artifact.Dataset.Name
		entry.Provider = artifact.Dataset.Metadata.Provider
		entry.FidelityTier = string(artifact.Dataset.Metadata.FidelityTier)

	case schema.KindStrategySpec:
		entry.Name = artifact.StrategySpec.Name
		entry.Goal = artifact.StrategySpec.Goal
		entry.StrategyType = artifact.StrategySpec.StrategyType
		entry.RegimeTags = artifact.StrategySpec.RegimeTags

	case schema.KindBacktestConfig:
		entry.PolicyKeys = artifact.BacktestConfig.Policy.Keys()

	case schema.KindBacktestResult:
		// Results are found through their config's lineage; the
		// stats themselves are not search dimensions.

	case schema.KindCRVReport:

	case schema.KindTrace:
		entry.Name = artifact.Trace.Label
	}

	return entry
}
