// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package lineage

import (
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/schema"
)

// Commit is one entry in the lineage log: an artifact joined the
// store at a point in history, derived from zero or more parents.
// Sequence numbers start at 1 and are gap-free; parents always have
// strictly lower sequence numbers than their children, so log order
// is a valid topological order of the lineage graph.
type Commit struct {
	// Sequence is the commit's position in the log.
	Sequence uint64 `json:"sequence"`

	// Hash is the content hash of the committed artifact.
	Hash object.Hash `json:"hash"`

	// Parents are the hashes of previously committed artifacts this
	// one was derived from. Empty for root artifacts such as raw
	// datasets.
	Parents []object.Hash `json:"parents,omitempty"`

	// ArtifactKind is recorded redundantly so log consumers can
	// filter without fetching object payloads.
	ArtifactKind schema.Kind `json:"artifact_kind"`

	// Message is a free-form caller-supplied annotation.
	Message string `json:"message,omitempty"`

	// Time is when the commit was appended, Unix nanoseconds.
	// Strictly increasing across the log even when the wall clock
	// stalls or steps backward.
	Time int64 `json:"time"`
}
