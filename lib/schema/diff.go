// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/meridian-quant/meridian/lib/codec"
)

// ErrIncomparable is returned by [Diff] when the two artifacts are of
// different kinds. Cross-kind diffs have no meaningful field mapping.
var ErrIncomparable = errors.New("artifacts are not comparable")

// FieldDiff is one differing field between two artifacts. Path is a
// dotted path into the canonical structure ("stats.sharpe_ratio",
// "trades.3.price"). A and B hold the canonical decoded values on
// each side; nil means the field is absent on that side.
type FieldDiff struct {
	Path string `json:"path"`
	A    any    `json:"a"`
	B    any    `json:"b"`
}

// Diff computes a structural field-level diff between two artifacts of
// the same kind. Both sides are reduced to their canonical decoded
// form first, so the comparison sees exactly the fields that
// participate in content hashing: two artifacts diff empty if and
// only if they hash identically.
func Diff(a, b *Artifact) ([]FieldDiff, error) {
	if a.Kind != b.Kind {
		return nil, fmt.Errorf("%w: kind %q vs %q", ErrIncomparable, a.Kind, b.Kind)
	}

	av, err := canonicalValue(a)
	if err != nil {
		return nil, err
	}
	bv, err := canonicalValue(b)
	if err != nil {
		return nil, err
	}

	var diffs []FieldDiff
	walkDiff("", av, bv, &diffs)
	slices.SortFunc(diffs, func(x, y FieldDiff) int {
		if x.Path < y.Path {
			return -1
		}
		if x.Path > y.Path {
			return 1
		}
		return 0
	})
	return diffs, nil
}

// canonicalValue round-trips an artifact through the canonical codec,
// producing the map-and-slice form that hashing operates on.
func canonicalValue(a *Artifact) (any, error) {
	raw, err := codec.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding artifact for diff: %w", err)
	}
	var v any
	if err := codec.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding artifact for diff: %w", err)
	}
	return v, nil
}

func walkDiff(path string, a, b any, out *[]FieldDiff) {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		keys := make(map[string]struct{}, len(am)+len(bm))
		for k := range am {
			keys[k] = struct{}{}
		}
		for k := range bm {
			keys[k] = struct{}{}
		}
		for k := range keys {
			walkDiff(joinPath(path, k), am[k], bm[k], out)
		}
		return
	}

	as, aok := a.([]any)
	bs, bok := b.([]any)
	if aok && bok {
		n := max(len(as), len(bs))
		for i := range n {
			var av, bv any
			if i < len(as) {
				av = as[i]
			}
			if i < len(bs) {
				bv = bs[i]
			}
			walkDiff(joinPath(path, strconv.Itoa(i)), av, bv, out)
		}
		return
	}

	if !reflect.DeepEqual(a, b) {
		*out = append(*out, FieldDiff{Path: path, A: a, B: b})
	}
}

func joinPath(base, elem string) string {
	if base == "" {
		return elem
	}
	return base + "." + elem
}
