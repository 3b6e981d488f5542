// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay verifies that stored backtest results are
// reproducible. Given a result's hash and a deterministic engine, it
// resolves the result's full lineage (config, dataset, strategy) from
// the object store, reruns the engine, and compares canonical content
// hashes.
//
// Replay is an equality test on bytes, not on meaning: a single
// differing field is a divergence, and a divergence is conclusive.
// The verifier never retries and never decides whether a divergence
// is acceptable; it reports the field-level diff and leaves judgment
// to the caller.
package replay
