// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package index maintains the searchable SQLite view of the lineage
// log: one row per committed artifact plus side tables for regime
// tags and policy keys.
//
// The index is derived state. It can be deleted and rebuilt from the
// log and the object store without losing anything, which is exactly
// what the repository does when it finds the index behind the log
// head on open.
package index
