// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package repository is the top-level API of the artifact store. A
// repository is a directory holding three cooperating pieces:
//
//   - objects/: content-addressed canonical artifact payloads
//   - lineage.log: the append-only commit log, the source of truth
//   - index.db: a derived SQLite view for search
//
// Committing an artifact writes all three, in that order, and every
// crash window between them is recoverable: unreferenced objects are
// harmless, and a stale index is detected and rebuilt from the log on
// the next Open.
package repository
