// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a shared SQLite connection pool with
// standard pragmas.
//
// It wraps zombiezen.com/go/sqlite with the defaults the metadata
// index relies on: WAL journal mode for concurrent readers, NORMAL
// synchronous (the index is a derived view of the lineage log, so
// process-crash durability is enough; the log is the source of
// truth), a busy timeout instead of immediate SQLITE_BUSY, and
// in-memory temp storage.
//
// Callers [Pool.Take] a connection, do their work, and [Pool.Put] it
// back. Connections are NOT safe for concurrent use. The package is
// intentionally thin: it applies pragmas and exposes the zombiezen
// types directly, and consumers write SQL with sqlitex.Execute and
// sqlitex.ImmediateTransaction rather than through a query builder.
package sqlitepool
