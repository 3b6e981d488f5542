// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package lineage implements the append-only commit log that records
// how every artifact entered the store and what it was derived from.
//
// The log is the system of record. Each record is length-prefixed and
// CRC-32C checksummed, and appends fsync before acknowledging, so a
// crash can lose at most the in-flight record and recovery on open
// trims exactly that. The metadata index in lib/index is a derived
// view of this log and is rebuilt from it when the two disagree.
package lineage
