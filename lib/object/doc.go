// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package object implements content-addressed storage for canonical
// artifact bytes: BLAKE3 keyed hashing for identity, a sharded
// write-once filesystem layout, and transparent per-object
// compression.
//
// Identity is always computed over uncompressed canonical bytes, so
// the compression choice is a storage detail that can change without
// invalidating any hash. Every read re-hashes the decoded payload
// before returning it.
package object
