// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Meridian's canonical serialization: CBOR
// (RFC 8949) with Core Deterministic Encoding.
//
// Every artifact is hashed over its canonical CBOR bytes, so the
// encoder configuration here is load-bearing for the whole store:
// map keys are sorted, integers use their smallest encoding, and
// indefinite-length items are forbidden. Two semantically identical
// artifact values always produce byte-identical output, no matter how
// their in-memory fields or maps were assembled, and therefore the
// same content hash.
//
// The decoder accepts standard CBOR and ignores unknown fields so
// that old binaries can read objects written by newer ones.
package codec
