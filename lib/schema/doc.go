// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the artifact data model: the closed tagged
// union of everything the store persists (datasets, strategy specs,
// backtest configs and results, verification reports, traces), plus
// structural validation and field-level diffing.
//
// Artifacts reference each other by hex content hash strings rather
// than typed hashes. The hash type lives in lib/object, which depends
// on this package for canonical encoding of artifacts; string
// references keep the dependency one-way.
package schema
