// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command-dispatch framework behind the
// meridian binary: a command tree with pflag flag sets, structured
// help output, and nothing else.
package cli
