// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock access for testability.
// Production code injects Real(); tests inject Fake() and control
// time explicitly, which keeps commit timestamps deterministic in
// tests without sleeping.
package clock

import "time"

// Clock provides the current time. Every production function that
// would call time.Now should accept a Clock (or be a method on a
// struct with a Clock field) instead of calling the time package
// directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Real returns a Clock backed by the system clock.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
