// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability and determinism.
// Production code injects Real(); tests inject Fake() and advance it
// explicitly. Every Docket component that stamps an audit envelope or
// waits on an adapter timeout takes a Clock instead of calling the
// time package directly — deterministic runs depend on it.
package clock

import "time"

// Clock is the subset of time operations Docket components use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// UTCStamp formats t as the RFC3339 UTC string used in audit
// envelopes (second precision, trailing Z).
func UTCStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }
