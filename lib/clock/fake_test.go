// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowIsStable(t *testing.T) {
	initial := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(initial)
	if !c.Now().Equal(initial) {
		t.Fatalf("Now = %v, want %v", c.Now(), initial)
	}
	if !c.Now().Equal(c.Now()) {
		t.Fatal("Now should not move without Advance")
	}
}

func TestFakeAdvanceFiresWaiters(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("waiter fired before Advance")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("waiter did not fire after Advance")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should receive immediately")
	}
}

func TestUTCStamp(t *testing.T) {
	stamp := UTCStamp(time.Date(2026, 3, 4, 5, 6, 7, 999, time.FixedZone("X", 3600)))
	if stamp != "2026-03-04T04:06:07Z" {
		t.Errorf("UTCStamp = %q", stamp)
	}
}
