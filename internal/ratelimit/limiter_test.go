package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func testClock(start time.Time) (func() time.Time, func(d time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestTryActionAllowsUpToMax(t *testing.T) {
	clock, _ := testClock(time.Unix(1700000000, 0))
	l := NewWithClock(10, time.Minute, clock)

	for i := 0; i < 10; i++ {
		if err := l.TryAction("session-1"); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i+1, err)
		}
	}

	err := l.TryAction("session-1")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("11th attempt: want LimitError, got %v", err)
	}
	if le.RetryAfterSeconds() != 60 {
		t.Errorf("RetryAfterSeconds = %d, want 60", le.RetryAfterSeconds())
	}
}

func TestWindowSlides(t *testing.T) {
	clock, advance := testClock(time.Unix(1700000000, 0))
	l := NewWithClock(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		if err := l.TryAction("k"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		advance(10 * time.Second)
	}
	// 30s in: window still holds 3.
	if err := l.TryAction("k"); err == nil {
		t.Fatal("expected limit inside window")
	}

	// 61s after the first record: oldest falls out, one slot frees up.
	advance(31 * time.Second)
	if err := l.TryAction("k"); err != nil {
		t.Fatalf("expected slot after window slide: %v", err)
	}
	if err := l.TryAction("k"); err == nil {
		t.Fatal("expected limit again after refill")
	}
}

func TestCheckDoesNotRecord(t *testing.T) {
	clock, _ := testClock(time.Unix(1700000000, 0))
	l := NewWithClock(2, time.Minute, clock)

	for i := 0; i < 5; i++ {
		res := l.Check("k")
		if res.Limited {
			t.Fatalf("check %d limited without any records", i+1)
		}
		if res.Remaining != 2 {
			t.Fatalf("check %d remaining = %d, want 2", i+1, res.Remaining)
		}
	}
}

func TestRetryAfterTracksOldestTimestamp(t *testing.T) {
	clock, advance := testClock(time.Unix(1700000000, 0))
	l := NewWithClock(2, time.Minute, clock)

	l.Record("k")
	advance(20 * time.Second)
	l.Record("k")
	advance(10 * time.Second)

	res := l.Check("k")
	if !res.Limited {
		t.Fatal("expected limited")
	}
	// Oldest record was 30s ago in a 60s window.
	if res.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %s, want 30s", res.RetryAfter)
	}
}

func TestUnknownKeyHasFullQuota(t *testing.T) {
	l := New(5, time.Minute)
	res := l.Check("never-seen")
	if res.Limited || res.Remaining != 5 {
		t.Errorf("unknown key: got %+v", res)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock, _ := testClock(time.Unix(1700000000, 0))
	l := NewWithClock(1, time.Minute, clock)

	if err := l.TryAction("a"); err != nil {
		t.Fatal(err)
	}
	if err := l.TryAction("a"); err == nil {
		t.Fatal("expected a limited")
	}
	if err := l.TryAction("b"); err != nil {
		t.Fatalf("b should be unaffected: %v", err)
	}
}

func TestAmortizedSweepDropsStaleKeys(t *testing.T) {
	clock, advance := testClock(time.Unix(1700000000, 0))
	l := NewWithClock(5, time.Minute, clock)

	l.Record("stale-1")
	l.Record("stale-2")
	advance(2 * time.Minute)

	// The sweep only runs every 100th check; the stale keys survive until then.
	for i := 0; i < sweepEvery; i++ {
		l.Check("hot")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries["stale-1"]; ok {
		t.Error("stale-1 not swept")
	}
	if _, ok := l.entries["stale-2"]; ok {
		t.Error("stale-2 not swept")
	}
}
