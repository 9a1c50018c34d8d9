package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Result describes the outcome of a Check call.
type Result struct {
	Limited    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a sliding-window rate limiter. Each key keeps the timestamps of
// its recent actions; timestamps older than the window are pruned lazily on
// Check rather than by a background timer, so the limiter stays correct even
// when nothing calls it for a long time.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time

	maxAttempts int
	window      time.Duration

	// checks counts Check calls since the last full sweep. A sweep over every
	// key runs once per sweepEvery checks to keep stale keys from accumulating.
	checks int

	now func() time.Time
}

const sweepEvery = 100

func New(maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{
		entries:     make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock(maxAttempts int, window time.Duration, now func() time.Time) *Limiter {
	l := New(maxAttempts, window)
	l.now = now
	return l
}

// Check reports whether key is currently limited. An unknown key counts as
// zero prior attempts.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	l.checks++
	if l.checks >= sweepEvery {
		l.checks = 0
		l.sweepLocked(now)
	}

	recent := l.pruneLocked(key, now)
	if len(recent) >= l.maxAttempts {
		oldest := recent[0]
		return Result{
			Limited:    true,
			Remaining:  0,
			RetryAfter: l.window - now.Sub(oldest),
		}
	}
	return Result{
		Limited:   false,
		Remaining: l.maxAttempts - len(recent),
	}
}

// Record appends an action timestamp for key.
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = append(l.entries[key], l.now())
}

// TryAction checks and records in one locked step. It returns a LimitError
// when the key is over its quota, nil otherwise.
func (l *Limiter) TryAction(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.pruneLocked(key, now)
	if len(recent) >= l.maxAttempts {
		return &LimitError{
			Key:        key,
			RetryAfter: l.window - now.Sub(recent[0]),
		}
	}
	l.entries[key] = append(recent, now)
	return nil
}

// pruneLocked drops timestamps older than the window for one key and returns
// what remains. Caller holds l.mu.
func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	ts, ok := l.entries[key]
	if !ok {
		return nil
	}
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		ts = ts[i:]
		if len(ts) == 0 {
			delete(l.entries, key)
		} else {
			l.entries[key] = ts
		}
	}
	return ts
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key := range l.entries {
		l.pruneLocked(key, now)
	}
}

// LimitError is returned by TryAction when a key exceeds its quota.
type LimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Key, e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds up for a Retry-After header value.
func (e *LimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
