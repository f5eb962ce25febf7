package metricstore

import (
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned without a network call while the breaker is
// open.
var ErrUnavailable = errors.New("metricstore: store unavailable, retry later")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker stops hammering the store after consecutive failures. Only
// transport errors and 5xx answers count: a 4xx is the data's fault.
type Breaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	now          func() time.Time
}

// NewBreaker opens after threshold consecutive failures and lets one probe
// through once resetTimeout has elapsed.
func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{threshold: threshold, resetTimeout: resetTimeout, now: time.Now}
}

// allow reports whether a call may proceed. In half-open state a single
// probe is admitted; concurrent callers are rejected until it reports.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return false
		}
		b.state = breakerHalfOpen
		return true
	case breakerHalfOpen:
		return false
	default:
		return true
	}
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !failed {
		b.state = breakerClosed
		b.failures = 0
		return
	}
	b.lastFailure = b.now()
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

// release ends a call without a verdict on the store. A half-open probe
// gives its slot back so the next call may probe.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
	}
}

// Open reports whether calls are currently being rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen && b.now().Sub(b.lastFailure) < b.resetTimeout
}
