package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBreakerOpen is returned without calling through while the breaker is open.
var ErrBreakerOpen = eris.New("resilience: backend unavailable, breaker open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker stops calling a failing backend after Threshold consecutive
// failures, then lets a single trial call through once Cooldown has passed.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration
	// Trips decides which errors count as failures. Defaults to IsTransient,
	// so a 404 for an unknown artist never opens the breaker.
	Trips    func(error) bool
	OnChange func(from, to BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments get defaults
// of 5 failures and 30 seconds.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// Call runs fn through the breaker.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.acquire(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State reports the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.clock()().Sub(b.openedAt) < b.Cooldown {
			return ErrBreakerOpen
		}
		b.setState(BreakerHalfOpen)
		b.probing = true
	case BreakerHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	trips := b.Trips
	if trips == nil {
		trips = IsTransient
	}

	if err == nil || !trips(err) {
		b.failures = 0
		b.probing = false
		if b.state != BreakerClosed {
			b.setState(BreakerClosed)
		}
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.Threshold {
		b.probing = false
		b.openedAt = b.clock()()
		if b.state != BreakerOpen {
			b.setState(BreakerOpen)
		}
	}
}

func (b *Breaker) setState(to BreakerState) {
	from := b.state
	b.state = to
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}

func (b *Breaker) clock() func() time.Time {
	if b.now == nil {
		return time.Now
	}
	return b.now
}
