package perf

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/barter-engine/internal/engine"
)

// BreakerState enumerates the circuit breaker's three states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker is a per-operation-id circuit breaker. It opens after
// `threshold` consecutive failures, stays open for `timeout`, then moves
// to half-open. While half-open every call is allowed through (the
// number of probes is not limited); the next recorded success closes
// the breaker and the next recorded failure reopens it.
type Breaker struct {
	mu            sync.Mutex
	operationID   string
	threshold     int
	timeout       time.Duration
	state         BreakerState
	consecutive   int
	openedAt      time.Time
	tripID        string
}

// NewBreaker creates a breaker for the named operation.
func NewBreaker(operationID string, threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{operationID: operationID, threshold: threshold, timeout: timeout, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning open->half-open
// once the timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.timeout {
			b.state = StateHalfOpen
			return nil
		}
		return engine.ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the breaker (from closed or half-open) and resets
// the consecutive-failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	if b.state != StateClosed {
		log.Printf("[CircuitBreaker] %s closed after successful half-open probe", b.operationID)
	}
	b.state = StateClosed
}

// RecordFailure increments the consecutive-failure counter and opens the
// breaker once the threshold is reached (or immediately on a half-open
// probe failure).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	if b.state == StateHalfOpen || b.consecutive >= b.threshold {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.tripID = uuid.NewString()
		log.Printf("[CircuitBreaker] %s opened (trip %s) after %d consecutive failures", b.operationID, b.tripID, b.consecutive)
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry holds one Breaker per operation id, created lazily.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	threshold int
	timeout   time.Duration
}

// NewRegistry creates a breaker registry using the given defaults for
// newly-created breakers.
func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), threshold: threshold, timeout: timeout}
}

// Get returns the breaker for operationID, creating it if necessary.
func (r *Registry) Get(operationID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[operationID]
	if !ok {
		b = NewBreaker(operationID, r.threshold, r.timeout)
		r.breakers[operationID] = b
	}
	return b
}
