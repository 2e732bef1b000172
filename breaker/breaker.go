// Package breaker isolates failing tool families. Each family gets its own
// circuit: consecutive failures open it, an open circuit rejects calls until
// a cooldown elapses, then a single probe call decides whether to close it
// again or re-open.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit state for one family.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Admission is the outcome of asking a circuit for permission to call.
type Admission int

const (
	// Permitted admits the call normally.
	Permitted Admission = iota
	// Trial admits the call as the single half-open probe. The caller must
	// report the outcome via RecordSuccess or RecordFailure.
	Trial
	// Rejected refuses the call without touching the upstream.
	Rejected
)

// Breaker is one family's circuit. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	openAfter int
	openFor   time.Duration
	now       func() time.Time

	state        State
	failures     int
	openedAt     time.Time
	trialPending bool
}

// New returns a closed Breaker that opens after openAfter consecutive
// failures and stays open for openFor.
func New(openAfter int, openFor time.Duration) *Breaker {
	return &Breaker{
		openAfter: openAfter,
		openFor:   openFor,
		now:       time.Now,
		state:     Closed,
	}
}

// TryAcquire asks the circuit for permission to place a call. In the open
// state it transitions to half-open once the cooldown has elapsed and admits
// exactly one probe; every other caller is rejected until the probe reports.
func (b *Breaker) TryAcquire() Admission {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return Permitted
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return Rejected
		}
		b.state = HalfOpen
		b.trialPending = true
		return Trial
	case HalfOpen:
		if b.trialPending {
			return Rejected
		}
		b.trialPending = true
		return Trial
	}
	return Rejected
}

// RecordSuccess reports a successful call. A half-open probe success closes
// the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == HalfOpen {
		b.state = Closed
		b.trialPending = false
	}
}

// RecordFailure reports a failed call. A half-open probe failure re-opens
// the circuit immediately; in the closed state the circuit opens once the
// consecutive failure threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.open()
	case Closed:
		b.failures++
		if b.failures >= b.openAfter {
			b.open()
		}
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.failures = 0
	b.openedAt = b.now()
	b.trialPending = false
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry holds one Breaker per tool family, created on demand with shared
// thresholds.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	openAfter int
	openFor   time.Duration
}

// NewRegistry returns a Registry whose breakers use the given thresholds.
func NewRegistry(openAfter int, openFor time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		openAfter: openAfter,
		openFor:   openFor,
	}
}

// Get returns the breaker for family, creating it if needed.
func (r *Registry) Get(family string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[family]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[family]; ok {
		return b
	}
	b = New(r.openAfter, r.openFor)
	r.breakers[family] = b
	return b
}
