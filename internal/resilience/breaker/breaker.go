// Package breaker implements per-dependency circuit breakers.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/resilience/classify"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation; calls pass through.
	StateOpen                  // Failing; calls are rejected immediately.
	StateHalfOpen              // One trial call is allowed to test recovery.
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CLOSED":
		*s = StateClosed
	case "OPEN":
		*s = StateOpen
	case "HALF_OPEN":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown circuit state %q", text)
	}
	return nil
}

// ErrCircuitOpen is matched by every rejection from an open breaker.
var ErrCircuitOpen = errors.New("circuit open")

// OpenError is returned when a call is rejected without being executed.
type OpenError struct {
	Dependency domain.Dependency
	RetryAt    time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s",
		e.Dependency, e.RetryAt.Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// FaultCategory implements classify.Categorized.
func (e *OpenError) FaultCategory() classify.Category {
	return classify.CategoryServiceUnavailable
}

// Config controls when a breaker trips and how long it stays open.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultConfig trips after 5 failures and stays open for a minute.
var DefaultConfig = Config{
	FailureThreshold: 5,
	RecoveryTimeout:  60 * time.Second,
}

// Snapshot is a point-in-time copy of a breaker's record.
type Snapshot struct {
	Dependency      domain.Dependency `json:"dependency"`
	State           State             `json:"state"`
	FailureCount    int               `json:"failureCount"`
	NextAttemptTime time.Time         `json:"nextAttemptTime,omitempty"`
}

// TransitionFunc observes state changes. It is called after the breaker's
// lock is released.
type TransitionFunc func(dep domain.Dependency, from, to State)

// Breaker guards calls to a single dependency.
type Breaker struct {
	dep    domain.Dependency
	cfg    Config
	now    func() time.Time
	notify TransitionFunc

	mu              sync.Mutex
	state           State
	generation      uint64 // bumped on every state change
	failureCount    int
	nextAttemptTime time.Time
	trialInFlight   bool
}

// New creates a closed breaker for dep.
func New(dep domain.Dependency, cfg Config, now func() time.Time, notify TransitionFunc) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		dep:    dep,
		cfg:    cfg,
		now:    now,
		notify: notify,
		state:  StateClosed,
	}
}

// Dependency returns the guarded dependency.
func (b *Breaker) Dependency() domain.Dependency { return b.dep }

// Execute runs op unless the circuit is open. op's error is returned as-is
// and counted as a failure.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	gen, err := b.Allow()
	if err != nil {
		return err
	}

	if err := op(ctx); err != nil {
		b.RecordFailure(gen)
		return err
	}
	b.RecordSuccess(gen)
	return nil
}

// Allow reports whether a call may proceed. A nil error admits exactly one
// call; callers must follow up with RecordSuccess or RecordFailure, passing
// the returned generation.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateOpen:
		if b.now().Before(b.nextAttemptTime) {
			retryAt := b.nextAttemptTime
			b.mu.Unlock()
			return 0, &OpenError{Dependency: b.dep, RetryAt: retryAt}
		}
		b.setStateLocked(StateHalfOpen)
		b.trialInFlight = true
	case StateHalfOpen:
		if b.trialInFlight {
			retryAt := b.nextAttemptTime
			b.mu.Unlock()
			return 0, &OpenError{Dependency: b.dep, RetryAt: retryAt}
		}
		b.trialInFlight = true
	}
	to := b.state
	gen := b.generation
	b.mu.Unlock()

	b.emit(from, to)
	return gen, nil
}

// RecordSuccess closes the circuit and clears the failure count. Results
// from calls admitted under an earlier generation are ignored.
func (b *Breaker) RecordSuccess(gen uint64) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	from := b.state
	b.setStateLocked(StateClosed)
	b.failureCount = 0
	b.trialInFlight = false
	b.mu.Unlock()

	b.emit(from, StateClosed)
}

// RecordFailure counts a failure, opening the circuit when the threshold is
// reached or when the half-open trial fails. Results from calls admitted
// under an earlier generation are ignored.
func (b *Breaker) RecordFailure(gen uint64) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	from := b.state
	b.failureCount++
	b.trialInFlight = false

	if b.state == StateHalfOpen || b.failureCount >= b.cfg.FailureThreshold {
		if b.failureCount < b.cfg.FailureThreshold {
			b.failureCount = b.cfg.FailureThreshold
		}
		b.setStateLocked(StateOpen)
		b.nextAttemptTime = b.now().Add(b.cfg.RecoveryTimeout)
	}
	to := b.state
	b.mu.Unlock()

	b.emit(from, to)
}

// Reset forces the circuit closed regardless of history. Calls in flight
// when Reset runs no longer count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.generation++
	b.failureCount = 0
	b.trialInFlight = false
	b.nextAttemptTime = time.Time{}
	b.mu.Unlock()

	b.emit(from, StateClosed)
}

// State returns the current state without side effects. An OPEN breaker
// whose recovery timeout has elapsed still reports OPEN until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker record.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		Dependency:   b.dep,
		State:        b.state,
		FailureCount: b.failureCount,
	}
	if b.state == StateOpen {
		s.NextAttemptTime = b.nextAttemptTime
	}
	return s
}

func (b *Breaker) setStateLocked(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.generation++
}

func (b *Breaker) emit(from, to State) {
	if from == to || b.notify == nil {
		return
	}
	b.notify(b.dep, from, to)
}
