// Package resilience classifies provider failures and provides the retry and
// circuit breaker primitives used around upstream calls.
package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state; calls flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the candidate failed too often and is skipped.
	CircuitOpen
	// CircuitHalfOpen allows trial calls to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen rejects a call without making it.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig tunes one candidate's breaker. Zero values take the
// defaults: 5 failures, 30s open, 1 trial.
type CircuitBreakerConfig struct {
	FailureThreshold  int           // consecutive tripping failures that open the circuit
	ResetTimeout      time.Duration // how long an open circuit rejects calls
	HalfOpenMaxTrials int           // successful trials needed to close again

	ShouldTrip    func(err error) bool // DefaultShouldTrip when nil
	OnStateChange func(from, to CircuitState)
	// OnCandidateStateChange is the CandidateBreakers hook; it receives the
	// candidate whose breaker moved.
	OnCandidateStateChange func(candidate string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the zero-value defaults spelled out.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second, HalfOpenMaxTrials: 1}
}

// DefaultShouldTrip counts unavailability and transport failures against a
// candidate. Quota exhaustion and unparseable answers do not trip: the model
// is reachable, and quota outcomes are surfaced with their own retry hint.
func DefaultShouldTrip(err error) bool {
	if err == nil || IsQuotaExceeded(err) || IsConfiguration(err) {
		return false
	}
	var pe *ParseError
	return !errors.As(err, &pe)
}

// CircuitBreaker guards calls to one candidate model.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int // consecutive tripping failures
	trials   int // successes while half-open
	openedAt time.Time

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxTrials <= 0 {
		cfg.HalfOpenMaxTrials = def.HalfOpenMaxTrials
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = DefaultShouldTrip
	}
	return &CircuitBreaker{cfg: cfg, nowFunc: time.Now}
}

// ExecuteVal calls fn unless the circuit is open, then records the outcome.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if !cb.admit() {
		var zero T
		return zero, ErrCircuitOpen
	}
	val, err := fn(ctx)
	cb.record(err)
	return val, err
}

// State reports the current state. An open circuit whose timeout has passed
// reads as half-open even before the next call moves it there.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.cooledDown() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Counters returns the consecutive failure count and the stored state.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures, cb.state
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return true
	}
	if !cb.cooledDown() {
		return false
	}
	cb.moveTo(CircuitHalfOpen)
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.cfg.ShouldTrip(err) {
		cb.failures++
		cb.openedAt = cb.nowFunc()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.trials = 0
			if cb.state != CircuitOpen {
				cb.moveTo(CircuitOpen)
			}
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.trials++
		if cb.trials < cb.cfg.HalfOpenMaxTrials {
			return
		}
		cb.trials = 0
		cb.moveTo(CircuitClosed)
	}
	cb.failures = 0
}

func (cb *CircuitBreaker) moveTo(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// CandidateBreakers keeps one circuit breaker per candidate model.
type CandidateBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// BreakerSnapshot is one candidate's breaker at a point in time.
type BreakerSnapshot struct {
	State    CircuitState
	Failures int
}

// NewCandidateBreakers creates an empty per-candidate breaker registry.
func NewCandidateBreakers(cfg CircuitBreakerConfig) *CandidateBreakers {
	return &CandidateBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for the candidate, creating one if needed.
func (cb *CandidateBreakers) Get(candidate string) *CircuitBreaker {
	cb.mu.RLock()
	b, ok := cb.breakers[candidate]
	cb.mu.RUnlock()
	if ok {
		return b
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if b, ok = cb.breakers[candidate]; ok {
		return b
	}
	b = NewCircuitBreaker(cb.configFor(candidate))
	cb.breakers[candidate] = b
	return b
}

// configFor binds the candidate name into the state-change callbacks.
func (cb *CandidateBreakers) configFor(candidate string) CircuitBreakerConfig {
	cfg := cb.cfg
	onState, onCandidate := cfg.OnStateChange, cfg.OnCandidateStateChange
	if onCandidate == nil {
		return cfg
	}
	cfg.OnStateChange = func(from, to CircuitState) {
		if onState != nil {
			onState(from, to)
		}
		onCandidate(candidate, from, to)
	}
	return cfg
}

// Snapshot returns every known breaker keyed by candidate.
func (cb *CandidateBreakers) Snapshot() map[string]BreakerSnapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	out := make(map[string]BreakerSnapshot, len(cb.breakers))
	for name, b := range cb.breakers {
		failures, _ := b.Counters()
		out[name] = BreakerSnapshot{State: b.State(), Failures: failures}
	}
	return out
}

// Open lists candidates whose circuit is currently open, sorted.
func (cb *CandidateBreakers) Open() []string {
	open := []string{}
	for name, snap := range cb.Snapshot() {
		if snap.State == CircuitOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}
