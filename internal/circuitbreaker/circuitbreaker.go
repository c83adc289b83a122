// Package circuitbreaker stops calls to a provider endpoint that keeps failing
// and lets a single trial call through once the reset timeout has passed.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the state of one circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

const (
	defaultFailureThreshold         = 3
	defaultResetTimeout             = 30 * time.Second
	defaultHalfOpenSuccessThreshold = 1
)

// Config tunes the breaker. Zero values fall back to the defaults.
type Config struct {
	FailureThreshold         int           `mapstructure:"failure_threshold"`
	ResetTimeout             time.Duration `mapstructure:"reset_timeout"`
	HalfOpenSuccessThreshold int           `mapstructure:"half_open_success_threshold"`

	// OnStateChange, if set, is called outside the breaker lock after each transition.
	OnStateChange func(key string, from, to State) `mapstructure:"-"`
}

type circuit struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time

	// trialStarted is set while a half-open trial call is in flight.
	trialStarted time.Time
}

// CircuitBreaker tracks one circuit per key (typically a provider endpoint).
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewCircuitBreaker creates a breaker with cfg.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenSuccessThreshold <= 0 {
		cfg.HalfOpenSuccessThreshold = defaultHalfOpenSuccessThreshold
	}
	return &CircuitBreaker{
		cfg:      cfg,
		now:      time.Now,
		circuits: make(map[string]*circuit),
	}
}

// must be called with cb.mu held
func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{state: StateClosed}
		cb.circuits[key] = c
	}
	return c
}

// AllowRequest reports whether a call for key may proceed. An open circuit
// whose reset timeout has expired moves to half-open and lets the call through.
// A half-open circuit admits one trial at a time; a trial that never records
// an outcome is abandoned after the reset timeout.
func (cb *CircuitBreaker) AllowRequest(key string) bool {
	cb.mu.Lock()
	c := cb.get(key)
	from := c.state
	now := cb.now()
	allowed := true
	switch c.state {
	case StateOpen:
		if now.After(c.openUntil) {
			c.state = StateHalfOpen
			c.consecutiveFailures = 0
			c.consecutiveSuccesses = 0
			c.trialStarted = now
		} else {
			allowed = false
		}
	case StateHalfOpen:
		if !c.trialStarted.IsZero() && now.Before(c.trialStarted.Add(cb.cfg.ResetTimeout)) {
			allowed = false
		} else {
			c.trialStarted = now
		}
	case StateClosed:
	default:
		c.state = StateClosed
	}
	to := c.state
	cb.mu.Unlock()

	cb.notify(key, from, to)
	return allowed
}

// RecordFailure records a failed call for key.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	c := cb.get(key)
	from := c.state
	switch c.state {
	case StateClosed:
		c.consecutiveFailures++
		if c.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.trip(c)
		}
	case StateHalfOpen:
		cb.trip(c)
	case StateOpen:
	}
	c.trialStarted = time.Time{}
	to := c.state
	cb.mu.Unlock()

	cb.notify(key, from, to)
}

// RecordSuccess records a successful call for key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	c := cb.get(key)
	from := c.state
	switch c.state {
	case StateClosed:
		c.consecutiveFailures = 0
	case StateHalfOpen:
		c.trialStarted = time.Time{}
		c.consecutiveSuccesses++
		if c.consecutiveSuccesses >= cb.cfg.HalfOpenSuccessThreshold {
			c.state = StateClosed
			c.consecutiveFailures = 0
			c.consecutiveSuccesses = 0
		}
	case StateOpen:
	}
	to := c.state
	cb.mu.Unlock()

	cb.notify(key, from, to)
}

// GetProviderStatus returns the state of key's circuit and its consecutive failures.
// It never transitions state.
func (cb *CircuitBreaker) GetProviderStatus(key string) (State, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c, ok := cb.circuits[key]
	if !ok {
		return StateClosed, 0
	}
	return c.state, c.consecutiveFailures
}

// must be called with cb.mu held
func (cb *CircuitBreaker) trip(c *circuit) {
	c.state = StateOpen
	c.consecutiveFailures = cb.cfg.FailureThreshold
	c.consecutiveSuccesses = 0
	c.openUntil = cb.now().Add(cb.cfg.ResetTimeout)
}

func (cb *CircuitBreaker) notify(key string, from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(key, from, to)
	}
}
