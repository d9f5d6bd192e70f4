// Package breaker keeps one circuit breaker per named upstream.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/sony/gobreaker/v2"
)

// handoff is the gobreaker open timeout. The Manager holds a tripped breaker
// open on its own clock, so gobreaker only has to be ready for the trial call.
const handoff = time.Nanosecond

// Rule configures every breaker created by a Manager.
type Rule struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
}

// Manager lazily creates breakers keyed by name. Cooldown expiry is read
// from the Manager's clock.
type Manager[T any] struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[T]

	cooldownMu sync.Mutex
	openUntil  map[string]time.Time

	rule          Rule
	clock         clock.Clock
	isFailure     func(error) bool
	onStateChange func(name string, from, to gobreaker.State)
}

// Option customizes a Manager.
type Option[T any] func(*Manager[T])

// WithStateChange registers a callback fired on every state transition.
func WithStateChange[T any](fn func(name string, from, to gobreaker.State)) Option[T] {
	return func(m *Manager[T]) {
		m.onStateChange = fn
	}
}

// WithClock sets the clock that times cooldowns. The wall clock is used
// otherwise.
func WithClock[T any](clk clock.Clock) Option[T] {
	return func(m *Manager[T]) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// NewManager creates a Manager. isFailure selects the errors that count
// toward tripping; any other error counts as a success. A nil isFailure
// counts every error.
func NewManager[T any](rule Rule, isFailure func(error) bool, opts ...Option[T]) *Manager[T] {
	if rule.ConsecutiveFailures == 0 {
		rule.ConsecutiveFailures = 1
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = time.Minute
	}
	if rule.MaxRequests == 0 {
		rule.MaxRequests = 1
	}
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}

	m := &Manager[T]{
		m:         make(map[string]*gobreaker.CircuitBreaker[T]),
		openUntil: make(map[string]time.Time),
		rule:      rule,
		clock:     clock.New(),
		isFailure: isFailure,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// get returns the breaker for name, creating it on first use.
func (m *Manager[T]) get(name string) *gobreaker.CircuitBreaker[T] {
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule := m.rule
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: rule.MaxRequests,
		Timeout:     handoff,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= rule.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return !m.isFailure(err)
		},
	}
	st.OnStateChange = m.stateChanged

	cb = gobreaker.NewCircuitBreaker[T](st)
	m.m[name] = cb
	return cb
}

func (m *Manager[T]) stateChanged(name string, from, to gobreaker.State) {
	m.cooldownMu.Lock()
	if to == gobreaker.StateOpen {
		m.openUntil[name] = m.clock.Now().Add(m.rule.Cooldown)
	} else {
		delete(m.openUntil, name)
	}
	m.cooldownMu.Unlock()

	if m.onStateChange != nil {
		m.onStateChange(name, from, to)
	}
}

func (m *Manager[T]) coolingDown(name string) bool {
	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()
	until, ok := m.openUntil[name]
	return ok && m.clock.Now().Before(until)
}

// Execute runs req through the breaker for name. While the breaker is
// cooling down req is not called and gobreaker.ErrOpenState is returned.
func (m *Manager[T]) Execute(name string, req func() (T, error)) (T, error) {
	cb := m.get(name)
	if m.coolingDown(name) {
		var zero T
		return zero, gobreaker.ErrOpenState
	}
	return cb.Execute(req)
}

// State returns the current state of the breaker for name.
func (m *Manager[T]) State(name string) gobreaker.State {
	cb := m.get(name)
	if m.coolingDown(name) {
		return gobreaker.StateOpen
	}
	return cb.State()
}

// IsRejected reports whether err was produced by an open or saturated
// half-open breaker rather than by the wrapped call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
