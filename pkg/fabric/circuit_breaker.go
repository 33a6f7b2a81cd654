// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fabric

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is wrapped by errors returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("database circuit breaker is open")

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Failing - reject requests immediately
	StateHalfOpen                     // Testing - allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive connection failures that open the circuit (default: 3)
	SuccessThreshold int           // Consecutive successes that close it from half-open (default: 1)
	Timeout          time.Duration // Wait before the first half-open probe (default: 10s)
	MaxTimeout       time.Duration // Cap for the doubling wait after repeated opens (default: 60s)
	OnStateChange    func(from, to CircuitState)
	Logger           *zap.Logger
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          10 * time.Second,
		MaxTimeout:       60 * time.Second,
	}
}

// CircuitBreaker stops sending work to a database that keeps failing at the
// connection level. Only connection failures count: a query with a typo must
// not lock everyone else out.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            CircuitState
	failureCount     int
	successCount     int
	consecutiveOpens int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	lastError        error
	config           CircuitBreakerConfig
	logger           *zap.Logger
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxTimeout < config.Timeout {
		config.MaxTimeout = max(def.MaxTimeout, config.Timeout)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &CircuitBreaker{
		state:           StateClosed,
		config:          config,
		logger:          config.Logger,
		now:             time.Now,
		lastStateChange: time.Now(),
	}
}

// Execute runs operation unless the circuit is open, and records whether it
// failed at the connection level.
func (cb *CircuitBreaker) Execute(operation func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := operation()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	timeout := cb.timeoutLocked()
	elapsed := cb.now().Sub(cb.lastFailureTime)
	if elapsed >= timeout {
		cb.setStateLocked(StateHalfOpen)
		cb.logger.Info("circuit_breaker_half_open",
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout_used", timeout),
			zap.Int("consecutive_opens", cb.consecutiveOpens))
		return nil
	}

	return &QueryError{
		Type: "connection",
		Message: fmt.Sprintf("database unavailable after %d consecutive connection failures, retry after %v",
			cb.config.FailureThreshold, (timeout - elapsed).Round(time.Millisecond)),
		Err: fmt.Errorf("%w: last error: %v", ErrCircuitOpen, cb.lastError),
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if IsConnectionError(err) {
		cb.onFailure(err)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	// Query errors prove the database answered
	cb.onSuccess()
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			cb.consecutiveOpens = 0
			cb.setStateLocked(StateClosed)
			cb.logger.Info("circuit_breaker_closed", zap.String("reason", "success_threshold_reached"))
		}
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	cb.lastError = err

	switch cb.state {
	case StateClosed:
		cb.logger.Warn("circuit_breaker_failure",
			zap.Error(err),
			zap.Int("failure_count", cb.failureCount),
			zap.Int("threshold", cb.config.FailureThreshold))

		if cb.failureCount >= cb.config.FailureThreshold {
			cb.consecutiveOpens++
			cb.setStateLocked(StateOpen)
			cb.logger.Error("circuit_breaker_opened",
				zap.Int("consecutive_failures", cb.failureCount),
				zap.Int("consecutive_opens", cb.consecutiveOpens),
				zap.Duration("timeout", cb.timeoutLocked()))
		}

	case StateHalfOpen:
		cb.consecutiveOpens++
		cb.successCount = 0
		cb.setStateLocked(StateOpen)
		cb.logger.Warn("circuit_breaker_reopened", zap.Error(err))
	}
}

// setStateLocked transitions to a new state (caller must hold lock).
func (cb *CircuitBreaker) setStateLocked(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

// timeoutLocked doubles the base timeout for every consecutive open, up to
// MaxTimeout.
func (cb *CircuitBreaker) timeoutLocked() time.Duration {
	if cb.consecutiveOpens <= 1 {
		return cb.config.Timeout
	}
	delay := cb.config.Timeout
	for i := 1; i < cb.consecutiveOpens && delay < cb.config.MaxTimeout; i++ {
		delay *= 2
	}
	return min(delay, cb.config.MaxTimeout)
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// CircuitBreakerStats contains circuit breaker statistics.
type CircuitBreakerStats struct {
	State            string    `json:"state"`
	FailureCount     int       `json:"failure_count"`
	ConsecutiveOpens int       `json:"consecutive_opens"`
	LastFailureTime  time.Time `json:"last_failure_time,omitempty"`
	LastStateChange  time.Time `json:"last_state_change"`
	Timeout          string    `json:"timeout"`
}

// Stats returns current circuit breaker statistics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerStats{
		State:            cb.state.String(),
		FailureCount:     cb.failureCount,
		ConsecutiveOpens: cb.consecutiveOpens,
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
		Timeout:          cb.timeoutLocked().String(),
	}
}

// Reset manually closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	old := cb.state
	cb.failureCount = 0
	cb.successCount = 0
	cb.consecutiveOpens = 0
	cb.lastFailureTime = time.Time{}
	cb.lastError = nil
	cb.setStateLocked(StateClosed)
	cb.logger.Info("circuit_breaker_manually_reset", zap.String("previous_state", old.String()))
}

// IsConnectionError reports whether err means the database could not be
// reached, as opposed to rejecting a statement.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Type == "connection"
	}
	return InferErrorType("", err.Error()) == "connection"
}

// BreakerBackend guards an ExecutionBackend with a CircuitBreaker. Name and
// Close pass straight through.
type BreakerBackend struct {
	ExecutionBackend
	breaker *CircuitBreaker
}

// NewBreakerBackend wraps backend.
func NewBreakerBackend(backend ExecutionBackend, config CircuitBreakerConfig) *BreakerBackend {
	return &BreakerBackend{
		ExecutionBackend: backend,
		breaker:          NewCircuitBreaker(config),
	}
}

// Breaker returns the circuit breaker guarding the backend.
func (b *BreakerBackend) Breaker() *CircuitBreaker {
	return b.breaker
}

func (b *BreakerBackend) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	var result *QueryResult
	err := b.breaker.Execute(func() error {
		var err error
		result, err = b.ExecutionBackend.ExecuteQuery(ctx, query)
		return err
	})
	return result, err
}

func (b *BreakerBackend) LoadSchema(ctx context.Context, refresh bool) (*DatabaseSchema, error) {
	var schema *DatabaseSchema
	err := b.breaker.Execute(func() error {
		var err error
		schema, err = b.ExecutionBackend.LoadSchema(ctx, refresh)
		return err
	})
	return schema, err
}

func (b *BreakerBackend) Ping(ctx context.Context) error {
	return b.breaker.Execute(func() error {
		return b.ExecutionBackend.Ping(ctx)
	})
}
