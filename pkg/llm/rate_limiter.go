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
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrThrottled marks a provider response that asked the caller to slow down.
var ErrThrottled = errors.New("llm request throttled")

// RateLimiterConfig configures the LLM rate limiter.
type RateLimiterConfig struct {
	// Enabled turns rate limiting on. A disabled limiter calls through directly.
	Enabled bool

	// RequestsPerSecond is the sustained request rate shared by all callers.
	RequestsPerSecond float64

	// BurstCapacity is the maximum burst of requests allowed.
	BurstCapacity int

	// MaxRetries is the number of retries after a throttled response.
	MaxRetries int

	// RetryBackoff is the initial backoff; it doubles on every retry.
	RetryBackoff time.Duration

	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns defaults sized for the Gemini free tier.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 2.0,
		BurstCapacity:     5,
		MaxRetries:        3,
		RetryBackoff:      time.Second,
		Logger:            zap.NewNop(),
	}
}

// RateLimiterMetrics reports limiter activity.
type RateLimiterMetrics struct {
	Requests  int64
	Throttled int64
	Waited    time.Duration
}

// RateLimiter spaces LLM calls with a token bucket and retries throttled calls.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter

	requests  atomic.Int64
	throttled atomic.Int64
	waitedNs  atomic.Int64
}

// NewRateLimiter creates a limiter from config, filling zero values with defaults.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = def.BurstCapacity
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = def.RetryBackoff
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstCapacity),
	}
}

// Do runs call once a token is available, retrying with exponential backoff
// while call reports throttling.
func (rl *RateLimiter) Do(ctx context.Context, call func(context.Context) error) error {
	if rl == nil || !rl.config.Enabled {
		return call(ctx)
	}

	backoff := rl.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		start := time.Now()
		if err := rl.limiter.Wait(ctx); err != nil {
			return err
		}
		rl.waitedNs.Add(int64(time.Since(start)))
		rl.requests.Add(1)

		err := call(ctx)
		if err == nil || !IsThrottlingError(err) {
			return err
		}
		rl.throttled.Add(1)
		if attempt >= rl.config.MaxRetries {
			return fmt.Errorf("LLM request failed after %d attempts due to throttling: %w", attempt+1, err)
		}

		rl.config.Logger.Warn("LLM request throttled, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", rl.config.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Metrics returns a snapshot of limiter counters.
func (rl *RateLimiter) Metrics() RateLimiterMetrics {
	return RateLimiterMetrics{
		Requests:  rl.requests.Load(),
		Throttled: rl.throttled.Load(),
		Waited:    time.Duration(rl.waitedNs.Load()),
	}
}

// IsThrottlingError reports whether err is a rate-limit response.
func IsThrottlingError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "resource_exhausted") ||
		strings.Contains(s, "rate limit")
}
