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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: false})
	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, rl.Metrics().Requests)
}

func TestRateLimiter_NilCallsThrough(t *testing.T) {
	var rl *RateLimiter
	err := rl.Do(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRateLimiter_RetriesThrottled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 1000,
		BurstCapacity:     10,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
	})

	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("status 429: %w", ErrThrottled)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	m := rl.Metrics()
	assert.Equal(t, int64(3), m.Requests)
	assert.Equal(t, int64(2), m.Throttled)
}

func TestRateLimiter_GivesUp(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 1000,
		MaxRetries:        1,
		RetryBackoff:      time.Millisecond,
	})

	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		return ErrThrottled
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestRateLimiter_NonThrottlingErrorNotRetried(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: true, RequestsPerSecond: 1000})
	boom := errors.New("bad request")
	calls := 0
	err := rl.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: true, RequestsPerSecond: 0.001, BurstCapacity: 1})
	require.NoError(t, rl.Do(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rl.Do(ctx, func(context.Context) error {
		t.Fatal("call must not run")
		return nil
	})
	assert.Error(t, err)
}

func TestIsThrottlingError(t *testing.T) {
	assert.False(t, IsThrottlingError(nil))
	assert.True(t, IsThrottlingError(errors.New("API error (status 429): slow down")))
	assert.True(t, IsThrottlingError(errors.New("RESOURCE_EXHAUSTED")))
	assert.True(t, IsThrottlingError(fmt.Errorf("wrapped: %w", ErrThrottled)))
	assert.False(t, IsThrottlingError(errors.New("status 400")))
}
