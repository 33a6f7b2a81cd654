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
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/types"
)

// RetryConfig configures retries of failed LLM calls.
type RetryConfig struct {
	Enabled      bool
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig retries three times with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// chatWithRetry wraps LLM Chat calls with exponential backoff retry logic.
func (a *Agent) chatWithRetry(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	retry := a.config.Retry
	if !retry.Enabled || retry.MaxRetries == 0 {
		return a.llm.Chat(ctx, messages, tools)
	}
	if retry.Multiplier < 1 {
		retry.Multiplier = 1
	}

	var lastErr error
	delay := retry.InitialDelay

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		response, err := a.llm.Chat(ctx, messages, tools)
		if err == nil {
			if attempt > 0 {
				a.logger.Info("llm retry succeeded", zap.Int("attempt", attempt+1))
			}
			return response, nil
		}
		lastErr = err

		// Don't retry on context cancellation or deadline exceeded
		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm call failed (attempt %d/%d): %w (context cancelled)",
				attempt+1, retry.MaxRetries+1, err)
		}
		if attempt >= retry.MaxRetries {
			break
		}

		a.logger.Warn("llm call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", retry.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("llm call failed (attempt %d/%d): %w (context cancelled during retry)",
				attempt+1, retry.MaxRetries+1, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * retry.Multiplier)
		if retry.MaxDelay > 0 && delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}

	a.logger.Error("llm retries exhausted", zap.Int("max_retries", retry.MaxRetries), zap.Error(lastErr))
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", retry.MaxRetries+1, lastErr)
}
