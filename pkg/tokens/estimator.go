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

// Package tokens estimates token consumption and keeps the process-wide
// usage ledger exposed by the /tokens endpoints.
package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Estimator counts tokens in text. Implementations must be deterministic and
// return 0 for empty input.
type Estimator interface {
	Estimate(text string) int
}

const (
	EstimatorHeuristic = "heuristic"
	EstimatorTiktoken  = "tiktoken"

	// DefaultEncoding is used by the tiktoken estimator (GPT-4 family, close
	// enough for Gemini-sized estimates)
	DefaultEncoding = "cl100k_base"
)

// HeuristicEstimator averages a characters-per-token estimate (4 chars per
// token) with a words-per-token estimate (1.3 tokens per word). It needs no
// vocabulary and works for Spanish and English alike.
type HeuristicEstimator struct{}

// Estimate implements Estimator.
func (HeuristicEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	charEstimate := utf8.RuneCountInString(text) / 4
	wordEstimate := int(float64(len(strings.Fields(text))) * 1.3)
	return (charEstimate + wordEstimate) / 2
}

// TiktokenEstimator counts BPE tokens with tiktoken.
type TiktokenEstimator struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

// NewTiktokenEstimator loads the named encoding. Loading may need network
// access the first time the vocabulary is fetched.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{encoder: enc}, nil
}

// Estimate implements Estimator.
func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoder.Encode(text, nil, nil))
}

// NewEstimator returns the estimator for kind. An unknown kind, or a
// tiktoken encoding that cannot be loaded, falls back to the heuristic.
func NewEstimator(kind string, logger *zap.Logger) Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch kind {
	case "", EstimatorHeuristic:
		return HeuristicEstimator{}
	case EstimatorTiktoken:
		est, err := NewTiktokenEstimator(DefaultEncoding)
		if err != nil {
			logger.Warn("tiktoken unavailable, using heuristic token estimates", zap.Error(err))
			return HeuristicEstimator{}
		}
		return est
	default:
		logger.Warn("unknown token estimator, using heuristic", zap.String("estimator", kind))
		return HeuristicEstimator{}
	}
}
