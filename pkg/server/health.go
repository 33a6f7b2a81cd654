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
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/types"
)

// Preflight checks that the model provider answers and the database is
// reachable before the server starts taking questions.
func Preflight(ctx context.Context, provider types.LLMProvider, backend fabric.ExecutionBackend) error {
	if backend != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := backend.Ping(checkCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("database preflight check failed: %w", err)
		}
	}

	if provider != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := provider.Chat(checkCtx, []types.Message{
			{Role: types.RoleUser, Content: "ping"},
		}, nil)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM provider preflight check failed (%s/%s): %w", provider.Name(), provider.Model(), err)
		}
	}
	return nil
}
