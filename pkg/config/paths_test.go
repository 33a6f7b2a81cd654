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
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataDir(t *testing.T) {
	t.Run("default to ~/.nl2sql", func(t *testing.T) {
		t.Setenv(DataDirEnv, "")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, ".nl2sql"), DataDir())
	})

	t.Run("use NL2SQL_DATA_DIR when set", func(t *testing.T) {
		t.Setenv(DataDirEnv, "/custom/nl2sql")
		assert.Equal(t, "/custom/nl2sql", DataDir())
	})

	t.Run("expand ~", func(t *testing.T) {
		t.Setenv(DataDirEnv, "~/custom/.nl2sql")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, "custom", ".nl2sql"), DataDir())
	})

	t.Run("relative path made absolute", func(t *testing.T) {
		t.Setenv(DataDirEnv, "relative/path")

		dataDir := DataDir()
		assert.True(t, filepath.IsAbs(dataDir))
		assert.True(t, strings.HasSuffix(dataDir, filepath.Join("relative", "path")))
	})
}

func TestSubDir(t *testing.T) {
	t.Setenv(DataDirEnv, "/custom/nl2sql")
	assert.Equal(t, filepath.Join("/custom/nl2sql", "exports"), SubDir("exports"))
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(homeDir, "test", "path"), expandPath("~/test/path"))
	assert.Equal(t, "/absolute/path", expandPath("/absolute/path"))

	rel := expandPath("relative/path")
	assert.True(t, filepath.IsAbs(rel))
}
