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
)

// DataDirEnv overrides the data directory.
const DataDirEnv = "NL2SQL_DATA_DIR"

// DataDir returns the nl2sql data directory: $NL2SQL_DATA_DIR when set,
// otherwise ~/.nl2sql. The result is absolute and ~ is expanded.
//
// It reads the environment directly because it is used to locate the
// config file before viper is set up.
func DataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".nl2sql"
	}
	return filepath.Join(homeDir, ".nl2sql")
}

// SubDir returns a path inside the data directory.
func SubDir(subdir string) string {
	return filepath.Join(DataDir(), subdir)
}

// expandPath expands ~ and resolves to an absolute path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
