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
package tokens

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// CompressedExt marks a zstd-compressed export.
const CompressedExt = ".zst"

// Snapshot is the full session state.
type Snapshot struct {
	ExportedAt  time.Time `json:"exported_at" yaml:"exported_at"`
	Stats       Stats     `json:"session_stats" yaml:"session_stats"`
	Suggestions []string  `json:"optimization_suggestions" yaml:"optimization_suggestions"`
	Pricing     Pricing   `json:"pricing" yaml:"pricing"`
	History     []Usage   `json:"history" yaml:"history"`
}

// Export captures stats, suggestions and history under one lock so the
// parts agree with each other.
func (a *Accountant) Export() Snapshot {
	a.mu.Lock()
	stats := a.statsLocked()
	recent := a.recentLocked()
	history := append([]Usage{}, a.history...)
	now := a.now()
	a.mu.Unlock()

	return Snapshot{
		ExportedAt:  now,
		Stats:       stats,
		Suggestions: Suggest(stats, recent, a.thresholds),
		Pricing:     a.pricing,
		History:     history,
	}
}

// Marshal encodes the snapshot as indented JSON or YAML.
func (s Snapshot) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(s, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(s)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportToFile writes the snapshot to path. The format follows the file
// extension: .yaml and .yml write YAML, anything else JSON. A trailing .zst
// compresses the encoded snapshot with zstd, so token_usage.json.zst holds
// compressed JSON.
func (a *Accountant) ExportToFile(path string) (string, error) {
	if path == "" {
		path = "token_usage.json"
	}
	base := path
	compressed := strings.EqualFold(filepath.Ext(path), CompressedExt)
	if compressed {
		base = strings.TrimSuffix(path, filepath.Ext(path))
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	data, err := a.Export().Marshal(format)
	if err != nil {
		return "", err
	}
	if compressed {
		if data, err = compress(data); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write token export: %w", err)
	}
	a.logger.Info("Token history exported",
		zap.String("path", path),
		zap.String("format", format),
		zap.Bool("compressed", compressed))
	return path, nil
}

// ReadExport loads a snapshot written by ExportToFile.
func ReadExport(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("failed to read token export: %w", err)
	}
	base := path
	if strings.EqualFold(filepath.Ext(path), CompressedExt) {
		if data, err = decompress(data); err != nil {
			return snap, err
		}
		base = strings.TrimSuffix(path, filepath.Ext(path))
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &snap)
	default:
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return snap, fmt.Errorf("failed to decode token export: %w", err)
	}
	return snap, nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress token export: %w", err)
	}
	return out, nil
}
