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
package log

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigure(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: Options{}},
		{name: "json debug", opts: Options{Level: "debug", Format: "json"}},
		{name: "upper case level", opts: Options{Level: "WARN"}},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Configure(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Same(t, l, Logger())
		})
	}
}

func TestConfigure_File(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	path := filepath.Join(t.TempDir(), "nl2sql.log")
	l, err := Configure(Options{Level: "info", Format: "json", File: path})
	require.NoError(t, err)
	l.Info("hello", zap.String("k", "v"))
	_ = l.Sync()
	assert.FileExists(t, path)
}

func TestSetLogger_Nil(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	SetLogger(nil)
	require.NotNil(t, Logger())
	Info("dropped")
}
