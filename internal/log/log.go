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

// Package log provides the process-wide zap logger.
package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	logger, _ = zap.NewDevelopment()
}

// Options controls how Configure builds the process logger.
type Options struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string
	// Format is "json" or "text" (default: text)
	Format string
	// File redirects output and error output to a file when set
	File string
}

// Configure builds a production logger from opts and installs it as the
// process logger. Stack traces are only attached at error level.
func Configure(opts Options) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	level := zap.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(opts.Format) {
	case "", "text", "console":
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "json":
		zapConfig.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", opts.Format)
	}

	if opts.File != "" {
		zapConfig.OutputPaths = []string{opts.File}
		zapConfig.ErrorOutputPaths = []string{opts.File}
	}

	l, err := zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(l)
	return l, nil
}

// Logger returns the global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger sets the global logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Debug logs a debug message.
func Debug(msg string, fields ...zap.Field) {
	Logger().Debug(msg, fields...)
}

// Info logs an info message.
func Info(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

// Warn logs a warning message.
func Warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, fields...)
}

// Error logs an error message.
func Error(msg string, fields ...zap.Field) {
	Logger().Error(msg, fields...)
}

// With returns a logger with additional fields.
func With(fields ...zap.Field) *zap.Logger {
	return Logger().With(fields...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return Logger().Sync()
}
