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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	exportPrefix      = "token_usage-"
	exportStampLayout = "20060102T150405.000Z"
)

// ScheduleConfig configures periodic exports.
type ScheduleConfig struct {
	// Cron is a standard 5-field expression or a descriptor such as @hourly
	Cron string

	// Dir receives the export files (default "exports")
	Dir string

	// Format is json or yaml
	Format string

	// Compress writes zstd-compressed files
	Compress bool

	// Keep is how many exports survive pruning; 0 keeps everything
	Keep int

	Logger *zap.Logger
}

// ValidateSchedule reports whether expr parses as a cron schedule.
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ExportScheduler writes the accountant's snapshot to timestamped files on
// a cron schedule and prunes old ones.
type ExportScheduler struct {
	acc    *Accountant
	config ScheduleConfig
	engine *cron.Cron
	logger *zap.Logger

	// serializes exports with pruning
	mu   sync.Mutex
	last time.Time
}

// NewExportScheduler validates cfg and registers the export job.
func NewExportScheduler(acc *Accountant, cfg ScheduleConfig) (*ExportScheduler, error) {
	if acc == nil {
		return nil, fmt.Errorf("accountant is required")
	}
	schedule, err := cron.ParseStandard(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Cron, err)
	}
	if cfg.Dir == "" {
		cfg.Dir = "exports"
	}
	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		cfg.Format = FormatJSON
	case FormatYAML, "yml":
		cfg.Format = FormatYAML
	default:
		return nil, fmt.Errorf("unsupported export format: %s", cfg.Format)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &ExportScheduler{
		acc:    acc,
		config: cfg,
		engine: cron.New(),
		logger: cfg.Logger,
	}
	s.engine.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.ExportNow(); err != nil {
			s.logger.Warn("Scheduled token export failed", zap.Error(err))
		}
	}))
	return s, nil
}

// Run starts the cron engine and blocks until ctx is done. Running jobs
// finish before it returns.
func (s *ExportScheduler) Run(ctx context.Context) error {
	s.engine.Start()
	s.logger.Info("Token export schedule started",
		zap.String("cron", s.config.Cron),
		zap.String("dir", s.config.Dir))

	<-ctx.Done()
	<-s.engine.Stop().Done()
	s.logger.Info("Token export schedule stopped")
	return nil
}

// ExportNow writes one export immediately and returns its path.
func (s *ExportScheduler) ExportNow() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path, err := s.acc.ExportToFile(s.nextPath())
	if err != nil {
		return "", err
	}
	if err := s.prune(); err != nil {
		s.logger.Warn("Failed to prune token exports", zap.Error(err))
	}
	return path, nil
}

// nextPath names the next export after its millisecond timestamp. A stamp
// already used by this scheduler or present on disk moves forward by one
// millisecond, so names stay unique and sort chronologically.
func (s *ExportScheduler) nextPath() string {
	stamp := s.acc.now().UTC().Truncate(time.Millisecond)
	if !stamp.After(s.last) {
		stamp = s.last.Add(time.Millisecond)
	}
	for {
		name := exportPrefix + stamp.Format(exportStampLayout) + "." + s.config.Format
		if s.config.Compress {
			name += CompressedExt
		}
		path := filepath.Join(s.config.Dir, name)
		if _, err := os.Stat(path); err != nil {
			s.last = stamp
			return path
		}
		stamp = stamp.Add(time.Millisecond)
	}
}

// prune removes the oldest exports beyond Keep. Names sort chronologically.
func (s *ExportScheduler) prune() error {
	if s.config.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), exportPrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= s.config.Keep {
		return nil
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.config.Keep] {
		if err := os.Remove(filepath.Join(s.config.Dir, name)); err != nil {
			return err
		}
		s.logger.Debug("Pruned token export", zap.String("file", name))
	}
	return nil
}
