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

// Package log constructs the zap loggers used across the engine.
//
// There is deliberately no package-level logger here. A *zap.Logger is
// built once per process (or per test) by New/NewNop and passed explicitly
// into the Store, Turn Loop, Scheduler, and sub-agents — the engine has no
// logging singleton for the same reason it has no singleton event bus: a
// host embedding multiple agent sessions must be able to give each its own
// sink and field set.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Development enables human-readable console encoding and debug level.
	Development bool
	// Level overrides the minimum enabled level; zero value means Info
	// (or Debug when Development is set).
	Level zapcore.Level
	// Name, if set, is attached to every log line via Logger.Named.
	Name string
}

// New builds a *zap.Logger from cfg. Never returns an error in practice —
// zap's own construction only fails on malformed encoder config, which this
// package never produces — but the error is still surfaced for callers that
// want to fail startup loudly rather than silently degrade to Nop.
func New(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level := cfg.Level
	if cfg.Development && level == 0 {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Name != "" {
		logger = logger.Named(cfg.Name)
	}
	return logger, nil
}

// NewNop returns a logger that discards everything — the default for
// library embedding so a host opts into verbosity explicitly.
func NewNop() *zap.Logger { return zap.NewNop() }
