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

// Package config loads engine configuration from environment variables, an
// optional .env file, and an optional plugin-server config file, in that
// layering order (see spec's environment configuration section).
//
// There is no package-level config singleton. A host embedding multiple
// agent sessions may want different models or plugin sets per session, so
// Load returns a *Config the caller threads through explicitly, the same
// way internal/log avoids a global logger.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ModelTier selects which configured model id a component should resolve.
type ModelTier string

const (
	TierReasoning ModelTier = "reasoning"
	TierWorkhorse ModelTier = "workhorse"
	TierFast      ModelTier = "fast"
)

// Config is the resolved engine configuration for one process/session.
type Config struct {
	v *viper.Viper

	// DBPath is the default store path (AGENT_DB).
	DBPath string

	// Models maps each tier to a resolved model id.
	Models map[ModelTier]string

	// TokenBudgetPct is the fraction of the model's context window the
	// context assembler targets for the temporal view (default 0.4).
	TokenBudgetPct float64

	// LockTimeoutMS is the cross-process store lock acquire timeout.
	LockTimeoutMS int

	// MaxTurns bounds the main turn loop (default 50).
	MaxTurns int

	// DistillThresholdTokens is the uncompressed-tail size (in tokens) that
	// triggers a background distillation pass; default is roughly the
	// temporal tier's own budget (NUUM_TOKEN_BUDGET_PCT of a 200K window).
	DistillThresholdTokens int

	// PluginServers is the merged plugin-server configuration: file config
	// overridden by the NUUM_PLUGIN_CONFIG inline JSON env var.
	PluginServers map[string]PluginServerConfig

	mu             sync.RWMutex
	pluginFilePath string
}

// PluginServerConfig configures one external MCP-style plugin server.
type PluginServerConfig struct {
	Disabled  bool              `json:"disabled" mapstructure:"disabled"`
	Timeout   int               `json:"timeout" mapstructure:"timeout"` // seconds
	Command   string            `json:"command,omitempty" mapstructure:"command"`
	Args      []string          `json:"args,omitempty" mapstructure:"args"`
	Env       map[string]string `json:"env,omitempty" mapstructure:"env"`
	Cwd       string            `json:"cwd,omitempty" mapstructure:"cwd"`
	URL       string            `json:"url,omitempty" mapstructure:"url"`
	Headers   map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Transport string            `json:"transport,omitempty" mapstructure:"transport"` // stdio|sse|streamable-http
}

// Load reads environment variables (optionally preceded by an .env file at
// envFile, if non-empty and present) and an optional plugin-server JSON
// config file at pluginConfigPath, and returns a resolved Config.
func Load(envFile, pluginConfigPath string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile) // best-effort; missing keys simply stay unset
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("MODEL_REASONING", "claude-opus-4-6")
	v.SetDefault("MODEL_WORKHORSE", "claude-sonnet-4-6")
	v.SetDefault("MODEL_FAST", "claude-haiku-4-6")
	v.SetDefault("AGENT_DB", "nuum.db")
	v.SetDefault("NUUM_TOKEN_BUDGET_PCT", 0.4)
	v.SetDefault("NUUM_LOCK_TIMEOUT_MS", 30000)
	v.SetDefault("NUUM_MAX_TURNS", 50)
	v.SetDefault("NUUM_DISTILL_THRESHOLD_TOKENS", 80000)

	cfg := &Config{
		v:      v,
		DBPath: v.GetString("AGENT_DB"),
		Models: map[ModelTier]string{
			TierReasoning: v.GetString("MODEL_REASONING"),
			TierWorkhorse: v.GetString("MODEL_WORKHORSE"),
			TierFast:      v.GetString("MODEL_FAST"),
		},
		TokenBudgetPct:         v.GetFloat64("NUUM_TOKEN_BUDGET_PCT"),
		LockTimeoutMS:          v.GetInt("NUUM_LOCK_TIMEOUT_MS"),
		MaxTurns:               v.GetInt("NUUM_MAX_TURNS"),
		DistillThresholdTokens: v.GetInt("NUUM_DISTILL_THRESHOLD_TOKENS"),
		PluginServers:          map[string]PluginServerConfig{},
		pluginFilePath: pluginConfigPath,
	}

	if err := cfg.reloadPluginServers(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reloadPluginServers re-reads the plugin config file (if any) and merges
// NUUM_PLUGIN_CONFIG's inline JSON over it, inline taking precedence per
// server name.
func (c *Config) reloadPluginServers() error {
	merged := map[string]PluginServerConfig{}

	if c.pluginFilePath != "" {
		if data, err := os.ReadFile(c.pluginFilePath); err == nil {
			var fileCfg map[string]PluginServerConfig
			if err := json.Unmarshal(data, &fileCfg); err != nil {
				return err
			}
			for name, sc := range fileCfg {
				merged[name] = sc
			}
		}
	}

	if inline := c.v.GetString("NUUM_PLUGIN_CONFIG"); inline != "" {
		var inlineCfg map[string]PluginServerConfig
		if err := json.Unmarshal([]byte(inline), &inlineCfg); err != nil {
			return err
		}
		for name, sc := range inlineCfg {
			merged[name] = sc
		}
	}

	c.mu.Lock()
	c.PluginServers = merged
	c.mu.Unlock()
	return nil
}

// PluginServersSnapshot returns a copy of the current plugin-server config,
// safe to read while WatchPluginConfig may be mutating it concurrently.
func (c *Config) PluginServersSnapshot() map[string]PluginServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]PluginServerConfig, len(c.PluginServers))
	for k, v := range c.PluginServers {
		out[k] = v
	}
	return out
}

// WatchPluginConfig watches the plugin config file for changes and reloads
// it in place, so editing the file takes effect without an engine restart.
// It returns a stop function; callers should defer it. No-op if no plugin
// config file path was given to Load.
func (c *Config) WatchPluginConfig(logger *zap.Logger) (stop func(), err error) {
	if c.pluginFilePath == "" {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(c.pluginFilePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(c.pluginFilePath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := c.reloadPluginServers(); err != nil {
					logger.Warn("plugin config reload failed", zap.Error(err))
					continue
				}
				logger.Info("plugin config reloaded", zap.String("path", c.pluginFilePath))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("plugin config watch error", zap.Error(err))
			case <-done:
				watcher.Close()
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// ResolveModel returns the configured model id for tier.
func (c *Config) ResolveModel(tier ModelTier) string {
	return c.Models[tier]
}
