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
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanctumlabs/nuum/internal/app"
	"github.com/sanctumlabs/nuum/internal/config"
	"github.com/sanctumlabs/nuum/internal/log"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/provider/anthropic"
)

// openApp loads config and opens an App against the resolved database path,
// shared by the chat and serve subcommands.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(envFile, pluginConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}

	logger, err := log.New(log.Config{Development: development, Name: "nuum"})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, anthropic.ErrMissingAPIKey
	}

	tier := config.ModelTier(modelTier)
	model := cfg.Models[tier]
	if model == "" {
		model = cfg.Models[config.TierWorkhorse]
	}
	prov := anthropic.NewClient(anthropic.Config{APIKey: apiKey, Model: model})

	return app.Open(ctx, path, cfg, app.Dependencies{
		Provider:        prov,
		Logger:          logger,
		Tracer:          observability.NewNoOpTracer(),
		MetricsRegistry: prometheus.NewRegistry(),
		PluginServers:   cfg.PluginServersSnapshot(),
	})
}
