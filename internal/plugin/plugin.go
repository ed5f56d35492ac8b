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

// Package plugin manages external MCP tool servers: it launches/connects
// each configured server over the protocol in pkg/mcp, namespaces their
// tools serverName__toolName, and tracks per-server connection state so a
// misbehaving server degrades instead of taking the whole engine down.
package plugin

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/config"
	"github.com/sanctumlabs/nuum/internal/csync"
	"github.com/sanctumlabs/nuum/internal/tool"
	"github.com/sanctumlabs/nuum/pkg/mcp/client"
	"github.com/sanctumlabs/nuum/pkg/mcp/protocol"
	"github.com/sanctumlabs/nuum/pkg/mcp/transport"
)

// State is a plugin server's connection lifecycle state.
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateDegraded   State = "degraded" // some tools skipped (invalid name)
	StateFailed     State = "failed"
	StateDisabled   State = "disabled"
)

// effectiveNameRE is the charset spec.md §6 requires for a namespaced tool
// name (serverName__toolName); invalid characters are `. / @ space`.
var effectiveNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Server tracks one configured MCP server.
type Server struct {
	Name  string
	State State
	Issue string // last reported problem, if State is degraded/failed

	client *client.Client
}

// Manager owns every configured plugin server for one session. servers is
// mutated from one connect goroutine per server plus read from the Turn
// Loop's tool-dispatch path concurrently, hence the concurrent map rather
// than a plain map guarded by a single Manager-wide lock.
type Manager struct {
	logger   *zap.Logger
	registry *tool.Registry

	servers *csync.Map[string, *Server]
}

// New builds a Manager that registers discovered tools into registry.
func New(registry *tool.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, registry: registry, servers: csync.NewMap[string, *Server]()}
}

// Connect launches or dials every enabled server in cfgs and registers its
// tools. Each server connects independently; one server's failure does not
// prevent the others from connecting.
func (m *Manager) Connect(ctx context.Context, cfgs map[string]config.PluginServerConfig) {
	var wg sync.WaitGroup
	for name, cfg := range cfgs {
		if cfg.Disabled {
			m.setServer(name, &Server{Name: name, State: StateDisabled})
			continue
		}
		wg.Add(1)
		go func(name string, cfg config.PluginServerConfig) {
			defer wg.Done()
			m.connectOne(ctx, name, cfg)
		}(name, cfg)
	}
	wg.Wait()
}

func (m *Manager) connectOne(ctx context.Context, name string, cfg config.PluginServerConfig) {
	m.setServer(name, &Server{Name: name, State: StateConnecting})

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tp, err := m.buildTransport(cfg)
	if err != nil {
		m.fail(name, fmt.Sprintf("transport init: %v", err))
		return
	}

	c := client.NewClient(client.Config{Transport: tp, Logger: m.logger, Name: "nuum", Version: "1.0"})
	if err := c.Initialize(connectCtx, protocol.Implementation{Name: "nuum", Version: "1.0"}); err != nil {
		m.fail(name, fmt.Sprintf("initialize: %v", err))
		return
	}

	tools, err := c.ListTools(connectCtx)
	if err != nil {
		m.fail(name, fmt.Sprintf("list_tools: %v", err))
		return
	}

	degraded := false
	var lastIssue string
	for _, t := range tools {
		effective := name + "__" + t.Name
		if !effectiveNameRE.MatchString(effective) {
			degraded = true
			lastIssue = fmt.Sprintf("tool %q omitted: effective name %q invalid or >64 chars", t.Name, effective)
			m.logger.Warn("plugin tool name rejected", zap.String("server", name), zap.String("tool", t.Name))
			continue
		}
		if err := m.registry.Register(newRemoteTool(effective, t, c)); err != nil {
			degraded = true
			lastIssue = err.Error()
			continue
		}
	}

	state := StateConnected
	if degraded {
		state = StateDegraded
	}
	m.setServer(name, &Server{Name: name, State: state, Issue: lastIssue, client: c})
}

// buildTransport selects a transport for cfg. cfg.Transport names one of
// "stdio" (default when Command is set), "sse" (legacy HTTP/SSE), or
// "streamable-http" (the 2025-03-26 session-aware transport); cfg.URL with
// no explicit Transport falls back to "sse" for backward compatibility.
func (m *Manager) buildTransport(cfg config.PluginServerConfig) (transport.Transport, error) {
	kind := cfg.Transport
	if kind == "" {
		if cfg.URL != "" {
			kind = "sse"
		} else {
			kind = "stdio"
		}
	}
	switch kind {
	case "streamable-http":
		return transport.NewStreamableHTTPTransport(transport.StreamableHTTPConfig{
			Endpoint:         cfg.URL,
			Headers:          cfg.Headers,
			EnableSessions:   true,
			EnableResumption: true,
			Logger:           m.logger,
		})
	case "sse":
		return transport.NewHTTPTransport(transport.HTTPConfig{
			Endpoint: cfg.URL,
			Headers:  cfg.Headers,
			Logger:   m.logger,
		})
	default:
		return transport.NewStdioTransport(transport.StdioConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			Dir:     cfg.Cwd,
			Logger:  m.logger,
		})
	}
}

func (m *Manager) fail(name, issue string) {
	m.logger.Warn("plugin server failed", zap.String("server", name), zap.String("issue", issue))
	m.setServer(name, &Server{Name: name, State: StateFailed, Issue: issue})
}

func (m *Manager) setServer(name string, s *Server) {
	m.servers.Set(name, s)
}

// Servers returns a snapshot of every configured server's state.
func (m *Manager) Servers() []Server {
	out := make([]Server, 0)
	m.servers.Seq(func(_ string, s *Server) bool {
		out = append(out, Server{Name: s.Name, State: s.State, Issue: s.Issue})
		return true
	})
	return out
}

// IsConnecting reports whether name is still in the connecting state.
// Nothing in the tool-dispatch path calls it: a server's tools are
// registered only once it has connected, so a call to one of them before
// then gets the registry's unknown-tool repair message.
func (m *Manager) IsConnecting(name string) bool {
	s, ok := m.servers.Get(name)
	return ok && s.State == StateConnecting
}

// Close disconnects every connected server.
func (m *Manager) Close() {
	for s := range m.servers.Values() {
		if s.client != nil {
			_ = s.client.Close()
		}
	}
}
