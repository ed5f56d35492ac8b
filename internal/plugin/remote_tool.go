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

package plugin

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/sanctumlabs/nuum/pkg/mcp/client"
	"github.com/sanctumlabs/nuum/pkg/mcp/protocol"
)

// remoteTool adapts one MCP server-advertised tool to internal/tool.Tool,
// under its serverName__toolName effective name.
type remoteTool struct {
	effectiveName string
	remote        protocol.Tool
	client        *client.Client
}

func newRemoteTool(effectiveName string, remote protocol.Tool, c *client.Client) *remoteTool {
	return &remoteTool{effectiveName: effectiveName, remote: remote, client: c}
}

func (t *remoteTool) Name() string        { return t.effectiveName }
func (t *remoteTool) Description() string { return t.remote.Description }

func (t *remoteTool) Schema() *jsonschema.Schema {
	// The server already hands us a JSON Schema map; wrap it as a
	// jsonschema.Schema with Extras carrying the raw document so validation
	// (which marshals back to JSON) round-trips it unchanged.
	return &jsonschema.Schema{Extras: t.remote.InputSchema}
}

func (t *remoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.CallTool(ctx, t.remote.Name, args)
	if err != nil {
		return "", fmt.Errorf("plugin tool %s: %w", t.effectiveName, err)
	}
	return fmt.Sprintf("%v", result), nil
}
