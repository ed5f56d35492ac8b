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
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTool_MarshalJSON(t *testing.T) {
	tool := Tool{
		Name:        "read_file",
		Description: "Read a file from disk",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file",
				},
			},
			"required": []string{"path"},
		},
	}

	data, err := json.Marshal(tool)
	require.NoError(t, err)

	var unmarshaled Tool
	err = json.Unmarshal(data, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, tool.Name, unmarshaled.Name)
	assert.Equal(t, tool.Description, unmarshaled.Description)
	assert.NotNil(t, unmarshaled.InputSchema)
}

func TestInitializeParams_MarshalJSON(t *testing.T) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ClientCapabilities{},
		ClientInfo: Implementation{
			Name:    "test-client",
			Version: "1.0.0",
		},
	}

	data, err := json.Marshal(params)
	require.NoError(t, err)

	var unmarshaled InitializeParams
	err = json.Unmarshal(data, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, params.ProtocolVersion, unmarshaled.ProtocolVersion)
	assert.Equal(t, params.ClientInfo.Name, unmarshaled.ClientInfo.Name)
	assert.Equal(t, params.ClientInfo.Version, unmarshaled.ClientInfo.Version)
}

func TestInitializeResult_MarshalJSON(t *testing.T) {
	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: Implementation{
			Name:    "test-server",
			Version: "2.0.0",
		},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var unmarshaled InitializeResult
	err = json.Unmarshal(data, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, result.ProtocolVersion, unmarshaled.ProtocolVersion)
	assert.Equal(t, result.ServerInfo.Name, unmarshaled.ServerInfo.Name)
	assert.NotNil(t, unmarshaled.Capabilities.Tools)
}

func TestCallToolResult_MarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		result CallToolResult
	}{
		{
			name: "text content",
			result: CallToolResult{
				Content: []Content{
					{
						Type: "text",
						Text: "Hello, world!",
					},
				},
			},
		},
		{
			name: "error result",
			result: CallToolResult{
				IsError: true,
				Content: []Content{
					{
						Type: "text",
						Text: "Error occurred",
					},
				},
			},
		},
		{
			name: "multiple contents",
			result: CallToolResult{
				Content: []Content{
					{
						Type: "text",
						Text: "Part 1",
					},
					{
						Type: "text",
						Text: "Part 2",
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.result)
			require.NoError(t, err)

			var unmarshaled CallToolResult
			err = json.Unmarshal(data, &unmarshaled)
			require.NoError(t, err)

			assert.Equal(t, tt.result.IsError, unmarshaled.IsError)
			assert.Len(t, unmarshaled.Content, len(tt.result.Content))

			for i := range tt.result.Content {
				assert.Equal(t, tt.result.Content[i].Type, unmarshaled.Content[i].Type)
				assert.Equal(t, tt.result.Content[i].Text, unmarshaled.Content[i].Text)
			}
		})
	}
}

func TestContent_ResourceRef(t *testing.T) {
	content := Content{
		Type: "resource",
		Resource: &ResourceRef{
			URI:      "file:///tmp/test.txt",
			MimeType: "text/plain",
		},
	}

	data, err := json.Marshal(content)
	require.NoError(t, err)

	var unmarshaled Content
	err = json.Unmarshal(data, &unmarshaled)
	require.NoError(t, err)

	require.NotNil(t, unmarshaled.Resource)
	assert.Equal(t, content.Resource.URI, unmarshaled.Resource.URI)
	assert.Equal(t, content.Resource.MimeType, unmarshaled.Resource.MimeType)
}

func TestProtocolVersionConstant(t *testing.T) {
	assert.Equal(t, "2024-11-05", ProtocolVersion)
}

func TestJSONRPCVersionConstant(t *testing.T) {
	assert.Equal(t, "2.0", JSONRPCVersion)
}

func TestToolListResult(t *testing.T) {
	result := ToolListResult{
		Tools: []Tool{
			{
				Name:        "tool1",
				Description: "First tool",
			},
			{
				Name:        "tool2",
				Description: "Second tool",
			},
		},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var unmarshaled ToolListResult
	err = json.Unmarshal(data, &unmarshaled)
	require.NoError(t, err)

	assert.Len(t, unmarshaled.Tools, 2)
	assert.Equal(t, "tool1", unmarshaled.Tools[0].Name)
	assert.Equal(t, "tool2", unmarshaled.Tools[1].Name)
}
