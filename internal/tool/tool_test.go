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

package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctumlabs/nuum/internal/tool"
)

type echoArgs struct {
	Text string `json:"text" jsonschema:"required"`
}

type echoTool struct{ fail bool }

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes text back" }
func (echoTool) Schema() *jsonschema.Schema {
	return tool.GenerateSchema(echoArgs{})
}
func (e echoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if e.fail {
		return "", errors.New("boom")
	}
	text, _ := args["text"].(string)
	return "echo: " + text, nil
}

func TestRegister_RejectsInvalidName(t *testing.T) {
	reg := tool.New(nil, nil)
	err := reg.Register(badNameTool{})
	require.Error(t, err)
}

type badNameTool struct{ echoTool }

func (badNameTool) Name() string { return "bad name with spaces" }

func TestDispatch_RunsRegisteredTool(t *testing.T) {
	reg := tool.New(nil, nil)
	require.NoError(t, reg.Register(echoTool{}))

	result, isError := reg.Dispatch(context.Background(), "echo", map[string]any{"text": "hi"})
	assert.False(t, isError)
	assert.Equal(t, "echo: hi", result)
}

func TestDispatch_UnknownToolRepairsInsteadOfErroring(t *testing.T) {
	reg := tool.New(nil, nil)

	result, isError := reg.Dispatch(context.Background(), "nonexistent", map[string]any{})
	assert.True(t, isError)
	assert.Contains(t, result, "no tool named")
	assert.Contains(t, result, "nonexistent")
}

func TestDispatch_SchemaViolationRepairsWithDetail(t *testing.T) {
	reg := tool.New(nil, nil)
	require.NoError(t, reg.Register(echoTool{}))

	result, isError := reg.Dispatch(context.Background(), "echo", map[string]any{})
	assert.True(t, isError)
	assert.Contains(t, result, "You provided")
	assert.Contains(t, result, "echo")
}

func TestDispatch_RuntimeErrorBecomesErrorText(t *testing.T) {
	reg := tool.New(nil, nil)
	require.NoError(t, reg.Register(echoTool{fail: true}))

	result, isError := reg.Dispatch(context.Background(), "echo", map[string]any{"text": "hi"})
	assert.True(t, isError)
	assert.Equal(t, "Error: boom", result)
}

func TestSpecs_ListsRegisteredTools(t *testing.T) {
	reg := tool.New(nil, nil)
	require.NoError(t, reg.Register(echoTool{}))

	specs := reg.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "echo", specs[0].Name)
}
