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

// Package tool defines the tool contract and a dispatch registry: tools are
// identified by name and a JSON-schema parameter spec, and unknown names or
// schema-violating arguments are redirected to an internal repair tool
// rather than aborting the turn.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/nerr"
	"github.com/sanctumlabs/nuum/internal/observability"
)

// InvalidToolCallName is the name reserved for the internal repair tool.
// Dispatch answers unknown names and schema violations itself through
// repair; no tool is registered or looked up under this name.
const InvalidToolCallName = "__invalid_tool_call__"

// nameRE enforces the effective-name charset and length spec.md §4.6
// requires for plugin-namespaced tools.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Tool is one executable capability advertised to the model.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the tool's JSON Schema for parameter validation,
	// typically generated once via invopop/jsonschema from a Go struct.
	Schema() *jsonschema.Schema
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds every tool available to the Turn Loop for one session:
// built-in tools plus, once internal/plugin is wired, namespaced
// serverName__toolName entries.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
	tracer observability.Tracer
}

// New builds an empty Registry.
func New(logger *zap.Logger, tracer observability.Tracer) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return &Registry{tools: make(map[string]Tool), logger: logger, tracer: tracer}
}

// Register adds t to the registry. Names failing the charset/length rule
// are rejected rather than silently dropped, so a plugin-wiring bug surfaces
// immediately instead of at call time.
func (r *Registry) Register(t Tool) error {
	if !nameRE.MatchString(t.Name()) {
		return nerr.New(nerr.KindToolSchemaError, "tool name %q violates [A-Za-z0-9_-]{1,64}", t.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	return nil
}

// Unregister removes a tool by name, used when a plugin server disconnects.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Specs returns the provider-facing catalog of every registered tool.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Spec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// Spec is a tool's provider-facing advertisement.
type Spec struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Dispatch validates args against the named tool's schema and executes it.
// Unknown tools and schema violations never return an error to the Turn
// Loop: they are redirected to the invalid-tool-call repair path so the
// turn stays alive, matching spec.md §4.6's tool-dispatch contract.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result string, isError bool) {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanToolExecute, observability.WithAttribute("tool.name", name))
	defer r.tracer.EndSpan(span)

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return r.repair(name, args, fmt.Sprintf("no tool named %q is registered", name)), true
	}

	if violation := validate(t.Schema(), args); violation != "" {
		return r.repair(name, args, violation), true
	}

	out, err := t.Execute(ctx, args)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("tool execution error", zap.String("tool", name), zap.Error(err))
		return "Error: " + err.Error(), true
	}
	return out, false
}

// repair renders the detailed schema-violation message spec.md §4.6
// requires: "You provided X for tool Y; schema violation Z".
func (r *Registry) repair(name string, args map[string]any, violation string) string {
	raw, _ := json.Marshal(args)
	return fmt.Sprintf("You provided %s for tool %s; schema violation: %s", string(raw), name, violation)
}

// validate returns a human-readable violation description, or "" if args
// satisfy schema.
func validate(schema *jsonschema.Schema, args map[string]any) string {
	if schema == nil {
		return ""
	}
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Sprintf("internal schema marshal error: %v", err)
	}
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("arguments are not valid JSON: %v", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(argsBytes),
	)
	if err != nil {
		return fmt.Sprintf("schema validation failed to run: %v", err)
	}
	if result.Valid() {
		return ""
	}
	errs := result.Errors()
	if len(errs) == 0 {
		return "arguments did not satisfy schema"
	}
	return errs[0].String()
}

// GenerateSchema reflects a Go params struct into a JSON Schema suitable
// for Tool.Schema, via invopop/jsonschema.
func GenerateSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(v)
}
