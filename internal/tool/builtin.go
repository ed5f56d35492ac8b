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

package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/present"
	"github.com/sanctumlabs/nuum/internal/temporal"
)

// funcTool adapts a name/description/schema/executor quadruple to Tool
// without requiring a dedicated struct type per tool.
type funcTool struct {
	name   string
	desc   string
	schema *jsonschema.Schema
	fn     func(ctx context.Context, args map[string]any) (string, error)
}

func (f *funcTool) Name() string               { return f.name }
func (f *funcTool) Description() string        { return f.desc }
func (f *funcTool) Schema() *jsonschema.Schema  { return f.schema }
func (f *funcTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.fn(ctx, args)
}

func newFuncTool(name, desc string, schema *jsonschema.Schema, fn func(context.Context, map[string]any) (string, error)) Tool {
	return &funcTool{name: name, desc: desc, schema: schema, fn: fn}
}

func objectSchema(required []string, props map[string]string) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "object", Properties: jsonschema.NewProperties(), Required: required}
	for name, typ := range props {
		s.Properties.Set(name, &jsonschema.Schema{Type: typ})
	}
	return s
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// RegisterLTMTools adds read/glob/search/create/update/edit/reparent/
// rename/archive as agent tools, per spec.md §4.4's "all exposed as agent
// tools as well as direct APIs."
func RegisterLTMTools(reg *Registry, repo *ltm.Repo, agentType string) error {
	tools := []Tool{
		newFuncTool("ltm_read", "Read a long-term memory entry by slug.",
			objectSchema([]string{"slug"}, map[string]string{"slug": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Read(ctx, argString(a, "slug"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s (v%d)\n%s", e.Title, e.Version, e.Body), nil
			}),
		newFuncTool("ltm_glob", "List long-term memory entries matching a slug glob pattern.",
			objectSchema([]string{"pattern"}, map[string]string{"pattern": "string", "include_archived": "boolean"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				entries, err := repo.Glob(ctx, argString(a, "pattern"), argBool(a, "include_archived"))
				if err != nil {
					return "", err
				}
				out := ""
				for _, e := range entries {
					out += fmt.Sprintf("%s — %s\n", e.Slug, e.Title)
				}
				return out, nil
			}),
		newFuncTool("ltm_search", "Full-text search long-term memory entries.",
			objectSchema([]string{"query"}, map[string]string{"query": "string", "limit": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				hits, err := repo.Search(ctx, argString(a, "query"), argInt(a, "limit", 10))
				if err != nil {
					return "", err
				}
				out := ""
				for _, h := range hits {
					out += fmt.Sprintf("%s: %s\n", h.Slug, h.Snippet)
				}
				return out, nil
			}),
		newFuncTool("ltm_create", "Create a new long-term memory entry.",
			objectSchema([]string{"slug", "parent_slug", "title", "body"},
				map[string]string{"slug": "string", "parent_slug": "string", "title": "string", "body": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Create(ctx, argString(a, "slug"), argString(a, "parent_slug"), argString(a, "title"), argString(a, "body"), agentType)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("created %s (v%d)", e.Slug, e.Version), nil
			}),
		newFuncTool("ltm_update", "Replace a long-term memory entry's body under optimistic concurrency.",
			objectSchema([]string{"slug", "body", "expected_version"},
				map[string]string{"slug": "string", "body": "string", "expected_version": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Update(ctx, argString(a, "slug"), argString(a, "body"), argInt(a, "expected_version", 0), agentType)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("updated %s (v%d)", e.Slug, e.Version), nil
			}),
		newFuncTool("ltm_edit", "Surgically find-and-replace text in a long-term memory entry's body.",
			objectSchema([]string{"slug", "old", "new", "expected_version"},
				map[string]string{"slug": "string", "old": "string", "new": "string", "expected_version": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Edit(ctx, argString(a, "slug"), argString(a, "old"), argString(a, "new"), argInt(a, "expected_version", 0), agentType)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("edited %s (v%d)", e.Slug, e.Version), nil
			}),
		newFuncTool("ltm_reparent", "Move a long-term memory entry under a new parent slug.",
			objectSchema([]string{"slug", "new_parent", "expected_version"},
				map[string]string{"slug": "string", "new_parent": "string", "expected_version": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Reparent(ctx, argString(a, "slug"), argString(a, "new_parent"), argInt(a, "expected_version", 0), agentType)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("reparented %s (v%d)", e.Slug, e.Version), nil
			}),
		newFuncTool("ltm_rename", "Rename a long-term memory entry's slug, cascading to its descendants.",
			objectSchema([]string{"slug", "new_slug", "expected_version"},
				map[string]string{"slug": "string", "new_slug": "string", "expected_version": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Rename(ctx, argString(a, "slug"), argString(a, "new_slug"), argInt(a, "expected_version", 0), agentType)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("renamed to %s (v%d)", e.Slug, e.Version), nil
			}),
		newFuncTool("ltm_archive", "Soft-delete a long-term memory entry.",
			objectSchema([]string{"slug", "expected_version"}, map[string]string{"slug": "string", "expected_version": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				e, err := repo.Archive(ctx, argString(a, "slug"), argInt(a, "expected_version", 0), agentType)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("archived %s (v%d)", e.Slug, e.Version), nil
			}),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPresentTools adds present-state mutation tools.
func RegisterPresentTools(reg *Registry, repo *present.Repo) error {
	tools := []Tool{
		newFuncTool("present_set_mission", "Set the current mission statement.",
			objectSchema([]string{"mission"}, map[string]string{"mission": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				return "ok", repo.SetMission(ctx, argString(a, "mission"))
			}),
		newFuncTool("present_set_status", "Set the current status line.",
			objectSchema([]string{"status"}, map[string]string{"status": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				return "ok", repo.SetStatus(ctx, argString(a, "status"))
			}),
		newFuncTool("present_add_task", "Append a pending task to the task list.",
			objectSchema([]string{"text"}, map[string]string{"text": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				t, err := repo.AddTask(ctx, argString(a, "text"))
				if err != nil {
					return "", err
				}
				return t.ID, nil
			}),
		newFuncTool("present_complete_task", "Mark a task completed by id.",
			objectSchema([]string{"id"}, map[string]string{"id": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				return "ok", repo.CompleteTask(ctx, argString(a, "id"))
			}),
		newFuncTool("present_remove_task", "Remove a task by id.",
			objectSchema([]string{"id"}, map[string]string{"id": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				return "ok", repo.RemoveTask(ctx, argString(a, "id"))
			}),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterTemporalTools adds the read-only temporal search/context tools.
func RegisterTemporalTools(reg *Registry, repo *temporal.Repo) error {
	tools := []Tool{
		newFuncTool("temporal_search", "Full-text search the conversation history.",
			objectSchema([]string{"query"}, map[string]string{"query": "string", "limit": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				hits, err := repo.SearchFTS(ctx, argString(a, "query"), argInt(a, "limit", 10))
				if err != nil {
					return "", err
				}
				out := ""
				for _, h := range hits {
					out += fmt.Sprintf("[%s %s] %s\n", h.Kind, h.ID, h.Snippet)
				}
				return out, nil
			}),
		newFuncTool("temporal_get_with_context", "Fetch a message and its temporal neighbors.",
			objectSchema([]string{"id"}, map[string]string{"id": "string", "before": "integer", "after": "integer"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				msgs, err := repo.GetWithContext(ctx, argString(a, "id"), argInt(a, "before", 3), argInt(a, "after", 3))
				if err != nil {
					return "", err
				}
				out := ""
				for _, m := range msgs {
					out += fmt.Sprintf("[%s %s] %s\n", m.Type, m.ID, m.Content)
				}
				return out, nil
			}),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// SchedulerRunner bundles the Scheduler/sub-agent operations the scheduler
// tools dispatch into, as closures rather than direct imports: internal/tool
// cannot import internal/subagent (subagent already imports tool), so
// internal/app builds these closures over internal/scheduler.Scheduler and
// internal/subagent's Run* functions and hands them to
// RegisterSchedulerTools.
type SchedulerRunner struct {
	// Create enqueues fn as a background task of typ, per spec.md §4.9.
	Create func(ctx context.Context, typ, description string, fn func(ctx context.Context) (string, error)) (string, error)
	// SetAlarm schedules description to be injected back at firesAt.
	SetAlarm func(ctx context.Context, firesAt time.Time, description string) (string, error)
	// Research runs a bounded Research sub-agent pass over question and
	// returns its report text.
	Research func(ctx context.Context, question string) (string, error)
	// Reflect runs a bounded Reflection sub-agent pass over focus and
	// returns its report text.
	Reflect func(ctx context.Context, focus string) (string, error)
}

// RegisterSchedulerTools adds the tools that let the model itself dispatch
// background work and alarms (spec.md §4.7-§4.9): background_research,
// background_reflect, and set_alarm. Each background_* tool enqueues via
// r.Create so the scheduler's concurrency cap and result-delivery path
// (mid-turn injection) apply uniformly, whether the model or the
// distillation trigger started the work.
func RegisterSchedulerTools(reg *Registry, r SchedulerRunner) error {
	tools := []Tool{
		newFuncTool("background_research", "Kick off a background research task over a question; its answer is delivered back into the conversation once complete.",
			objectSchema([]string{"question"}, map[string]string{"question": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				question := argString(a, "question")
				id, err := r.Create(ctx, "research", question, func(taskCtx context.Context) (string, error) {
					return r.Research(taskCtx, question)
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("research task %s queued", id), nil
			}),
		newFuncTool("background_reflect", "Kick off a background reflection pass over a focus area; its findings are delivered back into the conversation once complete.",
			objectSchema([]string{"focus"}, map[string]string{"focus": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				focus := argString(a, "focus")
				id, err := r.Create(ctx, "reflection", focus, func(taskCtx context.Context) (string, error) {
					return r.Reflect(taskCtx, focus)
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("reflection task %s queued", id), nil
			}),
		newFuncTool("set_alarm", "Schedule a reminder to be delivered back into the conversation at a future time.",
			objectSchema([]string{"fires_at", "description"}, map[string]string{"fires_at": "string", "description": "string"}),
			func(ctx context.Context, a map[string]any) (string, error) {
				firesAt, err := time.Parse(time.RFC3339, argString(a, "fires_at"))
				if err != nil {
					return "", fmt.Errorf("fires_at must be RFC3339: %w", err)
				}
				id, err := r.SetAlarm(ctx, firesAt, argString(a, "description"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("alarm %s set for %s", id, firesAt.Format(time.RFC3339)), nil
			}),
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// FinishFunc is invoked when a sub-agent calls its designated finish tool;
// the returned string becomes the sub-agent's final report.
type FinishFunc func(ctx context.Context, args map[string]any) (string, error)

// RegisterFinishTool adds a single-use finish tool for a bounded sub-agent
// loop (spec.md §4.8): calling it is the Turn Loop's `done` stop signal.
func RegisterFinishTool(reg *Registry, name, desc string, fn FinishFunc) error {
	return reg.Register(newFuncTool(name, desc,
		objectSchema([]string{"summary"}, map[string]string{"summary": "string"}),
		func(ctx context.Context, a map[string]any) (string, error) { return fn(ctx, a) }))
}
