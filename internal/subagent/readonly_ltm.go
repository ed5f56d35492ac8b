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

package subagent

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/tool"
)

// readOnlyLTMTool exposes ltm_read without any of the mutation tools, for
// the Reflection sub-agent's restricted tool set (spec.md §4.8).
type readOnlyLTMTool struct {
	repo *ltm.Repo
}

func readOnlyLTM(repo *ltm.Repo) tool.Tool {
	return &readOnlyLTMTool{repo: repo}
}

func (t *readOnlyLTMTool) Name() string        { return "ltm_read" }
func (t *readOnlyLTMTool) Description() string { return "Read a long-term memory entry by slug." }

func (t *readOnlyLTMTool) Schema() *jsonschema.Schema {
	return tool.GenerateSchema(struct {
		Slug string `json:"slug" jsonschema:"required"`
	}{})
}

func (t *readOnlyLTMTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	slug, _ := args["slug"].(string)
	e, err := t.repo.Read(ctx, slug)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (v%d)\n%s", e.Title, e.Version, e.Body), nil
}
