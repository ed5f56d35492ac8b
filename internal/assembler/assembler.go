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

// Package assembler builds the two artifacts the Turn Loop sends to the
// provider each turn: the system prompt (identity, behavior, present
// snapshot, tree overview, queued background reports) and the message array
// (reconstructed temporal view plus new user input). The system prompt
// carries no tool catalog; the Turn Loop sends the tool specs in the
// provider request's separate Tools field.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/present"
	"github.com/sanctumlabs/nuum/internal/provider"
	"github.com/sanctumlabs/nuum/internal/temporal"
)

const (
	presentSnapshotCap = 2000 // characters
	toolCatalogCap     = 4000
	cachedTailMessages = 3
	truncationMarker   = "\n...[truncated]"
)

// Assembler builds provider requests from the three memory tiers.
type Assembler struct {
	temporal *temporal.Repo
	present  *present.Repo
	ltm      *ltm.Repo
	enc      *tiktoken.Tiktoken

	// tokenBudgetPct is the fraction of the model's context window reserved
	// for the temporal view (spec §4.5's 30-50% default).
	tokenBudgetPct float64
	contextWindow  int
}

// New builds an Assembler. contextWindow is the provider's total context
// window in tokens; tokenBudgetPct (e.g. 0.4) is the share reserved for the
// temporal view after the fixed-cap sections are subtracted.
func New(temporalRepo *temporal.Repo, presentRepo *present.Repo, ltmRepo *ltm.Repo, contextWindow int, tokenBudgetPct float64) (*Assembler, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding: %w", err)
	}
	return &Assembler{
		temporal:       temporalRepo,
		present:        presentRepo,
		ltm:            ltmRepo,
		enc:            enc,
		tokenBudgetPct: tokenBudgetPct,
		contextWindow:  contextWindow,
	}, nil
}

// CountTokens implements temporal.TokenCounter using tiktoken.
func (a *Assembler) CountTokens(text string) int {
	return len(a.enc.Encode(text, nil, nil))
}

// Built is the pair of artifacts a Turn Loop sends to the provider.
type Built struct {
	System          string
	SystemCacheable bool
	Messages        []provider.Message
	Escalated       bool
}

// Build assembles the system prompt and message array for one turn.
// pendingReports are background-task results delivered since the last turn
// (spec §4.5 "delivered background reports"); userInput is the new turn's
// input, appended after the reconstructed view.
func (a *Assembler) Build(ctx context.Context, userInput string, pendingReports []string) (*Built, error) {
	identity, err := a.ltm.Read(ctx, ltm.IdentitySlug)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	behavior, err := a.ltm.Read(ctx, ltm.BehaviorSlug)
	if err != nil {
		return nil, fmt.Errorf("read behavior: %w", err)
	}
	state, err := a.present.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read present state: %w", err)
	}
	tree, err := a.ltm.Glob(ctx, "**", false)
	if err != nil {
		return nil, fmt.Errorf("read ltm tree overview: %w", err)
	}

	var sys strings.Builder
	sys.WriteString(identity.Body)
	sys.WriteString("\n\n")
	sys.WriteString(behavior.Body)
	sys.WriteString("\n\n")
	sys.WriteString(truncate(formatPresent(state), presentSnapshotCap))
	sys.WriteString("\n\n")
	sys.WriteString(truncate(formatTree(tree), toolCatalogCap))
	if len(pendingReports) > 0 {
		sys.WriteString("\n\nBackground reports since last turn:\n")
		for _, r := range pendingReports {
			sys.WriteString("- ")
			sys.WriteString(r)
			sys.WriteString("\n")
		}
	}

	budget := int(float64(a.contextWindow) * a.tokenBudgetPct)
	budget -= a.CountTokens(sys.String())
	if budget < 0 {
		budget = 0
	}

	view, escalated, err := a.temporal.BuildView(ctx, budget, a.CountTokens)
	if err != nil {
		return nil, fmt.Errorf("build temporal view: %w", err)
	}

	messages := make([]provider.Message, 0, len(view)+1)
	for _, e := range view {
		role := provider.RoleUser
		if !e.IsDistillation && e.Message.Type == temporal.TypeAssistant {
			role = provider.RoleAssistant
		}
		messages = append(messages, provider.Message{Role: role, Content: temporal.FormatEntry(e)})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: userInput})

	markCacheableTail(messages)

	return &Built{
		System:          sys.String(),
		SystemCacheable: true,
		Messages:        messages,
		Escalated:       escalated,
	}, nil
}

// markCacheableTail sets CacheControl on the last cachedTailMessages
// entries, per spec §4.5's prefix-caching rule.
func markCacheableTail(messages []provider.Message) {
	start := len(messages) - cachedTailMessages
	if start < 0 {
		start = 0
	}
	for i := start; i < len(messages); i++ {
		messages[i].CacheControl = true
	}
}

func formatPresent(s *present.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mission: %s\nStatus: %s\nTasks:\n", s.Mission, s.Status)
	for _, t := range s.Tasks {
		fmt.Fprintf(&b, "- [%s] %s\n", t.Status, t.Text)
	}
	return b.String()
}

func formatTree(entries []ltm.Entry) string {
	var b strings.Builder
	b.WriteString("Knowledge tree:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s — %s\n", e.Slug, e.Title)
	}
	return b.String()
}

func truncate(s string, capTokensAsChars int) string {
	if len(s) <= capTokensAsChars {
		return s
	}
	return s[:capTokensAsChars] + truncationMarker
}
