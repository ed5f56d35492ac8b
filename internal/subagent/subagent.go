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

// Package subagent builds the three bounded agent loops spec.md §4.8
// defines on top of the Turn Loop: Consolidator, Research, and Reflection.
// Each gets its own system prompt, a restricted tool set, a max-turns cap,
// and a designated finish_* tool whose call ends the loop with its report.
package subagent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/assembler"
	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/provider"
	"github.com/sanctumlabs/nuum/internal/temporal"
	"github.com/sanctumlabs/nuum/internal/tool"
	"github.com/sanctumlabs/nuum/internal/turn"
)

const (
	consolidatorMaxTurns = 10
	researchMaxTurns     = 50
	reflectionMaxTurns   = 20
)

const (
	finishConsolidation = "finish_consolidation"
	finishResearch      = "finish_research"
	finishReflection    = "finish_reflection"
)

const consolidatorPrompt = `You are the Consolidator sub-agent. Review the supplied conversation
window and update the long-term knowledge base so it reflects anything worth remembering beyond
this session: new facts, corrected assumptions, decisions and their rationale. Use the ltm_* tools.
When done, call finish_consolidation with a one-paragraph summary of what you changed.`

const researchPrompt = `You are the Research sub-agent. Investigate the assigned question using the
tools available to you, record durable findings in the long-term knowledge base, and call
finish_research with your answer once you have enough evidence.`

const reflectionPrompt = `You are the Reflection sub-agent. Search the temporal log and the long-term
knowledge base for patterns, recurring issues, or unresolved threads worth surfacing. Call
finish_reflection with your findings.`

// Report is a finished sub-agent run's payload.
type Report struct {
	Text string
}

// buildFinishCapture wires a finish tool that stashes its summary arg into
// report and signals completion via the Loop's FinishTool matching.
func buildFinishCapture(reg *tool.Registry, name, desc string, report *Report) error {
	return tool.RegisterFinishTool(reg, name, desc, func(ctx context.Context, args map[string]any) (string, error) {
		summary, _ := args["summary"].(string)
		report.Text = summary
		return summary, nil
	})
}

// RunConsolidator runs a bounded Consolidator pass over a conversation
// window already known to be worth consolidating (spec.md §4.7's ≥5
// messages + tool-use-or-length-200 threshold is checked by the caller,
// typically the Scheduler, before invoking this).
func RunConsolidator(ctx context.Context, asm *assembler.Assembler, prov provider.Provider, temporalRepo *temporal.Repo, ltmRepo *ltm.Repo, logger *zap.Logger, tracer observability.Tracer, trigger string) (*Report, error) {
	reg := tool.New(logger, tracer)
	if err := tool.RegisterLTMTools(reg, ltmRepo, "consolidator"); err != nil {
		return nil, fmt.Errorf("register consolidator tools: %w", err)
	}
	report := &Report{}
	if err := buildFinishCapture(reg, finishConsolidation, "Call when consolidation is complete.", report); err != nil {
		return nil, err
	}

	loop := turn.New(turn.Config{
		Assembler:  asm,
		Provider:   prov,
		Temporal:   temporalRepo,
		Tools:      reg,
		Logger:     logger,
		Tracer:     tracer,
		MaxTurns:   consolidatorMaxTurns,
		FinishTool: finishConsolidation,
	})
	if _, err := loop.Run(ctx, consolidatorPrompt+"\n\nConversation window:\n"+trigger); err != nil {
		return nil, err
	}
	return report, nil
}

// RunResearch runs a bounded Research pass over question, either inline
// (caller awaits the returned Report) or dispatched as a background task by
// the Scheduler (spec.md §4.8).
func RunResearch(ctx context.Context, asm *assembler.Assembler, prov provider.Provider, temporalRepo *temporal.Repo, ltmRepo *ltm.Repo, webTools []tool.Tool, fileTools []tool.Tool, logger *zap.Logger, tracer observability.Tracer, question string) (*Report, error) {
	reg := tool.New(logger, tracer)
	if err := tool.RegisterLTMTools(reg, ltmRepo, "research"); err != nil {
		return nil, fmt.Errorf("register research tools: %w", err)
	}
	for _, t := range webTools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	for _, t := range fileTools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	report := &Report{}
	if err := buildFinishCapture(reg, finishResearch, "Call with your answer once research is complete.", report); err != nil {
		return nil, err
	}

	loop := turn.New(turn.Config{
		Assembler:  asm,
		Provider:   prov,
		Temporal:   temporalRepo,
		Tools:      reg,
		Logger:     logger,
		Tracer:     tracer,
		MaxTurns:   researchMaxTurns,
		FinishTool: finishResearch,
	})
	if _, err := loop.Run(ctx, researchPrompt+"\n\nQuestion:\n"+question); err != nil {
		return nil, err
	}
	return report, nil
}

// RunReflection runs a bounded Reflection pass, read-only over the temporal
// log and LTM (search/read only — no mutation tools), per spec.md §4.8.
func RunReflection(ctx context.Context, asm *assembler.Assembler, prov provider.Provider, temporalRepo *temporal.Repo, ltmRepo *ltm.Repo, logger *zap.Logger, tracer observability.Tracer, focus string) (*Report, error) {
	reg := tool.New(logger, tracer)
	if err := tool.RegisterTemporalTools(reg, temporalRepo); err != nil {
		return nil, fmt.Errorf("register reflection temporal tools: %w", err)
	}
	if err := reg.Register(readOnlyLTM(ltmRepo)); err != nil {
		return nil, err
	}
	report := &Report{}
	if err := buildFinishCapture(reg, finishReflection, "Call with your findings once reflection is complete.", report); err != nil {
		return nil, err
	}

	loop := turn.New(turn.Config{
		Assembler:  asm,
		Provider:   prov,
		Temporal:   temporalRepo,
		Tools:      reg,
		Logger:     logger,
		Tracer:     tracer,
		MaxTurns:   reflectionMaxTurns,
		FinishTool: finishReflection,
	})
	if _, err := loop.Run(ctx, reflectionPrompt+"\n\nFocus:\n"+focus); err != nil {
		return nil, err
	}
	return report, nil
}
