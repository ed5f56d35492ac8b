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

// Package app wires one database's full stack together: the Store, the
// three memory-tier repositories, the Context Assembler, the LLM provider,
// the tool registry and plugin manager, the Turn Loop, and the background
// Task Scheduler. One App corresponds to one open agent database.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sanctumlabs/nuum/internal/assembler"
	"github.com/sanctumlabs/nuum/internal/bus"
	"github.com/sanctumlabs/nuum/internal/config"
	"github.com/sanctumlabs/nuum/internal/distiller"
	"github.com/sanctumlabs/nuum/internal/ids"
	"github.com/sanctumlabs/nuum/internal/ltm"
	"github.com/sanctumlabs/nuum/internal/observability"
	"github.com/sanctumlabs/nuum/internal/plugin"
	"github.com/sanctumlabs/nuum/internal/present"
	"github.com/sanctumlabs/nuum/internal/provider"
	"github.com/sanctumlabs/nuum/internal/scheduler"
	"github.com/sanctumlabs/nuum/internal/store"
	"github.com/sanctumlabs/nuum/internal/subagent"
	"github.com/sanctumlabs/nuum/internal/temporal"
	"github.com/sanctumlabs/nuum/internal/tool"
	"github.com/sanctumlabs/nuum/internal/turn"
	"github.com/sanctumlabs/nuum/internal/worker"
)

// contextWindowDefault is used for budget math; Sonnet/Opus-class models
// are all 200K-class as of this writing.
const contextWindowDefault = 200_000

// sessionIdentitySlug stores the stable per-database session id as an LTM
// entry outside the agent-editable tree; the simplest way to persist one
// fact alongside everything else the store already owns.
const sessionIdentitySlug = "/_system/session_id"

// App is one open agent database and everything built on top of it.
type App struct {
	SessionID string

	Store    *store.Store
	Temporal *temporal.Repo
	Present  *present.Repo
	LTM      *ltm.Repo
	Worker   *worker.Repo

	Assembler  *assembler.Assembler
	Provider   provider.Provider
	Tools      *tool.Registry
	Plugins    *plugin.Manager
	Distiller  *distiller.Distiller
	Scheduler  *scheduler.Scheduler
	Turn       *turn.Loop
	PresentBus *bus.Broker[present.State]
	TasksBus   *bus.Broker[[]scheduler.Task]

	logger                 *zap.Logger
	tracer                 observability.Tracer
	distillThresholdTokens int
}

// Dependencies supplies the pieces that vary by deployment: a concrete LLM
// provider, a logger, a tracer, an optional Prometheus registry, and the
// configured MCP plugin servers.
type Dependencies struct {
	Provider        provider.Provider
	Logger          *zap.Logger
	Tracer          observability.Tracer
	MetricsRegistry *prometheus.Registry
	PluginServers   map[string]config.PluginServerConfig
}

// Open opens (or reuses) the database at path and assembles the full App.
func Open(ctx context.Context, path string, cfg *config.Config, deps Dependencies) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	st, err := store.Open(ctx, path, cfg.LockTimeoutMS, logger, tracer)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	temporalRepo, err := temporal.NewRepo(st.DB())
	if err != nil {
		return nil, fmt.Errorf("build temporal repo: %w", err)
	}

	presentBus := bus.NewBroker[present.State]("present-changed", logger)
	presentRepo := present.NewRepo(st.DB(), presentBus)

	ltmRepo := ltm.NewRepo(st.DB())
	if err := ltmRepo.EnsureSeeded(ctx); err != nil {
		return nil, fmt.Errorf("seed ltm tree: %w", err)
	}

	workerRepo := worker.NewRepo(st.DB())
	if err := scheduler.RecoverFromRestart(ctx, st.DB()); err != nil {
		logger.Warn("task restart recovery failed", zap.Error(err))
	}

	sessionID, err := ensureSessionID(ctx, ltmRepo)
	if err != nil {
		return nil, fmt.Errorf("ensure session id: %w", err)
	}

	asm, err := assembler.New(temporalRepo, presentRepo, ltmRepo, contextWindowDefault, cfg.TokenBudgetPct)
	if err != nil {
		return nil, fmt.Errorf("build assembler: %w", err)
	}

	tools := tool.New(logger, tracer)
	if err := tool.RegisterLTMTools(tools, ltmRepo, "agent"); err != nil {
		return nil, err
	}
	if err := tool.RegisterPresentTools(tools, presentRepo); err != nil {
		return nil, err
	}
	if err := tool.RegisterTemporalTools(tools, temporalRepo); err != nil {
		return nil, err
	}

	plugins := plugin.New(tools, logger)
	plugins.Connect(ctx, deps.PluginServers)

	dist := distiller.New(temporalRepo, deps.Provider, distiller.DefaultConfig(), logger, tracer)

	loop := turn.New(turn.Config{
		Assembler: asm,
		Provider:  deps.Provider,
		Temporal:  temporalRepo,
		Tools:     tools,
		Logger:    logger,
		Tracer:    tracer,
		MaxTurns:  cfg.MaxTurns,
	})

	tasksBus := bus.NewBroker[[]scheduler.Task]("tasks-changed", logger)
	sched := scheduler.New(ctx, scheduler.Config{
		DB:       st.DB(),
		Bus:      tasksBus,
		Inject:   loop.Inject,
		Logger:   logger,
		Registry: deps.MetricsRegistry,
	})

	researchFn := func(runCtx context.Context, question string) (string, error) {
		report, err := subagent.RunResearch(runCtx, asm, deps.Provider, temporalRepo, ltmRepo, nil, nil, logger, tracer, question)
		if err != nil {
			return "", err
		}
		return report.Text, nil
	}
	reflectFn := func(runCtx context.Context, focus string) (string, error) {
		report, err := subagent.RunReflection(runCtx, asm, deps.Provider, temporalRepo, ltmRepo, logger, tracer, focus)
		if err != nil {
			return "", err
		}
		return report.Text, nil
	}
	if err := tool.RegisterSchedulerTools(tools, tool.SchedulerRunner{
		Create:   sched.Create,
		SetAlarm: sched.SetAlarm,
		Research: func(runCtx context.Context, question string) (string, error) {
			var out string
			err := workerRepo.Run(runCtx, "research", func(ctx context.Context) error {
				text, err := researchFn(ctx, question)
				out = text
				return err
			})
			return out, err
		},
		Reflect: func(runCtx context.Context, focus string) (string, error) {
			var out string
			err := workerRepo.Run(runCtx, "reflection", func(ctx context.Context) error {
				text, err := reflectFn(ctx, focus)
				out = text
				return err
			})
			return out, err
		},
	}); err != nil {
		return nil, err
	}

	return &App{
		SessionID:              sessionID,
		Store:                  st,
		Temporal:               temporalRepo,
		Present:                presentRepo,
		LTM:                    ltmRepo,
		Worker:                 workerRepo,
		Assembler:              asm,
		Provider:               deps.Provider,
		Tools:                  tools,
		Plugins:                plugins,
		Distiller:              dist,
		Scheduler:              sched,
		Turn:                   loop,
		PresentBus:             presentBus,
		TasksBus:               tasksBus,
		logger:                 logger,
		tracer:                 tracer,
		distillThresholdTokens: cfg.DistillThresholdTokens,
	}, nil
}

// RunTurn runs one user turn through the Turn Loop and then performs the
// post-turn memory maintenance spec.md §4.7-§4.8 describe: a background
// distillation pass when the uncompressed tail grows past the configured
// threshold, and a background Consolidator pass when the turn's
// conversation window is "noteworthy." Both run as Scheduler tasks so they
// share its concurrency cap and deliver their results via mid-turn
// injection instead of blocking the caller.
func (a *App) RunTurn(ctx context.Context, userInput string) (*turn.Result, error) {
	res, err := a.Turn.Run(ctx, userInput)
	if err != nil {
		return nil, err
	}
	a.maintainMemory(ctx)
	return res, nil
}

// maintainMemory checks the distillation and consolidation triggers and
// dispatches whichever background work is due. Errors are logged, never
// surfaced to the turn's caller: memory maintenance failing must not fail
// the user's turn.
func (a *App) maintainMemory(ctx context.Context) {
	due, err := a.Distiller.ShouldTrigger(ctx, a.distillThresholdTokens, a.Assembler.CountTokens)
	if err != nil {
		a.logger.Warn("distill trigger check failed", zap.Error(err))
	} else if due {
		if _, err := a.Scheduler.Create(ctx, "distill", "distillation sweep", func(taskCtx context.Context) (string, error) {
			return "", a.Worker.Run(taskCtx, "distill", func(runCtx context.Context) error {
				return a.runDistillationSweep(runCtx)
			})
		}); err != nil {
			a.logger.Warn("distill task enqueue failed", zap.Error(err))
		}
	}

	checkpoint, err := a.consolidationCheckpoint(ctx)
	if err != nil {
		a.logger.Warn("consolidation checkpoint read failed", zap.Error(err))
		return
	}
	window, latestID, noteworthy, err := a.noteworthyWindow(ctx, checkpoint)
	if err != nil {
		a.logger.Warn("noteworthy window check failed", zap.Error(err))
		return
	}
	if !noteworthy {
		return
	}
	if err := a.setConsolidationCheckpoint(ctx, latestID); err != nil {
		a.logger.Warn("consolidation checkpoint write failed", zap.Error(err))
		return
	}
	if _, err := a.Scheduler.Create(ctx, "consolidate", "consolidation pass", func(taskCtx context.Context) (string, error) {
		var report string
		err := a.Worker.Run(taskCtx, "consolidate", func(runCtx context.Context) error {
			r, err := subagent.RunConsolidator(runCtx, a.Assembler, a.Provider, a.Temporal, a.LTM, a.logger, a.tracer, window)
			if err != nil {
				return err
			}
			report = r.Text
			return nil
		})
		return report, err
	}); err != nil {
		a.logger.Warn("consolidate task enqueue failed", zap.Error(err))
	}
}

// consolidationCheckpointSlug stores the temporal ID of the newest message
// already folded into a Consolidator run, so each pass only considers the
// conversation since the last one instead of reprocessing the whole log.
const consolidationCheckpointSlug = "/_system/consolidation_checkpoint"

func (a *App) consolidationCheckpoint(ctx context.Context) (string, error) {
	e, err := a.LTM.Read(ctx, consolidationCheckpointSlug)
	if err != nil {
		return "", nil
	}
	return e.Body, nil
}

func (a *App) setConsolidationCheckpoint(ctx context.Context, id string) error {
	e, err := a.LTM.Read(ctx, consolidationCheckpointSlug)
	if err != nil {
		_, err := a.LTM.Create(ctx, consolidationCheckpointSlug, "/", "Consolidation checkpoint", id, "system")
		return err
	}
	_, err = a.LTM.Update(ctx, consolidationCheckpointSlug, id, e.Version, "system")
	return err
}

// runDistillationSweep runs one level-1 pass and then composes as many
// levels upward as have enough fan-in, per spec.md §4.7.
func (a *App) runDistillationSweep(ctx context.Context) error {
	if _, err := a.Distiller.RunLevel1(ctx); err != nil {
		return err
	}
	maxLevel, err := a.Temporal.MaxLevel(ctx)
	if err != nil {
		return err
	}
	for level := 1; level <= maxLevel; level++ {
		out, err := a.Distiller.RunCompose(ctx, level)
		if err != nil {
			return err
		}
		if out == nil {
			break
		}
		maxLevel, err = a.Temporal.MaxLevel(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// noteworthyWindow renders the conversation strictly after afterID as
// transcript text and reports whether it meets spec.md §4.7/§4.8's
// noteworthy-conversation heuristic: at least 5 messages, and either a
// tool_call/tool_result present or any message over 200 characters. It also
// returns the id of the newest message in the window, for checkpointing.
func (a *App) noteworthyWindow(ctx context.Context, afterID string) (string, string, bool, error) {
	msgs, err := a.Temporal.Tail(ctx, afterID)
	if err != nil {
		return "", "", false, err
	}
	if len(msgs) < 5 {
		return "", "", false, nil
	}
	noteworthy := false
	var sb []byte
	for _, m := range msgs {
		if m.Type == temporal.TypeToolCall || m.Type == temporal.TypeToolResult || len(m.Content) > 200 {
			noteworthy = true
		}
		sb = append(sb, []byte(fmt.Sprintf("[%s] %s\n", m.Type, m.Content))...)
	}
	if !noteworthy {
		return "", "", false, nil
	}
	return string(sb), msgs[len(msgs)-1].ID, true, nil
}

// ensureSessionID reads the database's session id, minting and persisting
// a new one on first open.
func ensureSessionID(ctx context.Context, repo *ltm.Repo) (string, error) {
	if e, err := repo.Read(ctx, sessionIdentitySlug); err == nil {
		return e.Body, nil
	}
	id := ids.New(ids.KindSession)
	if _, err := repo.Create(ctx, sessionIdentitySlug, "/", "Session ID", id, "system"); err != nil {
		return "", err
	}
	return id, nil
}

// Close releases the App's store reference and stops its background
// workers.
func (a *App) Close() error {
	a.Scheduler.Close()
	a.Plugins.Close()
	a.PresentBus.Close()
	a.TasksBus.Close()
	return a.Store.Close()
}
