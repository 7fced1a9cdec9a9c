// Command orchestratord runs the orchestration kernel: it wires together
// the message bus, agent registry, task store, planner, executive function,
// consolidation pipeline, predictor, orchestration bridge, and learning
// manager described in SPEC_FULL.md, then drives a single parent task
// through to completion.
//
// # Configuration
//
// Environment variables:
//
//	ORCHESTRATORD_CONFIG          - path to a YAML config file (optional, defaults apply)
//	ORCHESTRATORD_TASK_TITLE      - title of the parent task to run (default: "bootstrap")
//	ORCHESTRATORD_PROJECT         - project name the goal/task belongs to (default: "default")
//	ORCHESTRATORD_LOG_FORMAT      - "json" or "text" (default: "text")
//	ORCHESTRATORD_DEBUG           - "true" to enable debug-level logging
//
// # Example
//
//	ORCHESTRATORD_TASK_TITLE="migrate billing service" go run ./cmd/orchestratord
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/shawkridge/athena-sub007/internal/bridge"
	"github.com/shawkridge/athena-sub007/internal/bus"
	"github.com/shawkridge/athena-sub007/internal/config"
	"github.com/shawkridge/athena-sub007/internal/consolidation"
	"github.com/shawkridge/athena-sub007/internal/executive"
	"github.com/shawkridge/athena-sub007/internal/learning"
	"github.com/shawkridge/athena-sub007/internal/orchestrator"
	"github.com/shawkridge/athena-sub007/internal/planner"
	"github.com/shawkridge/athena-sub007/internal/predictor"
	"github.com/shawkridge/athena-sub007/internal/registry"
	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	format := log.FormatTerminal
	if envOr("ORCHESTRATORD_LOG_FORMAT", "text") == "json" {
		format = log.FormatJSON
	}
	ctx = log.Context(ctx, log.WithFormat(format))
	if envOr("ORCHESTRATORD_DEBUG", "") == "true" {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load(os.Getenv("ORCHESTRATORD_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewClueLogger()
	logger.Info(ctx, "orchestratord starting",
		"max_concurrent_agents", cfg.MaxConcurrentAgents,
		"heartbeat_interval", cfg.HeartbeatInterval().String(),
	)

	components := wire(cfg, logger)

	project := envOr("ORCHESTRATORD_PROJECT", "default")
	taskTitle := envOr("ORCHESTRATORD_TASK_TITLE", "bootstrap")

	report, err := runOnce(ctx, components, project, taskTitle)
	if err != nil {
		logger.Error(ctx, "orchestration run failed", "err", err)
		return err
	}

	logger.Info(ctx, "orchestration run complete",
		"parent_task_id", report.ParentTaskID,
		"success", report.Success,
		"steps", len(report.Steps),
		"duration", report.Duration.String(),
	)
	return nil
}

// runtimeComponents bundles every constructed subsystem, so wire() stays a
// single function a reader can audit top to bottom (spec §2 component
// table, one field per row).
type runtimeComponents struct {
	bus           *bus.InMemoryBus
	store         store.Store
	registry      registry.Registry
	planner       *planner.Planner
	hierarchy     *executive.Hierarchy
	selector      *executive.StrategySelector
	resolver      *executive.ConflictResolver
	switcher      *executive.TaskSwitcher
	progress      *executive.ProgressMonitor
	consolidation *consolidation.Pipeline
	predictor     *predictor.Predictor
	bridge        *bridge.Bridge
	offload       *bridge.MemoryOffload
	learning      *learning.Manager
	orchestrator  *orchestrator.Orchestrator
}

// wire constructs every subsystem with constructor injection only, matching
// the teacher's registry.New(ctx, Config{...}) style: no package-level
// singletons, every dependency passed explicitly (SPEC_FULL §9 "Global
// mutable state").
func wire(cfg config.Config, logger telemetry.Logger) *runtimeComponents {
	messageBus := bus.New(
		bus.WithLogger(logger),
		bus.WithCapacity(cfg.BusMaxQueueSize),
	)

	taskStore := store.New(nil)
	eventStore := consolidation.NewMemoryEventStore()
	patternStore := consolidation.NewMemoryPatternStore()

	learningMgr := learning.New()
	hierarchy := executive.NewHierarchy()
	selector := executive.NewStrategySelector()
	resolver := executive.NewConflictResolver()
	switcher := executive.NewTaskSwitcher()
	progressMonitor := executive.NewProgressMonitor()

	pred := predictor.New(predictor.WithLogger(logger))

	pipeline := consolidation.New(eventStore, patternStore,
		consolidation.WithLogger(logger),
		consolidation.WithMinConfidence(cfg.ConsolidationMinConfidence),
	)

	orchestrationBridge := bridge.New(selector, bridge.WithLogger(logger))
	memoryOffload := bridge.NewMemoryOffload(eventStore, bridge.WithTokenLimit(cfg.ContextTokenLimit))

	plan := planner.New()

	// The registry needs a Spawner, and the Spawner (the orchestrator)
	// needs the registry: broken with a forwarding shim set once both
	// exist, rather than a package-level variable (spec §9 resolution).
	spawnerShim := &lateBoundSpawner{}
	reg := registry.New(taskStore, spawnerShim, registry.WithLogger(logger))

	orch := orchestrator.New("", taskStore, reg, plan,
		orchestrator.WithLogger(logger),
		orchestrator.WithMemoryOffload(memoryOffload),
		orchestrator.WithMaxConcurrentAgents(cfg.MaxConcurrentAgents),
		orchestrator.WithHealthInterval(cfg.HealthCheckInterval()),
		orchestrator.WithStaleThreshold(cfg.StaleThreshold()),
		orchestrator.WithStuckThreshold(cfg.StuckThreshold()),
	)
	spawnerShim.target = orch

	return &runtimeComponents{
		bus:           messageBus,
		store:         taskStore,
		registry:      reg,
		planner:       plan,
		hierarchy:     hierarchy,
		selector:      selector,
		resolver:      resolver,
		switcher:      switcher,
		progress:      progressMonitor,
		consolidation: pipeline,
		predictor:     pred,
		bridge:        orchestrationBridge,
		offload:       memoryOffload,
		learning:      learningMgr,
		orchestrator:  orch,
	}
}

// lateBoundSpawner forwards Spawn calls to target once it is set. It exists
// solely to break the registry<->orchestrator construction cycle; it is not
// a package-level singleton (it is itself an explicit dependency, and its
// target is filled in once by wire, never mutated afterwards by any other
// caller).
type lateBoundSpawner struct {
	target registry.Spawner
}

func (s *lateBoundSpawner) Spawn(ctx context.Context, agentType types.AgentType, capabilities []string) (string, error) {
	if s.target == nil {
		return "", errors.New("orchestratord: spawner not yet wired")
	}
	return s.target.Spawn(ctx, agentType, capabilities)
}

// runOnce creates one goal/task pair and drives it through the orchestrator
// to completion, returning its synthesis report (spec §4.5 step 7).
func runOnce(ctx context.Context, c *runtimeComponents, project, title string) (*orchestrator.SynthesisReport, error) {
	goal := &types.Goal{
		Project:  project,
		Text:     title,
		Type:     types.GoalTypePrimary,
		Priority: 5,
		Deadline: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	if err := c.hierarchy.Create(ctx, goal); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}

	decompCtx := c.bridge.ToDecompositionContext(ctx, goal, 0, 0)

	task := &types.Task{
		Title:    title,
		Status:   types.TaskStatusPending,
		Priority: types.TaskPriorityMedium,
	}
	if err := c.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create parent task: %w", err)
	}

	report, err := c.orchestrator.Run(ctx, task, decompCtx.Strategy, decompCtx.Reasoning)
	if err != nil {
		return report, err
	}

	if err := c.hierarchy.Complete(goal.ID, true); err != nil {
		c.learning.RecordGoalOutcome(decompCtx.Strategy, false, decompCtx.Confidence)
		return report, fmt.Errorf("complete goal: %w", err)
	}
	c.selector.RecordOutcome(decompCtx.Strategy, report.Success)
	c.learning.RecordGoalOutcome(decompCtx.Strategy, report.Success, decompCtx.Confidence)

	return report, nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
