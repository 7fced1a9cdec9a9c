// Package orchestrator implements the Orchestrator (spec §4.5): it spawns
// workers, asks the Planner to decompose a parent task, materializes the
// plan's steps as subtasks, keeps enough specialist agents alive to work
// through them, runs the health and progress reconciliation loops, and
// synthesizes a final report once the parent task's subtasks are all
// terminal.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/bridge"
	"github.com/shawkridge/athena-sub007/internal/planner"
	"github.com/shawkridge/athena-sub007/internal/registry"
	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
	"github.com/shawkridge/athena-sub007/internal/worker"
)

// TerminalSession is an optional multiplexed terminal the orchestrator can
// attach to purely for operator visibility (spec §4.5 step 1). The core
// never depends on its presence.
type TerminalSession interface {
	Attach(ctx context.Context, parentTaskID string) error
	Detach()
}

// ExecutorFactory supplies the type-specific ExecuteFunc for a spawned
// worker (spec §1 "per-specialist domain logic ... plug-ins"). The core
// ships only a default stub that marks every task complete; real
// specialist behavior is injected by the caller (cmd/orchestratord).
type ExecutorFactory func(agentType types.AgentType) worker.ExecuteFunc

func defaultExecutorFactory(types.AgentType) worker.ExecuteFunc {
	return func(ctx context.Context, task *types.Task, progress worker.Progress) (worker.Result, error) {
		progress(100)
		return worker.Result{Findings: map[string]any{"summary": "completed: " + task.Title}}, nil
	}
}

// agentTypeKeywords buckets a subtask's title into the agent type most
// likely to own it, per spec §4.5 step 4b "determine required agent type
// from tags/title heuristics". Checked in order, first match wins.
var agentTypeKeywords = []struct {
	agentType types.AgentType
	words     []string
}{
	{types.AgentTypePlanner, []string{"plan:"}},
	{types.AgentTypeResearch, []string{"research", "investigate", "explore", "spike"}},
	{types.AgentTypeDebugging, []string{"debug", "fix", "bug"}},
	{types.AgentTypeReview, []string{"review", "audit"}},
	{types.AgentTypeValidation, []string{"test:", "validate", "verify"}},
	{types.AgentTypeDocumentation, []string{"document", "doc:", "readme"}},
	{types.AgentTypeOptimization, []string{"optimize", "performance", "deploy:"}},
	{types.AgentTypeAnalysis, []string{"analyze", "analysis", "evaluate"}},
	{types.AgentTypeSynthesis, []string{"synthesize", "summarize", "integrate"}},
}

// InferAgentType classifies a subtask by title/tags keyword match, falling
// back to the generic executor type.
func InferAgentType(t *types.Task) types.AgentType {
	haystack := strings.ToLower(t.Title + " " + strings.Join(t.Tags, " "))
	for _, bucket := range agentTypeKeywords {
		for _, w := range bucket.words {
			if strings.Contains(haystack, w) {
				return bucket.agentType
			}
		}
	}
	return types.AgentTypeExecutor
}

// SynthesisReport is the Orchestrator's final account of a parent task's
// run: one entry per subtask plus the overall outcome (spec §4.5 step 7).
type SynthesisReport struct {
	ParentTaskID string
	Success      bool
	Steps        []StepOutcome
	Duration     time.Duration
}

// StepOutcome summarizes one materialized subtask's terminal state.
type StepOutcome struct {
	TaskID      string
	Title       string
	Status      types.TaskStatus
	FailureReason string
}

const (
	defaultMaxConcurrentAgents = 4
	defaultHealthInterval      = 10 * time.Second
	defaultProgressInterval    = 5 * time.Second
	defaultStaleThreshold      = 60 * time.Second
	defaultStuckThreshold      = 300 * time.Second
	// criticalRetryExhausted mirrors registry.maxRetryAttempts: a critical
	// subtask that has failed this many times aborts the run early
	// (spec §4.5 step 6 "critical subtask fails").
	criticalRetryExhausted = 3
)

// Orchestrator drives a parent task to completion (spec §4.5).
type Orchestrator struct {
	ID string

	st              store.Store
	reg             registry.Registry
	planner         *planner.Planner
	offload         *bridge.MemoryOffload
	terminal        TerminalSession
	executorFactory ExecutorFactory
	logger          telemetry.Logger
	now             func() time.Time

	maxConcurrentAgents int
	healthInterval      time.Duration
	progressInterval    time.Duration
	staleThreshold      time.Duration
	stuckThreshold      time.Duration
	tickInterval        time.Duration

	mu            sync.Mutex
	workerCancels map[string]context.CancelFunc // agentID -> cancel
	trackedTokens int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l telemetry.Logger) Option          { return func(o *Orchestrator) { o.logger = l } }
func WithClock(fn func() time.Time) Option          { return func(o *Orchestrator) { o.now = fn } }
func WithMaxConcurrentAgents(n int) Option          { return func(o *Orchestrator) { o.maxConcurrentAgents = n } }
func WithHealthInterval(d time.Duration) Option     { return func(o *Orchestrator) { o.healthInterval = d } }
func WithProgressInterval(d time.Duration) Option   { return func(o *Orchestrator) { o.progressInterval = d } }
func WithStaleThreshold(d time.Duration) Option     { return func(o *Orchestrator) { o.staleThreshold = d } }
func WithStuckThreshold(d time.Duration) Option     { return func(o *Orchestrator) { o.stuckThreshold = d } }
func WithTerminalSession(t TerminalSession) Option  { return func(o *Orchestrator) { o.terminal = t } }
func WithMemoryOffload(m *bridge.MemoryOffload) Option {
	return func(o *Orchestrator) { o.offload = m }
}
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(o *Orchestrator) { o.executorFactory = f }
}

// WithAssignLoopInterval overrides how often the assign-work loop checks
// for unmet worker demand; defaults to the progress reconciliation cadence.
func WithAssignLoopInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.tickInterval = d }
}

// New constructs an Orchestrator. id identifies this orchestrator instance
// for checkpointing (spec §4.10).
func New(id string, st store.Store, reg registry.Registry, pl *planner.Planner, opts ...Option) *Orchestrator {
	if id == "" {
		id = uuid.NewString()
	}
	o := &Orchestrator{
		ID:                  id,
		st:                  st,
		reg:                 reg,
		planner:             pl,
		executorFactory:     defaultExecutorFactory,
		logger:              telemetry.NewNoopLogger(),
		now:                 func() time.Time { return time.Now().UTC() },
		maxConcurrentAgents: defaultMaxConcurrentAgents,
		healthInterval:      defaultHealthInterval,
		progressInterval:    defaultProgressInterval,
		staleThreshold:      defaultStaleThreshold,
		stuckThreshold:      defaultStuckThreshold,
		tickInterval:        1 * time.Second,
		workerCancels:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Spawn implements registry.Spawner: it registers a new agent of agentType
// and starts a Worker goroutine running its ExecutorFactory hook.
func (o *Orchestrator) Spawn(ctx context.Context, agentType types.AgentType, capabilities []string) (string, error) {
	agentID, err := o.reg.Register(ctx, agentType, capabilities)
	if err != nil {
		return "", fmt.Errorf("orchestrator: register agent: %w", err)
	}
	execute := o.executorFactory(agentType)
	w := worker.New(agentID, agentType, capabilities, o.st, o.reg, execute, worker.WithLogger(o.logger))

	wctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.workerCancels[agentID] = cancel
	o.mu.Unlock()

	go w.Run(wctx)
	o.logger.Info(ctx, "spawned worker", "agent_id", agentID, "agent_type", string(agentType))
	return agentID, nil
}

// findOrSpawnIdle returns an idle agent of agentType, spawning one if none
// exists (spec §4.5 step 4c).
func (o *Orchestrator) findOrSpawnIdle(ctx context.Context, agentType types.AgentType) (string, error) {
	for _, a := range o.reg.List() {
		if a.Type == agentType && a.Status == types.AgentStatusIdle {
			return a.ID, nil
		}
	}
	return o.Spawn(ctx, agentType, nil)
}

// Run decomposes task via strategy (pass types.Strategy("") for the
// default linear decomposition), materializes its plan steps as subtasks,
// and drives them to completion. It blocks until every subtask reaches a
// terminal status, a critical subtask exhausts its retries, or ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context, task *types.Task, strategy types.Strategy, reasoning string) (*SynthesisReport, error) {
	start := o.now()

	if o.terminal != nil {
		if err := o.terminal.Attach(ctx, task.ID); err != nil {
			o.logger.Warn(ctx, "terminal session attach failed, continuing without it", "task_id", task.ID, "err", err)
		}
		defer o.terminal.Detach()
	}

	var plan *types.ExecutionPlan
	if strategy == "" {
		plan = o.planner.Decompose(task)
	} else {
		plan = o.planner.DecomposeWithStrategy(task, strategy, reasoning)
	}

	stepToTask, err := o.materialize(ctx, task, plan)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: materialize plan: %w", err)
	}

	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); o.healthLoop(loopCtx) }()
	go func() { defer wg.Done(); o.assignLoop(loopCtx, task.ID) }()

	err = o.waitForCompletion(ctx, task.ID)
	cancelLoops()
	wg.Wait()

	o.teardown(ctx)

	report := o.synthesize(ctx, task.ID, stepToTask, start)
	return report, err
}

// materialize creates one subtask per PlanStep, preserving dependencies by
// mapping step ids to the subtask ids created for them.
func (o *Orchestrator) materialize(ctx context.Context, parent *types.Task, plan *types.ExecutionPlan) (map[string]string, error) {
	stepToTask := make(map[string]string, len(plan.Steps))
	for _, step := range plan.Steps {
		stepToTask[step.ID] = uuid.NewString()
	}

	for _, step := range plan.Steps {
		deps := make([]string, 0, len(step.Dependencies))
		for _, d := range step.Dependencies {
			deps = append(deps, stepToTask[d])
		}
		sub := &types.Task{
			ID:              stepToTask[step.ID],
			Title:           step.Description,
			Status:          types.TaskStatusPending,
			Priority:        parent.Priority,
			Dependencies:    deps,
			EstimatedEffort: step.EstimatedDuration,
			Parent:          parent.ID,
		}
		if err := o.st.CreateTask(ctx, sub); err != nil {
			return nil, fmt.Errorf("create subtask for step %s: %w", step.ID, err)
		}
	}
	return stepToTask, nil
}

// healthLoop runs the health/recovery tick on healthInterval until ctx is
// cancelled (spec §4.5 step 5).
func (o *Orchestrator) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(o.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.reg.TickWithThresholds(ctx, o.staleThreshold, o.stuckThreshold); err != nil {
				o.logger.Error(ctx, "health tick failed", "err", err)
			}
		}
	}
}

// assignLoop ensures enough idle/spawned agents exist to work through
// parentID's pending subtasks, bounded by maxConcurrentAgents. Actual
// claiming stays with each Worker's own poll loop (spec §4.4); this loop
// only keeps the right-shaped agent population alive (spec §4.5 step 4).
func (o *Orchestrator) assignLoop(ctx context.Context, parentID string) {
	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.ensureAgentsForPending(ctx, parentID)
			o.reconcileProgress(ctx, parentID)
		}
	}
}

func (o *Orchestrator) ensureAgentsForPending(ctx context.Context, parentID string) {
	pending, err := o.st.ListByStatus(ctx, types.TaskStatusPending)
	if err != nil {
		o.logger.Error(ctx, "list pending subtasks failed", "err", err)
		return
	}

	activeAgents := o.activeWorkerCount()
	budget := o.maxConcurrentAgents - activeAgents
	if budget <= 0 {
		return
	}

	needed := make(map[types.AgentType]bool)
	for _, t := range pending {
		if t.Parent != parentID {
			continue
		}
		needed[InferAgentType(t)] = true
	}

	for agentType := range needed {
		if budget <= 0 {
			return
		}
		hasIdle := false
		for _, a := range o.reg.List() {
			if a.Type == agentType && a.Status == types.AgentStatusIdle {
				hasIdle = true
				break
			}
		}
		if hasIdle {
			continue
		}
		if _, err := o.Spawn(ctx, agentType, nil); err != nil {
			o.logger.Error(ctx, "spawn agent failed", "agent_type", string(agentType), "err", err)
			continue
		}
		budget--
	}
}

func (o *Orchestrator) activeWorkerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.workerCancels)
}

// contextBudgetEstimate is a coarse tracked working-set size: 1000 tokens
// per live worker plus per pending/in-progress subtask, since that is the
// state the orchestrator must hold in memory to keep driving the run
// (spec §4.5 "context-budget rule").
func (o *Orchestrator) contextBudgetEstimate(pending, inProgress int) int {
	return (o.activeWorkerCount() + pending + inProgress) * 1000
}

// reconcileProgress checks the working-set estimate and offloads to the
// Memory Offload subsystem when it crosses 80% of the configured limit
// (spec §4.5, §4.10).
func (o *Orchestrator) reconcileProgress(ctx context.Context, parentID string) {
	if o.offload == nil {
		return
	}
	pending, _ := o.st.ListByStatus(ctx, types.TaskStatusPending)
	inProgress, _ := o.st.ListByStatus(ctx, types.TaskStatusInProgress)
	estimate := o.contextBudgetEstimate(len(pending), len(inProgress))
	if !o.offload.ShouldOffload(estimate) {
		return
	}

	state := o.snapshotState(parentID, pending, inProgress)
	if err := o.offload.Checkpoint(ctx, state); err != nil {
		o.logger.Error(ctx, "memory offload checkpoint failed", "err", err)
		return
	}
	o.logger.Info(ctx, "memory offload checkpoint written", "parent_task_id", parentID, "estimate", estimate)
}

func (o *Orchestrator) snapshotState(parentID string, pending, inProgress []*types.Task) bridge.OrchestrationState {
	completed, _ := o.st.ListByStatus(context.Background(), types.TaskStatusCompleted)
	failed, _ := o.st.ListByStatus(context.Background(), types.TaskStatusFailed)

	var subtaskIDs, completedIDs, failedIDs, blockedIDs, activeWorkers []string
	for _, t := range append(append(append(append([]*types.Task{}, pending...), inProgress...), completed...), failed...) {
		if t.Parent != parentID {
			continue
		}
		subtaskIDs = append(subtaskIDs, t.ID)
	}
	for _, t := range completed {
		if t.Parent == parentID {
			completedIDs = append(completedIDs, t.ID)
		}
	}
	for _, t := range failed {
		if t.Parent == parentID {
			failedIDs = append(failedIDs, t.ID)
		}
	}
	for _, t := range pending {
		if t.Parent == parentID && t.BlockedBy != "" {
			blockedIDs = append(blockedIDs, t.ID)
		}
	}
	o.mu.Lock()
	for agentID := range o.workerCancels {
		activeWorkers = append(activeWorkers, agentID)
	}
	o.mu.Unlock()

	return bridge.OrchestrationState{
		OrchestratorID:   o.ID,
		ParentTaskID:     parentID,
		SubtaskIDs:       subtaskIDs,
		ActiveWorkerIDs:  activeWorkers,
		CompletedTaskIDs: completedIDs,
		FailedTaskIDs:    failedIDs,
		BlockedTaskIDs:   blockedIDs,
		Counters: map[string]int{
			"pending":     len(pending),
			"in_progress": len(inProgress),
		},
		Reason: "context budget threshold crossed",
	}
}

// waitForCompletion blocks until every subtask of parentID is terminal, or
// a critical subtask has exhausted its retries (spec §4.5 step 6).
func (o *Orchestrator) waitForCompletion(ctx context.Context, parentID string) error {
	ticker := time.NewTicker(o.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			all, err := o.subtasksOf(ctx, parentID)
			if err != nil {
				o.logger.Error(ctx, "list subtasks failed", "err", err)
				continue
			}
			if len(all) == 0 {
				return nil
			}
			done := true
			for _, t := range all {
				if !t.Status.IsTerminal() {
					done = false
				}
				if t.Status == types.TaskStatusFailed && t.Priority == types.TaskPriorityCritical && t.RetryCount >= criticalRetryExhausted {
					return fmt.Errorf("orchestrator: critical subtask %s failed: %s", t.ID, t.BlockedBy)
				}
			}
			if done {
				return nil
			}
		}
	}
}

func (o *Orchestrator) subtasksOf(ctx context.Context, parentID string) ([]*types.Task, error) {
	var out []*types.Task
	for _, status := range []types.TaskStatus{
		types.TaskStatusPending, types.TaskStatusInProgress,
		types.TaskStatusCompleted, types.TaskStatusFailed,
	} {
		tasks, err := o.st.ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if t.Parent == parentID {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// teardown cancels every worker this orchestrator spawned (spec §4.5
// step 7 "tear down workers").
func (o *Orchestrator) teardown(ctx context.Context) {
	o.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.workerCancels))
	for agentID, cancel := range o.workerCancels {
		cancels = append(cancels, cancel)
		o.reg.Deregister(agentID)
	}
	o.workerCancels = make(map[string]context.CancelFunc)
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// synthesize gathers each subtask's terminal state into a SynthesisReport
// (spec §4.5 step 7).
func (o *Orchestrator) synthesize(ctx context.Context, parentID string, stepToTask map[string]string, start time.Time) *SynthesisReport {
	all, err := o.subtasksOf(ctx, parentID)
	if err != nil {
		o.logger.Error(ctx, "synthesize: list subtasks failed", "err", err)
	}

	report := &SynthesisReport{ParentTaskID: parentID, Success: true, Duration: o.now().Sub(start)}
	for _, t := range all {
		outcome := StepOutcome{TaskID: t.ID, Title: t.Title, Status: t.Status}
		if t.Status == types.TaskStatusFailed {
			outcome.FailureReason = t.BlockedBy
			report.Success = false
		}
		if !t.Status.IsTerminal() {
			report.Success = false
		}
		report.Steps = append(report.Steps, outcome)
	}
	_ = stepToTask
	return report
}
