// Package registry implements the Agent Registry & Health Monitor (spec
// §4.2): it tracks every spawned worker, detects stale heartbeats and
// stuck/retryable tasks, and drives the fixed recovery policy. It is the
// only component permitted to mutate agent liveness or unclaim another
// agent's task.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// Spawner (re)starts a worker process/goroutine for a given agent type,
// returning the new agent's ID. Supplied by the orchestrator so the
// registry's respawn policy stays decoupled from worker construction.
type Spawner interface {
	Spawn(ctx context.Context, agentType types.AgentType, capabilities []string) (string, error)
}

// Registry is the Agent Registry & Health Monitor contract.
type Registry interface {
	Register(ctx context.Context, agentType types.AgentType, capabilities []string) (string, error)
	Heartbeat(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status types.AgentStatus) error

	// RecordDecision folds a completed decision into the agent's rolling
	// metrics (spec §4.4 step 6): decisions++, successes++ or errors++, a
	// running mean latency, and a bounded ring of confidence values.
	RecordDecision(id string, success bool, confidence float64, latency time.Duration) error

	Get(id string) (*types.Agent, bool)
	List() []*types.Agent
	Deregister(id string)

	// DetectStale returns agents whose last heartbeat is older than
	// threshold and whose status is not already offline.
	DetectStale(threshold time.Duration) []*types.Agent

	// Tick runs one round of the health/recovery policy using the default
	// 60s/300s stale/stuck thresholds: stale agents are marked offline,
	// their in-progress tasks fail and requeue, stuck tasks are
	// force-failed and requeued, and retryable failed tasks are reset to
	// pending. Respawn attempts (up to 3, exponential backoff from 10s)
	// are attempted for agents that just went offline.
	Tick(ctx context.Context) (TickReport, error)

	// TickWithThresholds is Tick with explicit stale/stuck thresholds, used
	// by callers (the orchestrator) that own the configured values
	// (spec §6).
	TickWithThresholds(ctx context.Context, staleThreshold, stuckThreshold time.Duration) (TickReport, error)
}

// TickReport summarizes the outcome of one health-monitor tick, useful for
// tests and observability.
type TickReport struct {
	StaleAgents        []string
	StuckTasks         []string
	RetriedTasks       []string
	RespawnAttempted   []string
	RespawnAbandoned   []string
}

const (
	maxRespawnAttempts = 3
	maxRetryAttempts   = 3
	respawnBaseDelay   = 10 * time.Second
)

type healthMonitor struct {
	st      store.Store
	spawner Spawner
	logger  telemetry.Logger
	clock   func() time.Time

	mu     sync.RWMutex
	agents map[string]*types.Agent
}

// Option configures a Registry.
type Option func(*healthMonitor)

// WithLogger sets the logger used for recovery decisions.
func WithLogger(l telemetry.Logger) Option {
	return func(h *healthMonitor) { h.logger = l }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(h *healthMonitor) { h.clock = fn }
}

// New constructs a Registry backed by st for task recovery and spawner for
// respawn attempts.
func New(st store.Store, spawner Spawner, opts ...Option) Registry {
	h := &healthMonitor{
		st:      st,
		spawner: spawner,
		logger:  telemetry.NewNoopLogger(),
		clock:   func() time.Time { return time.Now().UTC() },
		agents:  make(map[string]*types.Agent),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *healthMonitor) Register(ctx context.Context, agentType types.AgentType, capabilities []string) (string, error) {
	if !agentType.IsValid() {
		return "", fmt.Errorf("registry: invalid agent type %q", agentType)
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.agents[id] = &types.Agent{
		ID:            id,
		Type:          agentType,
		Capabilities:  append([]string(nil), capabilities...),
		Status:        types.AgentStatusIdle,
		LastHeartbeat: h.clock(),
	}
	h.mu.Unlock()
	return id, nil
}

func (h *healthMonitor) Heartbeat(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[id]
	if !ok {
		return fmt.Errorf("registry: unknown agent %q", id)
	}
	a.LastHeartbeat = h.clock()
	return nil
}

func (h *healthMonitor) UpdateStatus(ctx context.Context, id string, status types.AgentStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[id]
	if !ok {
		return fmt.Errorf("registry: unknown agent %q", id)
	}
	a.Status = status
	return nil
}

func (h *healthMonitor) RecordDecision(id string, success bool, confidence float64, latency time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.agents[id]
	if !ok {
		return fmt.Errorf("registry: unknown agent %q", id)
	}
	a.RecordDecision(success, confidence, latency)
	return nil
}

func (h *healthMonitor) Get(id string) (*types.Agent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.agents[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (h *healthMonitor) List() []*types.Agent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*types.Agent, 0, len(h.agents))
	for _, a := range h.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func (h *healthMonitor) Deregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.agents, id)
}

func (h *healthMonitor) DetectStale(threshold time.Duration) []*types.Agent {
	now := h.clock()
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*types.Agent
	for _, a := range h.agents {
		if a.Status == types.AgentStatusOffline {
			continue
		}
		if now.Sub(a.LastHeartbeat) > threshold {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// detectStuck returns in-progress tasks whose ClaimedAt predates threshold
// and whose Progress has not reached 100 (spec §4.2).
func (h *healthMonitor) detectStuck(ctx context.Context, threshold time.Duration) ([]*types.Task, error) {
	now := h.clock()
	inProgress, err := h.st.ListByStatus(ctx, types.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("registry: list in-progress tasks: %w", err)
	}
	var out []*types.Task
	for _, t := range inProgress {
		if t.Progress >= 100 {
			continue
		}
		if now.Sub(t.ClaimedAt) > threshold {
			out = append(out, t)
		}
	}
	return out, nil
}

// detectRetryable returns failed tasks whose retry counter is below
// maxRetryAttempts.
func (h *healthMonitor) detectRetryable(ctx context.Context) ([]*types.Task, error) {
	failed, err := h.st.ListByStatus(ctx, types.TaskStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("registry: list failed tasks: %w", err)
	}
	var out []*types.Task
	for _, t := range failed {
		if t.RetryCount < maxRetryAttempts {
			out = append(out, t)
		}
	}
	return out, nil
}

// Tick runs one health-check cycle. Background loops never exit on a
// single iteration's error (spec §7): failures here are logged and the
// caller is expected to keep calling Tick on its own schedule.
func (h *healthMonitor) Tick(ctx context.Context) (TickReport, error) {
	return h.tick(ctx, 60*time.Second, 300*time.Second)
}

// TickWithThresholds exposes the stale/stuck thresholds explicitly, used by
// the orchestrator which owns the configured values (spec §6).
func (h *healthMonitor) TickWithThresholds(ctx context.Context, staleThreshold, stuckThreshold time.Duration) (TickReport, error) {
	return h.tick(ctx, staleThreshold, stuckThreshold)
}

func (h *healthMonitor) tick(ctx context.Context, staleThreshold, stuckThreshold time.Duration) (TickReport, error) {
	var report TickReport

	for _, a := range h.DetectStale(staleThreshold) {
		report.StaleAgents = append(report.StaleAgents, a.ID)
		if err := h.recoverStaleAgent(ctx, a); err != nil {
			h.logger.Error(ctx, "recover stale agent failed", "agent_id", a.ID, "err", err)
			continue
		}
		if respawned := h.attemptRespawn(ctx, a); respawned {
			report.RespawnAttempted = append(report.RespawnAttempted, a.ID)
		} else {
			report.RespawnAbandoned = append(report.RespawnAbandoned, a.ID)
		}
	}

	stuck, err := h.detectStuck(ctx, stuckThreshold)
	if err != nil {
		h.logger.Error(ctx, "detect stuck tasks failed", "err", err)
	}
	for _, t := range stuck {
		report.StuckTasks = append(report.StuckTasks, t.ID)
		if err := h.failAndRequeue(ctx, t.ID, "stuck: no progress since claim"); err != nil {
			h.logger.Error(ctx, "requeue stuck task failed", "task_id", t.ID, "err", err)
		}
	}

	retryable, err := h.detectRetryable(ctx)
	if err != nil {
		h.logger.Error(ctx, "detect retryable tasks failed", "err", err)
	}
	for _, t := range retryable {
		if err := h.st.ResetToPending(ctx, t.ID); err != nil {
			h.logger.Error(ctx, "reset retryable task failed", "task_id", t.ID, "err", err)
			continue
		}
		report.RetriedTasks = append(report.RetriedTasks, t.ID)
	}

	return report, nil
}

// recoverStaleAgent marks the agent offline and fails all its in-progress
// tasks so they return to the retry stream (spec §4.2, scenario 2).
func (h *healthMonitor) recoverStaleAgent(ctx context.Context, a *types.Agent) error {
	h.mu.Lock()
	if agent, ok := h.agents[a.ID]; ok {
		agent.Status = types.AgentStatusOffline
	}
	h.mu.Unlock()

	inProgress, err := h.st.ListByStatus(ctx, types.TaskStatusInProgress)
	if err != nil {
		return fmt.Errorf("list in-progress tasks: %w", err)
	}
	for _, t := range inProgress {
		if t.AssignedAgent != a.ID {
			continue
		}
		if err := h.failAndRequeue(ctx, t.ID, fmt.Sprintf("agent %s offline: stale heartbeat", a.ID)); err != nil {
			h.logger.Error(ctx, "fail task for offline agent failed", "task_id", t.ID, "agent_id", a.ID, "err", err)
		}
	}
	return nil
}

// failAndRequeue force-fails a task (bypassing the assigned-agent guard,
// which only the health monitor may do). The retry pass later in the same
// tick resets it to pending with a bumped retry counter while that counter
// is below the retry cap, and lists it in TickReport.RetriedTasks.
func (h *healthMonitor) failAndRequeue(ctx context.Context, taskID, reason string) error {
	return h.st.Fail(ctx, "", taskID, reason)
}

// attemptRespawn tries up to maxRespawnAttempts times, with exponential
// backoff starting at respawnBaseDelay, to bring up a replacement agent of
// the same type. Returns false if attempts are exhausted and the agent is
// abandoned.
func (h *healthMonitor) attemptRespawn(ctx context.Context, a *types.Agent) bool {
	if h.spawner == nil {
		return false
	}
	if a.RestartCount >= maxRespawnAttempts {
		return false
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = respawnBaseDelay

	op := func() (string, error) {
		return h.spawner.Spawn(ctx, a.Type, a.Capabilities)
	}
	newID, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(maxRespawnAttempts-a.RestartCount))
	if err != nil {
		h.logger.Error(ctx, "respawn exhausted", "agent_id", a.ID, "agent_type", a.Type, "err", err)
		return false
	}

	h.mu.Lock()
	if agent, ok := h.agents[a.ID]; ok {
		agent.RestartCount++
	}
	h.mu.Unlock()
	h.logger.Info(ctx, "respawned agent", "old_agent_id", a.ID, "new_agent_id", newID, "agent_type", a.Type)
	return true
}
