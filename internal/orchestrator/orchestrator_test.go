package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/orchestrator"
	"github.com/shawkridge/athena-sub007/internal/planner"
	"github.com/shawkridge/athena-sub007/internal/registry"
	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// lateBoundSpawner forwards Spawn calls to target once it is set, breaking
// the registry<->orchestrator construction cycle (same shape as
// cmd/orchestratord's wiring).
type lateBoundSpawner struct {
	target registry.Spawner
}

func (s *lateBoundSpawner) Spawn(ctx context.Context, agentType types.AgentType, capabilities []string) (string, error) {
	if s.target == nil {
		return "", errors.New("spawner not yet wired")
	}
	return s.target.Spawn(ctx, agentType, capabilities)
}

func newWiredOrchestrator(t *testing.T, opts ...orchestrator.Option) (*orchestrator.Orchestrator, store.Store) {
	t.Helper()
	st := store.New(nil)
	shim := &lateBoundSpawner{}
	reg := registry.New(st, shim)
	pl := planner.New()

	allOpts := append([]orchestrator.Option{
		orchestrator.WithMaxConcurrentAgents(4),
		orchestrator.WithHealthInterval(20 * time.Millisecond),
		orchestrator.WithProgressInterval(20 * time.Millisecond),
		orchestrator.WithAssignLoopInterval(10 * time.Millisecond),
		orchestrator.WithStaleThreshold(time.Hour),
		orchestrator.WithStuckThreshold(time.Hour),
	}, opts...)

	o := orchestrator.New("orch-test", st, reg, pl, allOpts...)
	shim.target = o
	return o, st
}

// TestRunDefaultDecompositionCompletesAllFourSteps drives a parent task
// through the default linear plan -> implement -> test -> deploy
// decomposition end to end, using the package's default "always succeeds"
// executor factory.
func TestRunDefaultDecompositionCompletesAllFourSteps(t *testing.T) {
	o, st := newWiredOrchestrator(t)

	parent := &types.Task{Title: "ship the feature", Status: types.TaskStatusPending, Priority: types.TaskPriorityMedium}
	require.NoError(t, st.CreateTask(context.Background(), parent))

	// Each materialized subtask has its own inferred agent type and the
	// default linear plan chains all four by dependency, so a worker that
	// finds its step not yet unblocked falls back to the worker package's
	// default 5s poll interval (Orchestrator.Spawn does not override it).
	// Three completions have to cascade through that poll interval in the
	// worst case, so this needs real wall-clock headroom, not a tight
	// timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	report, err := o.Run(ctx, parent, types.Strategy(""), "")
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Success)
	require.Len(t, report.Steps, 4)
	for _, step := range report.Steps {
		assert.Equal(t, types.TaskStatusCompleted, step.Status)
	}
}

// TestRunWithStrategyUsesStrategyAwareDecomposition exercises the
// non-default DecomposeWithStrategy path through Run.
func TestRunWithStrategyUsesStrategyAwareDecomposition(t *testing.T) {
	o, st := newWiredOrchestrator(t)

	parent := &types.Task{Title: "investigate the outage", Status: types.TaskStatusPending, Priority: types.TaskPriorityHigh}
	require.NoError(t, st.CreateTask(context.Background(), parent))

	// The spike shape chains research -> implement -> test, so (as in
	// TestRunDefaultDecompositionCompletesAllFourSteps) the worst case is
	// two cascading waits on the worker package's default 5s poll interval.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	report, err := o.Run(ctx, parent, types.StrategySpike, "time-boxed investigation")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Success)
	assert.NotEmpty(t, report.Steps)
}

// TestRunAbortsWhenCriticalSubtaskExhaustsRetries is spec §4.5 step 6's
// early-abort path: a critical subtask that keeps failing until its retry
// count exhausts causes Run to return an error rather than hang forever.
// MaxConcurrentAgents(0) keeps the orchestrator's own assign loop from ever
// spawning a worker, so the forcing goroutine below is the only thing
// claiming and failing the materialized subtasks, making the retry
// progression deterministic.
func TestRunAbortsWhenCriticalSubtaskExhaustsRetries(t *testing.T) {
	st := store.New(nil)
	shim := &lateBoundSpawner{}
	reg := registry.New(st, shim)
	pl := planner.New()

	o := orchestrator.New("orch-fail", st, reg, pl,
		orchestrator.WithMaxConcurrentAgents(0),
		orchestrator.WithHealthInterval(time.Hour),
		orchestrator.WithProgressInterval(10*time.Millisecond),
		orchestrator.WithAssignLoopInterval(10*time.Millisecond),
		orchestrator.WithStaleThreshold(time.Hour),
		orchestrator.WithStuckThreshold(time.Hour),
	)
	shim.target = o

	parent := &types.Task{Title: "always fails", Status: types.TaskStatusPending, Priority: types.TaskPriorityCritical}
	require.NoError(t, st.CreateTask(context.Background(), parent))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Materialize creates all four subtasks as pending immediately (only
	// FindAvailable, which nothing here calls, gates on unmet
	// dependencies), so any one of them is a valid target: drive one
	// through claim -> fail -> reset three times, then a final claim ->
	// fail with no reset, leaving it Failed at RetryCount ==
	// criticalRetryExhausted.
	go func() {
		var targetStepID string
		for {
			pending, _ := st.ListByStatus(context.Background(), types.TaskStatusPending)
			for _, sub := range pending {
				if sub.Parent == parent.ID {
					targetStepID = sub.ID
				}
			}
			if targetStepID != "" {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		for i := 0; i < 3; i++ {
			claimed, err := st.Claim(context.Background(), "forced-agent", targetStepID)
			if err != nil {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			_ = st.Fail(context.Background(), "forced-agent", claimed.ID, "injected failure")
			_ = st.ResetToPending(context.Background(), claimed.ID)
		}

		for {
			claimed, err := st.Claim(context.Background(), "forced-agent", targetStepID)
			if err != nil {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			_ = st.Fail(context.Background(), "forced-agent", claimed.ID, "injected failure")
			break
		}
	}()

	_, err := o.Run(ctx, parent, types.Strategy(""), "")
	assert.Error(t, err, "a critical subtask exhausting its retries should abort the run")
}
