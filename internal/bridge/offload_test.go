package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/bridge"
	"github.com/shawkridge/athena-sub007/internal/consolidation"
)

func TestShouldOffloadCrosses80PercentThreshold(t *testing.T) {
	m := bridge.NewMemoryOffload(consolidation.NewMemoryEventStore(), bridge.WithTokenLimit(1000))
	assert.False(t, m.ShouldOffload(799))
	assert.True(t, m.ShouldOffload(800))
}

// TestCheckpointThenRestoreRoundTrips is spec §8's idempotence property:
// checkpoint then restore reconstructs an OrchestrationState equal to the
// original on {orchestrator id, parent id, subtasks, completed, failed,
// blocked, counters}.
func TestCheckpointThenRestoreRoundTrips(t *testing.T) {
	events := consolidation.NewMemoryEventStore()
	m := bridge.NewMemoryOffload(events, bridge.WithOffloadClock(func() time.Time { return time.Unix(0, 0).UTC() }))

	original := bridge.OrchestrationState{
		OrchestratorID:   "orch-1",
		ParentTaskID:     "task-1",
		SubtaskIDs:       []string{"s1", "s2"},
		ActiveWorkerIDs:  []string{"w1"},
		CompletedTaskIDs: []string{"s1"},
		FailedTaskIDs:    nil,
		BlockedTaskIDs:   []string{"s2"},
		Counters:         map[string]int{"pending": 1},
		Reason:           "context budget threshold crossed",
	}

	require.NoError(t, m.Checkpoint(context.Background(), original))

	restored, ok, err := m.Restore(context.Background(), "task-1")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, original.OrchestratorID, restored.OrchestratorID)
	assert.Equal(t, original.ParentTaskID, restored.ParentTaskID)
	assert.Equal(t, original.SubtaskIDs, restored.SubtaskIDs)
	assert.Equal(t, original.CompletedTaskIDs, restored.CompletedTaskIDs)
	assert.Equal(t, original.FailedTaskIDs, restored.FailedTaskIDs)
	assert.Equal(t, original.BlockedTaskIDs, restored.BlockedTaskIDs)
	assert.Equal(t, original.Counters, restored.Counters)
}

func TestRestoreReturnsFalseWhenNoCheckpointExists(t *testing.T) {
	m := bridge.NewMemoryOffload(consolidation.NewMemoryEventStore())
	_, ok, err := m.Restore(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestorePicksMostRecentCheckpoint(t *testing.T) {
	events := consolidation.NewMemoryEventStore()
	tick := time.Unix(100, 0).UTC()
	m := bridge.NewMemoryOffload(events, bridge.WithOffloadClock(func() time.Time {
		t := tick
		tick = tick.Add(time.Minute)
		return t
	}))

	require.NoError(t, m.Checkpoint(context.Background(), bridge.OrchestrationState{ParentTaskID: "p", Reason: "first"}))
	require.NoError(t, m.Checkpoint(context.Background(), bridge.OrchestrationState{ParentTaskID: "p", Reason: "second"}))

	restored, ok, err := m.Restore(context.Background(), "p")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", restored.Reason)
}
