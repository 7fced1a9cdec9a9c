package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// OrchestrationState is the compact checkpoint of an orchestrator's
// in-flight work, serialized into the episodic store when the tracked
// working-set estimate crosses the configured threshold (spec §4.10).
type OrchestrationState struct {
	OrchestratorID  string
	ParentTaskID    string
	SubtaskIDs      []string
	ActiveWorkerIDs []string
	CompletedTaskIDs []string
	FailedTaskIDs   []string
	BlockedTaskIDs  []string
	Counters        map[string]int
	Reason          string
}

// OffloadSummary is the minimal-context projection of an OrchestrationState:
// just ids and counters, for lean operation after a restore (spec §4.10).
type OffloadSummary struct {
	OrchestratorID  string
	ParentTaskID    string
	SubtaskCount    int
	ActiveWorkerCount int
	CompletedCount  int
	FailedCount     int
	BlockedCount    int
	Counters        map[string]int
}

// Summarize projects s down to an OffloadSummary.
func Summarize(s OrchestrationState) OffloadSummary {
	return OffloadSummary{
		OrchestratorID:    s.OrchestratorID,
		ParentTaskID:      s.ParentTaskID,
		SubtaskCount:      len(s.SubtaskIDs),
		ActiveWorkerCount: len(s.ActiveWorkerIDs),
		CompletedCount:    len(s.CompletedTaskIDs),
		FailedCount:       len(s.FailedTaskIDs),
		BlockedCount:      len(s.BlockedTaskIDs),
		Counters:          s.Counters,
	}
}

// CheckpointAppender is the narrow episodic-store slice Memory Offload
// needs: append a single high-importance checkpoint event. A real
// deployment backs this with the same durable store as
// internal/consolidation.EventStore; the core depends only on this
// interface, per the "cyclic references" resolution (SPEC_FULL §9).
type CheckpointAppender interface {
	Append(e *types.EpisodicEvent) *types.EpisodicEvent
}

// checkpointImportance is the Surprise value stamped on checkpoint events
// so they sort as "high-importance" alongside genuinely surprising events,
// per spec §4.10 "a single high-importance event".
const checkpointImportance = 5.0

// MemoryOffload checkpoints oversized orchestrator state into an episodic
// store and restores it on restart (spec §4.10 "Memory offload").
type MemoryOffload struct {
	events CheckpointAppender
	limit  int
	now    func() time.Time

	mu          sync.Mutex
	checkpoints []*types.EpisodicEvent // local index, newest last
}

// OffloadOption configures a MemoryOffload.
type OffloadOption func(*MemoryOffload)

func WithTokenLimit(limit int) OffloadOption {
	return func(m *MemoryOffload) { m.limit = limit }
}

func WithOffloadClock(fn func() time.Time) OffloadOption {
	return func(m *MemoryOffload) { m.now = fn }
}

// NewMemoryOffload constructs a MemoryOffload backed by events, with the
// spec §6 default context_token_limit of 200,000 unless overridden.
func NewMemoryOffload(events CheckpointAppender, opts ...OffloadOption) *MemoryOffload {
	m := &MemoryOffload{
		events: events,
		limit:  200_000,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ShouldOffload reports whether trackedTokens has crossed 80% of the
// configured context_token_limit (spec §4.5 "context-budget rule").
func (m *MemoryOffload) ShouldOffload(trackedTokens int) bool {
	return float64(trackedTokens) >= 0.8*float64(m.limit)
}

// Checkpoint serializes state as a single high-importance episodic event
// and indexes it locally for fast restore lookups.
func (m *MemoryOffload) Checkpoint(ctx context.Context, state OrchestrationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("bridge: marshal checkpoint: %w", err)
	}
	surprise := checkpointImportance
	e := &types.EpisodicEvent{
		ID:        uuid.NewString(),
		Timestamp: m.now(),
		Type:      types.EventTypeCheckpoint,
		Content:   string(data),
		Outcome:   types.EventOutcomeOngoing,
		Surprise:  &surprise,
		Task:      state.ParentTaskID,
	}
	stored := m.events.Append(e)

	m.mu.Lock()
	m.checkpoints = append(m.checkpoints, stored)
	m.mu.Unlock()
	return nil
}

// Restore reconstructs the most recent OrchestrationState checkpointed for
// parentTaskID, if any (spec §4.10 "restore from the most recent such
// checkpoint matching the parent task").
func (m *MemoryOffload) Restore(ctx context.Context, parentTaskID string) (OrchestrationState, bool, error) {
	m.mu.Lock()
	candidates := make([]*types.EpisodicEvent, 0, len(m.checkpoints))
	for _, e := range m.checkpoints {
		if e.Type == types.EventTypeCheckpoint && e.Task == parentTaskID {
			candidates = append(candidates, e)
		}
	}
	m.mu.Unlock()

	if len(candidates) == 0 {
		return OrchestrationState{}, false, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})
	latest := candidates[0]

	var state OrchestrationState
	if err := json.Unmarshal([]byte(latest.Content), &state); err != nil {
		return OrchestrationState{}, false, fmt.Errorf("bridge: unmarshal checkpoint: %w", err)
	}
	return state, true, nil
}
