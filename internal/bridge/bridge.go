// Package bridge implements the Orchestration Bridge and Memory Offload
// subsystem (spec §4.10): converting a Goal into the decomposition context
// the Planner needs, ranking goals to recommend what to activate next, and
// checkpointing oversized orchestrator state into the episodic store.
package bridge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shawkridge/athena-sub007/internal/executive"
	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// Selector is the slice of the Strategy Selector the bridge calls, keeping
// the orchestrator/executive/bridge/planner cycle broken per SPEC_FULL §9.
type Selector interface {
	Select(ctx context.Context, g *types.Goal, relatedGoals int, blockers int) []executive.StrategyScore
}

// DecompositionContext is a Goal converted into what the Planner needs to
// bias a step DAG: the chosen strategy, the selector's confidence in it,
// its reasoning, and the runner-up alternatives (spec §4.10).
type DecompositionContext struct {
	GoalID       string
	Strategy     types.Strategy
	Confidence   float64
	Reasoning    string
	Alternatives []executive.StrategyScore
}

const (
	rankPriorityWeight = 0.4
	rankUrgencyWeight  = 0.35
	rankProgressWeight = 0.15
	rankOnTrackWeight  = 0.10
	// onTrackProgressFloor is the progress fraction above which a goal
	// earns the full on-track bonus: spec §4.10 rewards goals that are
	// "on track" (close to done) alongside raw urgency, so a
	// near-complete goal can outrank a higher-priority one that has
	// barely started (spec §8 scenario 4).
	onTrackProgressFloor = 0.5
)

// RankedGoal is one goal's composite ranking score (spec §4.10).
type RankedGoal struct {
	Goal  *types.Goal
	Score float64
}

// Bridge converts goals to decomposition contexts and ranks goals for the
// "what next" recommendation. Memory Offload checkpoints are kept by the
// separate MemoryOffload type, not by Bridge.
type Bridge struct {
	selector Selector
	logger   telemetry.Logger
	now      func() time.Time

	snapMu   sync.Mutex
	snapshots map[string][]GoalHealthSnapshot
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithLogger(l telemetry.Logger) Option { return func(b *Bridge) { b.logger = l } }
func WithClock(fn func() time.Time) Option { return func(b *Bridge) { b.now = fn } }

// New constructs a Bridge over selector, the Strategy Selector used to
// produce decomposition contexts.
func New(selector Selector, opts ...Option) *Bridge {
	b := &Bridge{
		selector:  selector,
		logger:    telemetry.NewNoopLogger(),
		now:       func() time.Time { return time.Now().UTC() },
		snapshots: make(map[string][]GoalHealthSnapshot),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ToDecompositionContext scores g's strategies and returns the top choice
// as a DecompositionContext, with the remaining top-k as alternatives.
func (b *Bridge) ToDecompositionContext(ctx context.Context, g *types.Goal, relatedGoals, blockers int) DecompositionContext {
	scores := b.selector.Select(ctx, g, relatedGoals, blockers)
	if len(scores) == 0 {
		return DecompositionContext{GoalID: g.ID, Strategy: types.StrategyTopDown, Confidence: 0.5}
	}
	top := scores[0]
	return DecompositionContext{
		GoalID:       g.ID,
		Strategy:     top.Strategy,
		Confidence:   top.Score,
		Reasoning:    top.Reasoning,
		Alternatives: scores[1:],
	}
}

// onTrackBonus rewards a goal whose progress is already past the halfway
// mark: finishing nearly-done work outranks starting high-priority work
// (spec §4.10, §8 scenario 4). This is the core's pinned resolution of the
// spec's otherwise-undefined "on-track bonus" term.
func onTrackBonus(g *types.Goal) float64 {
	if g.Progress >= onTrackProgressFloor {
		return 1.0
	}
	return 0.0
}

// Score computes g's composite ranking score:
//
//	0.4*priority(normalized) + 0.35*deadline_urgency + 0.15*progress + 0.10*on_track_bonus
func (b *Bridge) Score(g *types.Goal) float64 {
	normPriority := float64(g.Priority) / 10.0
	urgency := executive.UrgencyFromDeadline(g.Deadline, b.now())
	return rankPriorityWeight*normPriority +
		rankUrgencyWeight*urgency +
		rankProgressWeight*g.Progress +
		rankOnTrackWeight*onTrackBonus(g)
}

// RankGoals scores every goal in goals and returns them ordered highest
// score first.
func (b *Bridge) RankGoals(goals []*types.Goal) []RankedGoal {
	out := make([]RankedGoal, 0, len(goals))
	for _, g := range goals {
		out = append(out, RankedGoal{Goal: g, Score: b.Score(g)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// RecommendNext returns the highest-scoring active goal among goals, or
// false if none are active.
func (b *Bridge) RecommendNext(goals []*types.Goal) (*types.Goal, bool) {
	var active []*types.Goal
	for _, g := range goals {
		if g.Status == types.GoalStatusActive {
			active = append(active, g)
		}
	}
	ranked := b.RankGoals(active)
	if len(ranked) == 0 {
		return nil, false
	}
	return ranked[0].Goal, true
}

// GoalHealthSnapshot is a point-in-time health record at the goal level,
// letting the bridge report goal-scoped health metrics rather than only
// task-scoped ones (spec §4.10 "health metrics exist at the goal level").
type GoalHealthSnapshot struct {
	GoalID        string
	Timestamp     time.Time
	PlanID        string
	Strategy      types.Strategy
	Confidence    float64
	ActiveSteps   int
	FailedSteps   int
	CompletedSteps int
}

// RecordSnapshot appends a GoalHealthSnapshot for its goal.
func (b *Bridge) RecordSnapshot(snap GoalHealthSnapshot) {
	b.snapMu.Lock()
	defer b.snapMu.Unlock()
	b.snapshots[snap.GoalID] = append(b.snapshots[snap.GoalID], snap)
}

// GoalSnapshots returns the recorded health snapshots for goalID, oldest
// first.
func (b *Bridge) GoalSnapshots(goalID string) []GoalHealthSnapshot {
	b.snapMu.Lock()
	defer b.snapMu.Unlock()
	return append([]GoalHealthSnapshot(nil), b.snapshots[goalID]...)
}
