package executive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// DependencyFactor reports how strongly other active goals depend on g,
// in [0,1]. The core ships a simple default (0 unless g is itself a
// dependency referenced by a subgoal's Parent); callers with a richer
// dependency graph may supply their own via WithDependencyFactor.
type DependencyFactor func(g *types.Goal, all []*types.Goal) float64

func defaultDependencyFactor(g *types.Goal, all []*types.Goal) float64 {
	dependents := 0
	for _, other := range all {
		if other.Parent == g.ID {
			dependents++
		}
	}
	if dependents == 0 {
		return 0
	}
	score := float64(dependents) / 3.0
	if score > 1 {
		score = 1
	}
	return score
}

// ConflictResolver scores and resolves competing goals (spec §4.7).
type ConflictResolver struct {
	logger     telemetry.Logger
	dependency DependencyFactor
	now        func() time.Time

	mu  sync.Mutex
	log []Resolution
}

// ResolverOption configures a ConflictResolver.
type ResolverOption func(*ConflictResolver)

func WithResolverLogger(l telemetry.Logger) ResolverOption {
	return func(r *ConflictResolver) { r.logger = l }
}

func WithDependencyFactor(fn DependencyFactor) ResolverOption {
	return func(r *ConflictResolver) { r.dependency = fn }
}

// NewConflictResolver constructs a ConflictResolver.
func NewConflictResolver(opts ...ResolverOption) *ConflictResolver {
	r := &ConflictResolver{
		logger:     telemetry.NewNoopLogger(),
		dependency: defaultDependencyFactor,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// UrgencyFromDeadline maps a deadline into the urgency table from spec §4.7:
// <=0 days -> 1.0, <=3 -> 0.9, <=7 -> 0.5, <=14 -> 0.2, else 0. A zero
// deadline (none set) is treated as no urgency.
func UrgencyFromDeadline(deadline time.Time, now time.Time) float64 {
	if deadline.IsZero() {
		return 0
	}
	days := deadline.Sub(now).Hours() / 24.0
	switch {
	case days <= 0:
		return 1.0
	case days <= 3:
		return 0.9
	case days <= 7:
		return 0.5
	case days <= 14:
		return 0.2
	default:
		return 0
	}
}

// Score computes the priority score for g among the full candidate set all:
//
//	0.4*explicit_priority(normalized) + 0.3*deadline_urgency + 0.2*dependency_factor + 0.1*progress
//
// explicit_priority is normalized from its 1..10 scale to [0,1].
func (r *ConflictResolver) Score(g *types.Goal, all []*types.Goal) float64 {
	normPriority := float64(g.Priority) / 10.0
	urgency := UrgencyFromDeadline(g.Deadline, r.now())
	dep := r.dependency(g, all)
	return 0.4*normPriority + 0.3*urgency + 0.2*dep + 0.1*g.Progress
}

// Resolution records one conflict-resolution decision with its reasoning,
// per spec §4.7 "all resolutions are logged with reasoning".
type Resolution struct {
	Timestamp    time.Time
	PrimaryGoal  string
	Suspended    []string
	Scores       map[string]float64
	Reasoning    string
}

const suspendRelativeAllocation = 0.5

// Resolve scores every goal in candidates, selects the highest as primary,
// and flags goals whose score falls below suspendRelativeAllocation of the
// primary's score as suspend candidates. Returns the Resolution, which is
// also appended to the resolver's log unless candidates is empty.
func (r *ConflictResolver) Resolve(ctx context.Context, candidates []*types.Goal) Resolution {
	scores := make(map[string]float64, len(candidates))
	for _, g := range candidates {
		scores[g.ID] = r.Score(g, candidates)
	}

	ordered := append([]*types.Goal(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return scores[ordered[i].ID] > scores[ordered[j].ID]
	})

	res := Resolution{Timestamp: r.now(), Scores: scores}
	if len(ordered) == 0 {
		return res
	}

	primary := ordered[0]
	res.PrimaryGoal = primary.ID
	primaryScore := scores[primary.ID]

	var reasoning string
	if primaryScore > 0 {
		reasoning = "selected " + primary.ID + " as primary by composite score"
	}
	for _, g := range ordered[1:] {
		if primaryScore <= 0 {
			continue
		}
		relative := scores[g.ID] / primaryScore
		if relative < suspendRelativeAllocation {
			res.Suspended = append(res.Suspended, g.ID)
		}
	}
	res.Reasoning = reasoning

	r.mu.Lock()
	r.log = append(r.log, res)
	r.mu.Unlock()
	r.logger.Info(ctx, "conflict resolved", "primary_goal", res.PrimaryGoal, "suspended_count", len(res.Suspended))

	return res
}

// Log returns a snapshot of every past resolution, oldest first.
func (r *ConflictResolver) Log() []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Resolution(nil), r.log...)
}
