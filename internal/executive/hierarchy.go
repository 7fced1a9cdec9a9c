// Package executive implements the Executive Function (spec §4.7): the
// goal hierarchy, task switcher, conflict resolver, strategy selector, and
// progress monitor that together rank competing goals, pick a decomposition
// strategy, track milestones, and charge task-switch overhead.
package executive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// MaxGoalDepth is the hierarchy depth bound from spec §3.
const MaxGoalDepth = 5

var (
	// ErrDepthExceeded is returned when creating a goal would exceed
	// MaxGoalDepth.
	ErrDepthExceeded = errors.New("executive: goal hierarchy depth exceeds 5")
	// ErrGoalNotFound is returned by lookups for an unknown goal ID.
	ErrGoalNotFound = errors.New("executive: goal not found")
)

// Hierarchy is CRUD over goals with a depth bound of 5 (spec §4.7).
type Hierarchy struct {
	mu    sync.RWMutex
	goals map[string]*types.Goal
	now   func() time.Time
}

// HierarchyOption configures a Hierarchy.
type HierarchyOption func(*Hierarchy)

// WithClock overrides time.Now, for deterministic tests.
func WithClock(fn func() time.Time) HierarchyOption {
	return func(h *Hierarchy) { h.now = fn }
}

// NewHierarchy constructs an empty goal hierarchy.
func NewHierarchy(opts ...HierarchyOption) *Hierarchy {
	h := &Hierarchy{
		goals: make(map[string]*types.Goal),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Create validates the depth invariant and inserts g, assigning an ID if
// unset.
func (h *Hierarchy) Create(ctx context.Context, g *types.Goal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	depth := 1
	parent := g.Parent
	for parent != "" {
		p, ok := h.goals[parent]
		if !ok {
			break
		}
		depth++
		if depth > MaxGoalDepth {
			return ErrDepthExceeded
		}
		parent = p.Parent
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = types.GoalStatusActive
	}
	now := h.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	cp := *g
	h.goals[g.ID] = &cp
	return nil
}

// Get returns a copy of the goal with id.
func (h *Hierarchy) Get(id string) (*types.Goal, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g, ok := h.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	cp := *g
	return &cp, nil
}

// Update applies fn to the stored goal, bumping UpdatedAt.
func (h *Hierarchy) Update(id string, fn func(*types.Goal)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	fn(g)
	g.UpdatedAt = h.now()
	return nil
}

// Delete removes a goal outright. Prefer Update to set a terminal status;
// Delete is for pruning (see Prune).
func (h *Hierarchy) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.goals, id)
}

// Children returns the direct subgoals of id.
func (h *Hierarchy) Children(id string) []*types.Goal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*types.Goal
	for _, g := range h.goals {
		if g.Parent == id {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out
}

// ListByProject returns all goals for project.
func (h *Hierarchy) ListByProject(project string) []*types.Goal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*types.Goal
	for _, g := range h.goals {
		if g.Project == project {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out
}

// Complete marks id completed. cascade, when true, recursively abandons any
// subgoal that isn't already terminal, enforcing the invariant that a
// completed goal's subgoals are all complete or abandoned (spec §3).
func (h *Hierarchy) Complete(id string, cascade bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	g.Status = types.GoalStatusCompleted
	g.Progress = 1.0
	g.UpdatedAt = h.now()

	if cascade {
		queue := []string{id}
		for len(queue) > 0 {
			parent := queue[0]
			queue = queue[1:]
			for _, child := range h.goals {
				if child.Parent != parent {
					continue
				}
				queue = append(queue, child.ID)
				if !child.Status.IsTerminal() {
					child.Status = types.GoalStatusAbandoned
					child.UpdatedAt = h.now()
				}
			}
		}
	}
	return nil
}

// Prune removes suspended goals that have been idle longer than threshold
// (default 7 days, spec §4.7).
func (h *Hierarchy) Prune(threshold time.Duration) []string {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	var pruned []string
	for id, g := range h.goals {
		if g.Status == types.GoalStatusSuspended && now.Sub(g.UpdatedAt) > threshold {
			pruned = append(pruned, id)
			delete(h.goals, id)
		}
	}
	return pruned
}

// DefaultPruneThreshold is the 7-day default from spec §4.7.
const DefaultPruneThreshold = 7 * 24 * time.Hour

// Validate checks the terminal-progress invariant from spec §3/§8: a goal
// with progress 1.0 must be in a terminal status.
func Validate(g *types.Goal) error {
	if g.Progress >= 1.0 && !g.Status.IsTerminal() {
		return fmt.Errorf("executive: goal %s has progress 1.0 but status %s is not terminal", g.ID, g.Status)
	}
	return nil
}
