package executive

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/types"
)

const (
	switchCostFloorMS   = 5.0
	switchCostCeilingMS = 50.0
)

// SwitchCost computes the bounded, quadratic-in-priority-delta cost of
// changing the "current" goal (spec §4.7, §8):
//
//	cost = 5 + (Δpriority/10)^2 * 100, clamped to [5, 50].
func SwitchCost(fromPriority, toPriority int) float64 {
	delta := float64(toPriority - fromPriority)
	cost := switchCostFloorMS + (delta/10.0)*(delta/10.0)*100.0
	if cost < switchCostFloorMS {
		return switchCostFloorMS
	}
	if cost > switchCostCeilingMS {
		return switchCostCeilingMS
	}
	return cost
}

// TaskSwitcher records goal switches and their cost, per project.
type TaskSwitcher struct {
	mu       sync.Mutex
	switches map[string][]types.TaskSwitch // project -> history
	current  map[string]string             // project -> current goal id
	now      func() time.Time
}

// SwitcherOption configures a TaskSwitcher.
type SwitcherOption func(*TaskSwitcher)

// WithSwitcherClock overrides time.Now, for deterministic tests.
func WithSwitcherClock(fn func() time.Time) SwitcherOption {
	return func(t *TaskSwitcher) { t.now = fn }
}

// NewTaskSwitcher constructs an empty TaskSwitcher.
func NewTaskSwitcher(opts ...SwitcherOption) *TaskSwitcher {
	t := &TaskSwitcher{
		switches: make(map[string][]types.TaskSwitch),
		current:  make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Switch records a change of the current goal for project, computing and
// returning the charged cost. contextSnapshot is stored verbatim for later
// restoration.
func (t *TaskSwitcher) Switch(project string, fromGoal *types.Goal, toGoal *types.Goal, reason string, contextSnapshot map[string]any) types.TaskSwitch {
	fromPriority, toPriority := 0, 0
	fromID := ""
	if fromGoal != nil {
		fromPriority = fromGoal.Priority
		fromID = fromGoal.ID
	}
	if toGoal != nil {
		toPriority = toGoal.Priority
	}
	cost := SwitchCost(fromPriority, toPriority)

	sw := types.TaskSwitch{
		ID:              uuid.NewString(),
		Project:         project,
		FromGoal:        fromID,
		ToGoal:          toGoal.ID,
		CostMS:          cost,
		Reason:          reason,
		ContextSnapshot: contextSnapshot,
		Timestamp:       t.now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.switches[project] = append(t.switches[project], sw)
	t.current[project] = toGoal.ID
	return sw
}

// Current returns the current goal ID for project, or "" if none recorded.
func (t *TaskSwitcher) Current(project string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current[project]
}

// TotalOverhead returns the sum of switch costs recorded for project.
func (t *TaskSwitcher) TotalOverhead(project string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, s := range t.switches[project] {
		total += s.CostMS
	}
	return total
}

// AverageOverhead returns the mean switch cost for project, or 0 if none.
func (t *TaskSwitcher) AverageOverhead(project string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	hist := t.switches[project]
	if len(hist) == 0 {
		return 0
	}
	return t.totalLocked(hist) / float64(len(hist))
}

func (t *TaskSwitcher) totalLocked(hist []types.TaskSwitch) float64 {
	var total float64
	for _, s := range hist {
		total += s.CostMS
	}
	return total
}

// History returns the recorded switches for project, in order.
func (t *TaskSwitcher) History(project string) []types.TaskSwitch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.TaskSwitch(nil), t.switches[project]...)
}
