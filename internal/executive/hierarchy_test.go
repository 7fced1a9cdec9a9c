package executive_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/executive"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func TestCreateAssignsIDAndDefaultStatus(t *testing.T) {
	h := executive.NewHierarchy()
	g := &types.Goal{Project: "proj", Text: "ship the thing"}
	require.NoError(t, h.Create(context.Background(), g))

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, types.GoalStatusActive, g.Status)

	got, err := h.Get(g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Text, got.Text)
}

func TestCreateRejectsDepthBeyondFive(t *testing.T) {
	h := executive.NewHierarchy()
	var parent string
	for i := 0; i < executive.MaxGoalDepth; i++ {
		g := &types.Goal{Project: "proj", Parent: parent}
		require.NoError(t, h.Create(context.Background(), g))
		parent = g.ID
	}

	// The sixth level exceeds the depth bound.
	tooDeep := &types.Goal{Project: "proj", Parent: parent}
	err := h.Create(context.Background(), tooDeep)
	assert.ErrorIs(t, err, executive.ErrDepthExceeded)
}

func TestChildrenReturnsDirectSubgoalsOnly(t *testing.T) {
	h := executive.NewHierarchy()
	root := &types.Goal{Project: "proj"}
	require.NoError(t, h.Create(context.Background(), root))

	child := &types.Goal{Project: "proj", Parent: root.ID}
	require.NoError(t, h.Create(context.Background(), child))

	grandchild := &types.Goal{Project: "proj", Parent: child.ID}
	require.NoError(t, h.Create(context.Background(), grandchild))

	children := h.Children(root.ID)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestCompleteCascadeAbandonsOpenSubgoals(t *testing.T) {
	h := executive.NewHierarchy()
	root := &types.Goal{Project: "proj"}
	require.NoError(t, h.Create(context.Background(), root))

	openChild := &types.Goal{Project: "proj", Parent: root.ID}
	require.NoError(t, h.Create(context.Background(), openChild))

	doneChild := &types.Goal{Project: "proj", Parent: root.ID, Status: types.GoalStatusCompleted}
	require.NoError(t, h.Create(context.Background(), doneChild))

	require.NoError(t, h.Complete(root.ID, true))

	gotRoot, err := h.Get(root.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GoalStatusCompleted, gotRoot.Status)
	assert.Equal(t, 1.0, gotRoot.Progress)

	gotOpen, err := h.Get(openChild.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GoalStatusAbandoned, gotOpen.Status, "open subgoal is cascaded to abandoned")

	gotDone, err := h.Get(doneChild.ID)
	require.NoError(t, err)
	assert.Equal(t, types.GoalStatusCompleted, gotDone.Status, "already-terminal subgoal is left alone")
}

func TestPruneRemovesOnlyStaleSuspendedGoals(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	h := executive.NewHierarchy(executive.WithClock(func() time.Time { return clock }))

	stale := &types.Goal{Project: "proj", Status: types.GoalStatusSuspended}
	require.NoError(t, h.Create(context.Background(), stale))

	active := &types.Goal{Project: "proj", Status: types.GoalStatusActive}
	require.NoError(t, h.Create(context.Background(), active))

	pruned := h.Prune(7 * 24 * time.Hour)
	assert.Empty(t, pruned, "nothing is idle past the threshold while the clock hasn't advanced")

	clock = now.Add(8 * 24 * time.Hour)
	fresh := &types.Goal{Project: "proj", Status: types.GoalStatusSuspended}
	require.NoError(t, h.Create(context.Background(), fresh))
	clock = now.Add(8 * 24 * time.Hour)

	pruned = h.Prune(7 * 24 * time.Hour)
	assert.Contains(t, pruned, stale.ID, "suspended goal idle past the threshold is pruned")
	assert.NotContains(t, pruned, fresh.ID, "suspended goal just created is not idle yet")
	assert.NotContains(t, pruned, active.ID, "active goals are never pruned")
}

func TestValidateTerminalProgressInvariant(t *testing.T) {
	done := &types.Goal{ID: "g1", Progress: 1.0, Status: types.GoalStatusCompleted}
	assert.NoError(t, executive.Validate(done))

	broken := &types.Goal{ID: "g2", Progress: 1.0, Status: types.GoalStatusActive}
	assert.Error(t, executive.Validate(broken))
}

func TestGetUnknownGoalReturnsErrGoalNotFound(t *testing.T) {
	h := executive.NewHierarchy()
	_, err := h.Get("nope")
	assert.ErrorIs(t, err, executive.ErrGoalNotFound)
}
