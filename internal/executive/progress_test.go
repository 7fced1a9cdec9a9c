package executive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shawkridge/athena-sub007/internal/executive"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func TestComplexityClassForBuckets(t *testing.T) {
	assert.Equal(t, "simple", executive.ComplexityClassFor(1))
	assert.Equal(t, "medium", executive.ComplexityClassFor(5))
	assert.Equal(t, "complex", executive.ComplexityClassFor(20))
}

func TestGenerateMilestonesCountByComplexity(t *testing.T) {
	assert.Len(t, executive.GenerateMilestones("simple"), 3)
	assert.Len(t, executive.GenerateMilestones("medium"), 4)
	assert.Len(t, executive.GenerateMilestones("complex"), 5)
	assert.Len(t, executive.GenerateMilestones("unknown-class"), 4, "unknown classes fall back to medium")
}

func TestUpdateMarksCrossedMilestonesReached(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := executive.NewProgressMonitor(executive.WithMonitorClock(func() time.Time { return now }))

	g := &types.Goal{ID: "g1", EstimatedHours: 1}
	m.Track(g)

	m.Update(g.ID, 0.5)
	milestones := m.Milestones(g.ID)
	require := assert.New(t)
	require.Len(milestones, 3)
	require.True(milestones[0].Reached, "first third of a simple goal is crossed at 50%")
	require.False(milestones[2].Reached)
}

func TestUpdateIgnoresRegressions(t *testing.T) {
	m := executive.NewProgressMonitor()
	g := &types.Goal{ID: "g1", EstimatedHours: 1}
	m.Track(g)

	m.Update(g.ID, 0.8)
	m.Update(g.ID, 0.3) // should not un-mark milestones or move progress backwards

	milestones := m.Milestones(g.ID)
	for _, ms := range milestones {
		if ms.Threshold <= 0.8 {
			assert.True(t, ms.Reached)
		}
	}
}

func TestDetectBlockerFlagsStalledGoal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	m := executive.NewProgressMonitor(executive.WithMonitorClock(func() time.Time { return clock }))

	g := &types.Goal{ID: "g1", EstimatedHours: 4}
	m.Track(g)

	assert.Nil(t, m.DetectBlocker(g.ID), "freshly tracked goal is not stalled")

	clock = now.Add(3 * time.Hour)
	blocker := m.DetectBlocker(g.ID)
	if assert.NotNil(t, blocker) {
		assert.Equal(t, types.RiskLevelHigh, blocker.Severity)
		assert.Equal(t, g.ID, blocker.GoalID)
	}
}

func TestDetectBlockerUntrackedGoalReturnsNil(t *testing.T) {
	m := executive.NewProgressMonitor()
	assert.Nil(t, m.DetectBlocker("never-tracked"))
}

func TestForecastHalvesConfidenceOnLargeDisagreement(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	m := executive.NewProgressMonitor(executive.WithMonitorClock(func() time.Time { return clock }))

	g := &types.Goal{ID: "g1", EstimatedHours: 1}
	m.Track(g)

	clock = now.Add(10 * time.Hour)
	m.Update(g.ID, 0.05) // barely any progress after 10x the original estimate

	forecast, ok := m.Forecast(g.ID)
	require := assert.New(t)
	require.True(ok)
	require.Less(forecast.Confidence, 0.8, "large disagreement with the original estimate halves confidence")
}

func TestForecastUntrackedGoalReturnsFalse(t *testing.T) {
	m := executive.NewProgressMonitor()
	_, ok := m.Forecast("never-tracked")
	assert.False(t, ok)
}
