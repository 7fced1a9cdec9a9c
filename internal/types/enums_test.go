package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shawkridge/athena-sub007/internal/types"
)

func TestAgentTypeIsValid(t *testing.T) {
	valid := []types.AgentType{
		types.AgentTypePlanner, types.AgentTypeExecutor, types.AgentTypeMonitor,
		types.AgentTypePredictor, types.AgentTypeLearner, types.AgentTypeResearch,
		types.AgentTypeAnalysis, types.AgentTypeSynthesis, types.AgentTypeValidation,
		types.AgentTypeOptimization, types.AgentTypeDocumentation, types.AgentTypeReview,
		types.AgentTypeDebugging,
	}
	for _, v := range valid {
		assert.True(t, v.IsValid(), "expected %q to be valid", v)
	}
	assert.False(t, types.AgentType("bogus").IsValid())
	assert.False(t, types.AgentType("").IsValid())
}

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.True(t, types.TaskStatusCompleted.IsTerminal())
	assert.True(t, types.TaskStatusFailed.IsTerminal())
	assert.False(t, types.TaskStatusPending.IsTerminal())
	assert.False(t, types.TaskStatusInProgress.IsTerminal())
}

func TestTaskPriorityRank(t *testing.T) {
	assert.Equal(t, 3, types.TaskPriorityCritical.Rank())
	assert.Equal(t, 2, types.TaskPriorityHigh.Rank())
	assert.Equal(t, 1, types.TaskPriorityMedium.Rank())
	assert.Equal(t, 0, types.TaskPriorityLow.Rank())
	assert.Equal(t, 0, types.TaskPriority("unknown").Rank())

	assert.Greater(t, types.TaskPriorityCritical.Rank(), types.TaskPriorityHigh.Rank())
	assert.Greater(t, types.TaskPriorityHigh.Rank(), types.TaskPriorityMedium.Rank())
	assert.Greater(t, types.TaskPriorityMedium.Rank(), types.TaskPriorityLow.Rank())
}

func TestGoalStatusIsTerminal(t *testing.T) {
	assert.True(t, types.GoalStatusCompleted.IsTerminal())
	assert.True(t, types.GoalStatusFailed.IsTerminal())
	assert.True(t, types.GoalStatusAbandoned.IsTerminal())
	assert.False(t, types.GoalStatusActive.IsTerminal())
	assert.False(t, types.GoalStatusSuspended.IsTerminal())
}

func TestAllStrategiesIsClosedAndStable(t *testing.T) {
	first := types.AllStrategies()
	second := types.AllStrategies()
	assert.Equal(t, first, second, "AllStrategies should return a stable order")
	assert.Len(t, first, 10)

	seen := make(map[types.Strategy]bool)
	for _, s := range first {
		assert.False(t, seen[s], "duplicate strategy %q", s)
		seen[s] = true
	}
	assert.Contains(t, first, types.StrategyTopDown)
	assert.Contains(t, first, types.StrategyExperimental)
}
