package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/planner"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func dependenciesByID(steps []types.PlanStep) map[string][]string {
	out := make(map[string][]string, len(steps))
	for _, s := range steps {
		out[s.ID] = s.Dependencies
	}
	return out
}

func TestParallelShapeConvergesBranchesOnIntegration(t *testing.T) {
	p := planner.New()
	plan := p.DecomposeWithStrategy(&types.Task{ID: "t", Title: "build"}, types.StrategyParallel, "")
	require.Len(t, plan.Steps, 4)

	last := plan.Steps[len(plan.Steps)-1]
	assert.Len(t, last.Dependencies, 2, "the integration step depends on both parallel branches")
}

func TestExperimentalShapeHasTwoHighRiskBranches(t *testing.T) {
	p := planner.New()
	plan := p.DecomposeWithStrategy(&types.Task{ID: "t", Title: "try an approach"}, types.StrategyExperimental, "")
	require.Len(t, plan.Steps, 4)

	highRisk := 0
	for _, s := range plan.Steps {
		if s.Risk == types.RiskLevelHigh {
			highRisk++
		}
	}
	assert.Equal(t, 2, highRisk)
}

func TestQualityFirstShapeHasMoreGatesThanDefault(t *testing.T) {
	p := planner.New()
	plan := p.DecomposeWithStrategy(&types.Task{ID: "t", Title: "ship safely"}, types.StrategyQualityFirst, "")
	assert.Greater(t, len(plan.Steps), 4, "quality-first duplicates review/test gates beyond the default four phases")
}

func TestIncrementalShapeChainsValidatedIncrements(t *testing.T) {
	p := planner.New()
	plan := p.DecomposeWithStrategy(&types.Task{ID: "t", Title: "roll out gradually"}, types.StrategyIncremental, "")
	require.Len(t, plan.Steps, 5)

	deps := dependenciesByID(plan.Steps)
	for _, d := range deps {
		assert.LessOrEqual(t, len(d), 1, "incremental shape is a strict chain, never more than one dependency per step")
	}
}

func TestDeadlineDrivenShapeCollapsesPlanAndImplement(t *testing.T) {
	p := planner.New()
	plan := p.DecomposeWithStrategy(&types.Task{ID: "t", Title: "ship by Friday"}, types.StrategyDeadlineDriven, "")
	require.Len(t, plan.Steps, 3, "deadline-driven collapses plan+implement into one step ahead of smoke test and ship")
	assert.Empty(t, plan.Steps[0].Dependencies)
}

func TestSpikeShapeGatesImplementationBehindResearch(t *testing.T) {
	p := planner.New()
	plan := p.DecomposeWithStrategy(&types.Task{ID: "t", Title: "investigate caching"}, types.StrategySpike, "")
	require.Len(t, plan.Steps, 3)
	assert.Empty(t, plan.Steps[0].Dependencies, "research has no prerequisite")
	assert.Equal(t, []string{plan.Steps[0].ID}, plan.Steps[1].Dependencies)
}
