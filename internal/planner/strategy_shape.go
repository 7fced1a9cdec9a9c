package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// shapeForStrategy rewrites the step DAG to match the characteristic shape
// of strategy (spec §4.6). Strategies not given a bespoke shape fall back
// to the default linear four-phase plan.
func (p *Planner) shapeForStrategy(task *types.Task, strategy types.Strategy) []types.PlanStep {
	switch strategy {
	case types.StrategySpike:
		return p.spikeShape(task)
	case types.StrategyParallel:
		return p.parallelShape(task)
	case types.StrategyQualityFirst:
		return p.qualityFirstShape(task)
	case types.StrategyExperimental:
		return p.experimentalShape(task)
	case types.StrategyIncremental:
		return p.incrementalShape(task)
	case types.StrategyDeadlineDriven:
		return p.deadlineDrivenShape(task)
	default:
		// top_down, bottom_up, sequential, collaboration: the linear
		// default plan already matches their shape; they differ in
		// reasoning/ordering semantics the strategy selector applies, not
		// in DAG topology.
		return p.defaultSteps(task)
	}
}

func (p *Planner) defaultSteps(task *types.Task) []types.PlanStep {
	plan := p.Decompose(task)
	return plan.Steps
}

func step(desc string, d time.Duration, risk types.RiskLevel, salience float64, deps ...string) types.PlanStep {
	return types.PlanStep{
		ID:                 uuid.NewString(),
		Description:        desc,
		EstimatedDuration:  d,
		EstimatedResources: map[string]float64{"cpu": 0.3, "memory": 0.2, "io": 0.1, "network": 0.1, "disk": 0.1},
		Dependencies:       deps,
		Salience:           salience,
		Risk:               risk,
		SuccessCriteria:    []string{desc + " complete"},
	}
}

// spikeShape: a research step precedes implementation.
func (p *Planner) spikeShape(task *types.Task) []types.PlanStep {
	research := step(fmt.Sprintf("Research: %s", task.Title), 1*time.Hour, types.RiskLevelMedium, 0.9)
	impl := step(fmt.Sprintf("Implement: %s", task.Title), 90*time.Minute, types.RiskLevelMedium, 1.0, research.ID)
	test := step(fmt.Sprintf("Test: %s", task.Title), 30*time.Minute, types.RiskLevelLow, 0.7, impl.ID)
	return []types.PlanStep{research, impl, test}
}

// parallelShape: multiple independent implementation nodes converge on an
// integration node.
func (p *Planner) parallelShape(task *types.Task) []types.PlanStep {
	planStep := step(fmt.Sprintf("Plan: %s", task.Title), 20*time.Minute, types.RiskLevelLow, 0.9)
	branchA := step(fmt.Sprintf("Implement component A: %s", task.Title), 90*time.Minute, types.RiskLevelMedium, 0.8, planStep.ID)
	branchB := step(fmt.Sprintf("Implement component B: %s", task.Title), 90*time.Minute, types.RiskLevelMedium, 0.8, planStep.ID)
	integrate := step(fmt.Sprintf("Integrate: %s", task.Title), 45*time.Minute, types.RiskLevelMedium, 1.0, branchA.ID, branchB.ID)
	return []types.PlanStep{planStep, branchA, branchB, integrate}
}

// qualityFirstShape: duplicated test/review gates.
func (p *Planner) qualityFirstShape(task *types.Task) []types.PlanStep {
	planStep := step(fmt.Sprintf("Plan: %s", task.Title), 30*time.Minute, types.RiskLevelLow, 0.9)
	impl := step(fmt.Sprintf("Implement: %s", task.Title), 2*time.Hour, types.RiskLevelMedium, 1.0, planStep.ID)
	unitTest := step(fmt.Sprintf("Unit test: %s", task.Title), 45*time.Minute, types.RiskLevelLow, 0.8, impl.ID)
	review := step(fmt.Sprintf("Review: %s", task.Title), 30*time.Minute, types.RiskLevelLow, 0.8, unitTest.ID)
	integrationTest := step(fmt.Sprintf("Integration test: %s", task.Title), 45*time.Minute, types.RiskLevelMedium, 0.9, review.ID)
	finalReview := step(fmt.Sprintf("Final review: %s", task.Title), 20*time.Minute, types.RiskLevelLow, 0.7, integrationTest.ID)
	return []types.PlanStep{planStep, impl, unitTest, review, integrationTest, finalReview}
}

// experimentalShape: two competing implementation branches followed by an
// evaluate-and-pick node.
func (p *Planner) experimentalShape(task *types.Task) []types.PlanStep {
	planStep := step(fmt.Sprintf("Plan: %s", task.Title), 20*time.Minute, types.RiskLevelLow, 0.9)
	branchA := step(fmt.Sprintf("Experiment A: %s", task.Title), time.Hour, types.RiskLevelHigh, 0.7, planStep.ID)
	branchB := step(fmt.Sprintf("Experiment B: %s", task.Title), time.Hour, types.RiskLevelHigh, 0.7, planStep.ID)
	evaluate := step(fmt.Sprintf("Evaluate and pick: %s", task.Title), 30*time.Minute, types.RiskLevelMedium, 1.0, branchA.ID, branchB.ID)
	return []types.PlanStep{planStep, branchA, branchB, evaluate}
}

// incrementalShape: small implement/test pairs chained in sequence, each
// one shippable on its own.
func (p *Planner) incrementalShape(task *types.Task) []types.PlanStep {
	planStep := step(fmt.Sprintf("Plan increments: %s", task.Title), 20*time.Minute, types.RiskLevelLow, 0.9)
	inc1 := step(fmt.Sprintf("Increment 1: %s", task.Title), 45*time.Minute, types.RiskLevelLow, 0.8, planStep.ID)
	test1 := step("Validate increment 1", 15*time.Minute, types.RiskLevelLow, 0.6, inc1.ID)
	inc2 := step(fmt.Sprintf("Increment 2: %s", task.Title), 45*time.Minute, types.RiskLevelLow, 0.8, test1.ID)
	test2 := step("Validate increment 2", 15*time.Minute, types.RiskLevelLow, 0.6, inc2.ID)
	return []types.PlanStep{planStep, inc1, test1, inc2, test2}
}

// deadlineDrivenShape: collapses plan/implement into one step followed only
// by a smoke test and a ship step, favoring speed to a working state.
func (p *Planner) deadlineDrivenShape(task *types.Task) []types.PlanStep {
	planAndImplement := step(fmt.Sprintf("Plan and implement: %s", task.Title), 90*time.Minute, types.RiskLevelHigh, 1.0)
	smokeTest := step(fmt.Sprintf("Smoke test: %s", task.Title), 15*time.Minute, types.RiskLevelMedium, 0.8, planAndImplement.ID)
	ship := step(fmt.Sprintf("Ship: %s", task.Title), 15*time.Minute, types.RiskLevelMedium, 1.0, smokeTest.ID)
	return []types.PlanStep{planAndImplement, smokeTest, ship}
}
