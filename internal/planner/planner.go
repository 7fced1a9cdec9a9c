// Package planner implements the Planner / Strategy-Aware Decomposer (spec
// §4.6): the default four-phase decomposition, critical-path computation,
// and the strategy-aware rewrite that biases the step DAG towards one of
// the ten closed-set strategies.
package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/types"
)

const (
	baseConfidence          = 0.85
	highRiskPenalty         = 0.05
	denseDependencyPenalty  = 0.10
	denseDependencyFanoutMin = 3 // a step with >= this many deps counts as "dense"
)

// Planner produces ExecutionPlans from a task and an optional strategy.
type Planner struct {
	now func() time.Time
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides time.Now, for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(p *Planner) { p.now = fn }
}

// New constructs a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Decompose produces the default linear four-phase plan for task
// (plan -> implement -> test -> deploy), per spec §4.6.
func (p *Planner) Decompose(task *types.Task) *types.ExecutionPlan {
	steps := []types.PlanStep{
		{
			ID:                 uuid.NewString(),
			Description:        fmt.Sprintf("Plan: %s", task.Title),
			EstimatedDuration:  30 * time.Minute,
			EstimatedResources: map[string]float64{"cpu": 0.2, "memory": 0.1, "io": 0.05, "network": 0.05, "disk": 0.05},
			Risk:               types.RiskLevelLow,
			Salience:           0.9,
			SuccessCriteria:    []string{"approach documented"},
		},
		{
			ID:                 uuid.NewString(),
			Description:        fmt.Sprintf("Implement: %s", task.Title),
			EstimatedDuration:  2 * time.Hour,
			EstimatedResources: map[string]float64{"cpu": 0.6, "memory": 0.4, "io": 0.2, "network": 0.1, "disk": 0.2},
			Risk:               types.RiskLevelMedium,
			Salience:           1.0,
			SuccessCriteria:    []string{"code compiles", "meets description"},
		},
		{
			ID:                 uuid.NewString(),
			Description:        fmt.Sprintf("Test: %s", task.Title),
			EstimatedDuration:  45 * time.Minute,
			EstimatedResources: map[string]float64{"cpu": 0.3, "memory": 0.2, "io": 0.1, "network": 0.05, "disk": 0.1},
			Risk:               types.RiskLevelMedium,
			Salience:           0.8,
			SuccessCriteria:    []string{"tests pass"},
		},
		{
			ID:                 uuid.NewString(),
			Description:        fmt.Sprintf("Deploy: %s", task.Title),
			EstimatedDuration:  20 * time.Minute,
			EstimatedResources: map[string]float64{"cpu": 0.2, "memory": 0.1, "io": 0.3, "network": 0.4, "disk": 0.1},
			Risk:               types.RiskLevelLow,
			Salience:           0.6,
			SuccessCriteria:    []string{"deployed and reachable"},
		},
	}
	// Strictly linear: each step depends on the previous one.
	for i := 1; i < len(steps); i++ {
		steps[i].Dependencies = []string{steps[i-1].ID}
	}

	return p.buildPlan(task, steps, "", "")
}

// DecomposeWithStrategy produces a plan whose step DAG is reshaped to match
// strategy's characteristic form (spec §4.6).
func (p *Planner) DecomposeWithStrategy(task *types.Task, strategy types.Strategy, reasoning string) *types.ExecutionPlan {
	steps := p.shapeForStrategy(task, strategy)
	plan := p.buildPlan(task, steps, strategy, reasoning)
	return plan
}

func (p *Planner) buildPlan(task *types.Task, steps []types.PlanStep, strategy types.Strategy, reasoning string) *types.ExecutionPlan {
	byID := make(map[string]types.PlanStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	var totalDuration time.Duration
	resources := make(map[string]float64)
	highRiskCount := 0
	denseCount := 0
	for _, s := range steps {
		totalDuration += s.EstimatedDuration
		for k, v := range s.EstimatedResources {
			resources[k] += v
		}
		if s.Risk == types.RiskLevelHigh || s.Risk == types.RiskLevelCritical {
			highRiskCount++
		}
		if len(s.Dependencies) >= denseDependencyFanoutMin {
			denseCount++
		}
	}

	confidence := baseConfidence - float64(highRiskCount)*highRiskPenalty
	// "up to 0.10 for dense dependencies": scale with how many steps are
	// dense, capped at the stated ceiling rather than applied once flat.
	densityPenalty := float64(denseCount) * 0.02
	if densityPenalty > denseDependencyPenalty {
		densityPenalty = denseDependencyPenalty
	}
	confidence -= densityPenalty
	if confidence < 0 {
		confidence = 0
	}

	return &types.ExecutionPlan{
		ID:                 uuid.NewString(),
		TaskID:             task.ID,
		Steps:              steps,
		EstimatedDuration:  totalDuration,
		EstimatedResources: resources,
		Confidence:         confidence,
		ComplexityClass:    complexityClass(len(steps)),
		CriticalPath:       CriticalPath(steps),
		CreatedAt:          p.now(),
		Strategy:           strategy,
		Reasoning:          reasoning,
	}
}

func complexityClass(stepCount int) string {
	switch {
	case stepCount <= 3:
		return "simple"
	case stepCount <= 6:
		return "medium"
	default:
		return "complex"
	}
}

// CriticalPath computes the longest-duration path through the step DAG by
// depth-first enumeration of all paths from root steps (no dependencies) to
// leaf steps, taking the argmax by summed duration (spec §4.6).
func CriticalPath(steps []types.PlanStep) []string {
	byID := make(map[string]types.PlanStep, len(steps))
	children := make(map[string][]string)
	for _, s := range steps {
		byID[s.ID] = s
	}
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			children[dep] = append(children[dep], s.ID)
		}
	}

	var roots []string
	for _, s := range steps {
		if len(s.Dependencies) == 0 {
			roots = append(roots, s.ID)
		}
	}

	var bestPath []string
	var bestDuration time.Duration

	var visit func(path []string, duration time.Duration, id string)
	visit = func(path []string, duration time.Duration, id string) {
		step := byID[id]
		path = append(path, id)
		duration += step.EstimatedDuration

		kids := children[id]
		if len(kids) == 0 {
			if duration > bestDuration {
				bestDuration = duration
				bestPath = append([]string(nil), path...)
			}
			return
		}
		for _, k := range kids {
			visit(path, duration, k)
		}
	}

	for _, r := range roots {
		visit(nil, 0, r)
	}
	return bestPath
}
