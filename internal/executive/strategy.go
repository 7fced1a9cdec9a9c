package executive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// complexityKeywords buckets a goal's free text into a 1..5 complexity
// score, per spec §4.7. Buckets are checked in order, most-complex first,
// so a goal matching several keyword sets gets its highest bucket.
var complexityKeywords = []struct {
	score int
	words []string
}{
	{5, []string{"migrate", "migration", "rearchitect", "redesign", "rewrite", "overhaul"}},
	{4, []string{"integrate", "integration", "distributed", "concurrent", "cross-service"}},
	{3, []string{"refactor", "optimize", "extend", "generalize"}},
	{2, []string{"fix", "bug", "patch", "update"}},
	{1, []string{"typo", "rename", "tweak", "doc", "comment"}},
}

// GoalComplexity classifies a goal's text into the 1..5 scale from spec
// §4.7. Goals matching no keyword default to 3 (medium).
func GoalComplexity(text string) int {
	lower := strings.ToLower(text)
	for _, bucket := range complexityKeywords {
		for _, w := range bucket.words {
			if strings.Contains(lower, w) {
				return bucket.score
			}
		}
	}
	return 3
}

// StrategyOutcome is one recorded use of a strategy, used to compute its
// historical success rate.
type StrategyOutcome struct {
	Strategy types.Strategy
	Success  bool
}

// StrategyScore is the ranked output for one strategy.
type StrategyScore struct {
	Strategy  types.Strategy
	Score     float64
	Reasoning string
}

const (
	featureWeight    = 0.7
	historicalWeight = 0.3
	defaultTopK      = 3
)

// strategyAffinity hand-tunes how strongly each feature predicts a
// strategy's fit, on a -1..1 scale per feature. This table is the one
// place strategy-specific heuristics live; StrategySelector.Score is
// feature-agnostic.
var strategyAffinity = map[types.Strategy]func(f strategyFeatures) float64{
	types.StrategyTopDown: func(f strategyFeatures) float64 {
		return 0.5 + 0.1*float64(f.complexity) - 0.3*f.urgency
	},
	types.StrategyBottomUp: func(f strategyFeatures) float64 {
		return 0.4 + 0.1*float64(5-f.complexity)
	},
	types.StrategySpike: func(f strategyFeatures) float64 {
		return 0.3 + 0.15*float64(f.complexity) - 0.2*f.urgency
	},
	types.StrategyIncremental: func(f strategyFeatures) float64 {
		return 0.4 + 0.1*float64(f.complexity) + 0.2*f.progress
	},
	types.StrategyParallel: func(f strategyFeatures) float64 {
		return 0.3 + 0.15*float64(f.relatedGoals) - 0.1*f.urgency
	},
	types.StrategySequential: func(f strategyFeatures) float64 {
		return 0.5 - 0.1*float64(f.complexity)
	},
	types.StrategyDeadlineDriven: func(f strategyFeatures) float64 {
		return 0.2 + 0.6*f.urgency
	},
	types.StrategyQualityFirst: func(f strategyFeatures) float64 {
		return 0.3 + 0.1*float64(f.priority) - 0.3*f.urgency
	},
	types.StrategyCollaboration: func(f strategyFeatures) float64 {
		return 0.2 + 0.2*float64(f.relatedGoals)
	},
	types.StrategyExperimental: func(f strategyFeatures) float64 {
		return 0.3 + 0.1*float64(f.complexity) - 0.2*float64(f.blockers) - 0.2*f.urgency
	},
}

type strategyFeatures struct {
	complexity   int
	estimatedHrs float64
	priority     int
	urgency      float64
	blockers     int
	relatedGoals int
	progress     float64
}

func featuresFor(g *types.Goal, relatedGoals int, blockers int, now time.Time) strategyFeatures {
	return strategyFeatures{
		complexity:   GoalComplexity(g.Text),
		estimatedHrs: g.EstimatedHours,
		priority:     g.Priority,
		urgency:      UrgencyFromDeadline(g.Deadline, now),
		blockers:     blockers,
		relatedGoals: relatedGoals,
		progress:     g.Progress,
	}
}

// StrategySelector scores each of the ten closed-set strategies for a goal
// and ranks them, blending a feature-derived score with the strategy's
// historical success rate (spec §4.7).
type StrategySelector struct {
	logger telemetry.Logger
	now    func() time.Time
	topK   int

	mu       sync.Mutex
	outcomes map[types.Strategy][]bool
}

// SelectorOption configures a StrategySelector.
type SelectorOption func(*StrategySelector)

func WithSelectorLogger(l telemetry.Logger) SelectorOption {
	return func(s *StrategySelector) { s.logger = l }
}

func WithSelectorClock(fn func() time.Time) SelectorOption {
	return func(s *StrategySelector) { s.now = fn }
}

// WithTopK overrides the default top-3 cut.
func WithTopK(k int) SelectorOption {
	return func(s *StrategySelector) { s.topK = k }
}

// NewStrategySelector constructs a StrategySelector with no prior history.
func NewStrategySelector(opts ...SelectorOption) *StrategySelector {
	s := &StrategySelector{
		logger:   telemetry.NewNoopLogger(),
		now:      func() time.Time { return time.Now().UTC() },
		topK:     defaultTopK,
		outcomes: make(map[types.Strategy][]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// historicalSuccessRate returns the fraction of past uses of strategy that
// succeeded, defaulting to 0.5 (no bias) when there is no history yet.
func (s *StrategySelector) historicalSuccessRate(strategy types.Strategy) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := s.outcomes[strategy]
	if len(hist) == 0 {
		return 0.5
	}
	successes := 0
	for _, ok := range hist {
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(len(hist))
}

// RecordOutcome feeds back whether strategy succeeded for a completed goal,
// letting future Select calls converge towards strategies that work (spec
// §4.7 "persist outcomes for convergence").
func (s *StrategySelector) RecordOutcome(strategy types.Strategy, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[strategy] = append(s.outcomes[strategy], success)
}

// Select scores all ten strategies for g and returns the top-k (default 3),
// highest score first, each with a one-line reasoning string.
func (s *StrategySelector) Select(ctx context.Context, g *types.Goal, relatedGoals int, blockers int) []StrategyScore {
	f := featuresFor(g, relatedGoals, blockers, s.now())

	scores := make([]StrategyScore, 0, len(types.AllStrategies()))
	for _, strat := range types.AllStrategies() {
		affinityFn, ok := strategyAffinity[strat]
		featureScore := 0.5
		if ok {
			featureScore = clamp01(affinityFn(f))
		}
		historical := s.historicalSuccessRate(strat)
		blended := featureWeight*featureScore + historicalWeight*historical

		scores = append(scores, StrategyScore{
			Strategy:  strat,
			Score:     blended,
			Reasoning: reasoningFor(strat, f, featureScore, historical),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	k := s.topK
	if k <= 0 || k > len(scores) {
		k = len(scores)
	}
	top := scores[:k]

	s.logger.Info(ctx, "strategy selection", "goal_id", g.ID, "top_strategy", string(top[0].Strategy), "score", top[0].Score)
	return top
}

func reasoningFor(strat types.Strategy, f strategyFeatures, featureScore, historical float64) string {
	return fmt.Sprintf("%s: feature score %.2f (complexity %d, urgency %.2f), historical success %.2f",
		strat, featureScore, f.complexity, f.urgency, historical)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
