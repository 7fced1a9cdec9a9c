package consolidation

import "time"

// ConsolidationReport is the pipeline's output (spec §4.8 step 8).
type ConsolidationReport struct {
	RunAt             time.Time
	EventsProcessed   int
	ClustersFormed    int
	PatternsExtracted int
	PatternsRejected  int
	QualityBefore     float64
	QualityAfter      float64
	QualityDelta      float64

	// Optional metrics (spec §4.8 step 8), populated only when the
	// corresponding LLM path ran.
	TokenEconomy    *TokenEconomyMetrics
	LocalReasoning  *LocalReasoningMetrics
}

// TokenEconomyMetrics tracks context-compression effectiveness when System
// 2/Claude validation ran.
type TokenEconomyMetrics struct {
	TokensBeforeCompression int
	TokensAfterCompression  int
	CacheHit                bool
}

// LocalReasoningMetrics tracks the dual-process extraction's own
// self-reported performance.
type LocalReasoningMetrics struct {
	Latency              time.Duration
	TokensGenerated       int
	DualProcessConfidence float64
}

// qualityUsefulnessWeight, qualityRecencyWeight, qualityTagDiversityWeight
// pin the "quality-before/after" formula per spec §9's open question: a
// weighted mean of usefulness, recency, and tag diversity (SPEC_FULL.md
// §10 decision, recorded in DESIGN.md).
const (
	qualityUsefulnessWeight   = 0.5
	qualityRecencyWeight      = 0.3
	qualityTagDiversityWeight = 0.2
)

// QualityScore computes the pinned quality metric for a set of patterns:
// mean usefulness (approximated by confidence), recency (1.0 for patterns
// produced in this run, decaying for older context), and tag diversity
// (unique tags / total tags).
func QualityScore(patterns []candidatePattern, recency float64) float64 {
	if len(patterns) == 0 {
		return 0
	}
	var usefulness float64
	tagSet := make(map[string]bool)
	totalTags := 0
	for _, p := range patterns {
		usefulness += p.Confidence
		for _, t := range p.Tags {
			tagSet[t] = true
			totalTags++
		}
	}
	usefulness /= float64(len(patterns))

	diversity := 0.0
	if totalTags > 0 {
		diversity = float64(len(tagSet)) / float64(totalTags)
	}

	return qualityUsefulnessWeight*usefulness + qualityRecencyWeight*recency + qualityTagDiversityWeight*diversity
}
