package consolidation

import (
	"strings"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// groundingRejectFloor is the minimum grounding score a candidate must meet
// to survive validation (spec §4.8 step 4).
const groundingRejectFloor = 0.3

// GroundingScore is the fraction of p's evidence tokens that appear,
// token-wise, somewhere in the cluster's event content (spec §4.8 step 4,
// GLOSSARY "Grounding score").
func GroundingScore(p types.SemanticPattern, c Cluster) float64 {
	evidenceTokens := tokenize(p.Evidence)
	if len(evidenceTokens) == 0 {
		return 0
	}

	corpus := make(map[string]bool)
	for _, e := range c.Events {
		for _, t := range tokenize(e.Content) {
			corpus[t] = true
		}
	}

	matched := 0
	for _, t := range evidenceTokens {
		if corpus[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(evidenceTokens))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// HallucinationRiskFor labels a pattern's hallucination risk from its
// grounding score.
func HallucinationRiskFor(grounding float64) types.RiskLevel {
	switch {
	case grounding >= 0.8:
		return types.RiskLevelLow
	case grounding >= 0.5:
		return types.RiskLevelMedium
	case grounding >= groundingRejectFloor:
		return types.RiskLevelHigh
	default:
		return types.RiskLevelCritical
	}
}

// ClusterConfidenceMultiplier reflects cohesion and size: a tighter,
// larger cluster lends more weight to its extracted patterns.
func ClusterConfidenceMultiplier(c Cluster) float64 {
	sizeBonus := float64(len(c.Events)) / 10.0
	if sizeBonus > 0.2 {
		sizeBonus = 0.2
	}
	multiplier := 0.8 + 0.2*c.SpatialCohesion + sizeBonus
	if multiplier > 1.2 {
		multiplier = 1.2
	}
	return multiplier
}

// Validate scores candidate against its cluster, rejecting low-grounding
// patterns and adjusting confidence by the cluster-confidence multiplier
// (spec §4.8 step 4). Returns ok=false when the pattern should be dropped.
func Validate(candidate candidatePattern, c Cluster) (candidatePattern, bool) {
	grounding := GroundingScore(candidate.SemanticPattern, c)
	if grounding < groundingRejectFloor {
		return candidatePattern{}, false
	}

	candidate.GroundingScore = grounding
	candidate.HallucinationRisk = HallucinationRiskFor(grounding)
	candidate.Confidence *= ClusterConfidenceMultiplier(c)
	if candidate.Confidence > 1 {
		candidate.Confidence = 1
	}
	return candidate, true
}
