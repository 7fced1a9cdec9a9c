package consolidation

import (
	"strings"
)

// confidenceDeltaForWinner is the confidence gap above which the
// higher-confidence candidate simply wins outright (spec §4.8 step 5).
const confidenceDeltaForWinner = 0.2

// mergeOverlapFloor is the tag-Jaccard overlap above which two candidates
// describing the same thing are merged rather than arbitrated.
const mergeOverlapFloor = 0.7

// deferOverlapCeiling is the tag-Jaccard overlap below which two
// candidates are too dissimilar to arbitrate automatically; the System-2
// pattern is tentatively kept at reduced confidence pending human review.
const deferOverlapCeiling = 0.3

// deferredConfidence is the confidence a deferred pattern is held at.
const deferredConfidence = 0.5

// ResolveConflicts groups candidates by normalized description and
// arbitrates between System-1 and System-2 candidates describing the same
// thing (spec §4.8 step 5).
func ResolveConflicts(candidates []candidatePattern) []candidatePattern {
	groups := make(map[string][]candidatePattern)
	var order []string
	for _, c := range candidates {
		key := normalizeDescription(c.Description)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	var out []candidatePattern
	for _, key := range order {
		group := groups[key]
		out = append(out, resolveGroup(group)...)
	}
	return out
}

func normalizeDescription(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

func resolveGroup(group []candidatePattern) []candidatePattern {
	var system1, system2 []candidatePattern
	for _, c := range group {
		if c.system == "system1" {
			system1 = append(system1, c)
		} else {
			system2 = append(system2, c)
		}
	}

	if len(system1) == 0 || len(system2) == 0 {
		return group
	}

	s1, s2 := system1[0], system2[0]
	delta := s1.Confidence - s2.Confidence
	if delta < 0 {
		delta = -delta
	}

	switch {
	case delta > confidenceDeltaForWinner:
		if s1.Confidence > s2.Confidence {
			return []candidatePattern{s1}
		}
		return []candidatePattern{s2}
	case tagOverlap(s1.Tags, s2.Tags) > mergeOverlapFloor:
		return []candidatePattern{mergeCandidates(s1, s2)}
	case tagOverlap(s1.Tags, s2.Tags) < deferOverlapCeiling:
		deferred := s2
		deferred.Confidence = deferredConfidence
		deferred.Tags = append(deferred.Tags, "deferred")
		return []candidatePattern{deferred}
	default:
		return []candidatePattern{s2}
	}
}

func tagOverlap(a, b []string) float64 {
	return jaccard(a, b)
}

func mergeCandidates(a, b candidatePattern) candidatePattern {
	merged := a
	merged.Tags = unionTags(a.Tags, b.Tags)
	merged.Confidence = (a.Confidence + b.Confidence) / 2
	merged.Evidence = a.Evidence + "; " + b.Evidence
	merged.SourceEventIDs = unionStrings(a.SourceEventIDs, b.SourceEventIDs)
	merged.system = "merged"
	return merged
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	return unionTags(a, b)
}
