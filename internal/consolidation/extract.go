package consolidation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shawkridge/athena-sub007/internal/ports"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// system1ConfidenceFloor is the aggregate System-1 confidence above which
// extraction stops without invoking System 2, for a cluster that "looks
// simple" (spec §4.8 step 3).
const system1ConfidenceFloor = 0.7

// simpleClusterMaxEvents bounds what "looks simple" means for skipping
// System 2 in addition to the confidence floor.
const simpleClusterMaxEvents = 4

// candidatePattern is the mutable working form of a pattern before
// validation and conflict resolution settle its final shape.
type candidatePattern struct {
	types.SemanticPattern
	system string // "system1" | "system2"
}

// detector is a System-1 heuristic: fires on a known event-shape and
// returns a candidate pattern plus its fixed prior confidence.
type detector struct {
	name       string
	confidence float64
	detect     func(c Cluster) (types.SemanticPattern, bool)
}

var system1Detectors = []detector{
	{
		name:       "tdd",
		confidence: 0.8,
		detect:     detectTDD,
	},
	{
		name:       "error_recovery",
		confidence: 0.75,
		detect:     detectErrorRecovery,
	},
	{
		name:       "refactoring",
		confidence: 0.65,
		detect:     detectRefactoring,
	},
	{
		name:       "architectural_decision",
		confidence: 0.7,
		detect:     detectArchitecturalDecision,
	},
}

func detectTDD(c Cluster) (types.SemanticPattern, bool) {
	var failingTest, change, passingTest *types.EpisodicEvent
	for _, e := range c.Events {
		switch {
		case e.Type == types.EventTypeTestRun && e.Outcome == types.EventOutcomeFailure:
			failingTest = e
		case e.Type == types.EventTypeFileChange:
			change = e
		case e.Type == types.EventTypeTestRun && e.Outcome == types.EventOutcomeSuccess:
			passingTest = e
		}
	}
	if failingTest != nil && change != nil && passingTest != nil {
		return types.SemanticPattern{
			Description: "test-driven development cycle: failing test, fix, passing test",
			Type:        types.PatternTypeWorkflow,
			Tags:        []string{"tdd", "workflow"},
			Evidence:    failingTest.Content + " " + change.Content + " " + passingTest.Content,
		}, true
	}
	return types.SemanticPattern{}, false
}

func detectErrorRecovery(c Cluster) (types.SemanticPattern, bool) {
	var errEvent, recoveryEvent *types.EpisodicEvent
	for _, e := range c.Events {
		if e.Type == types.EventTypeError {
			errEvent = e
		}
		if errEvent != nil && e.Outcome == types.EventOutcomeSuccess {
			recoveryEvent = e
		}
	}
	if errEvent != nil && recoveryEvent != nil {
		return types.SemanticPattern{
			Description: "error recovery: an error was followed by a successful resolution",
			Type:        types.PatternTypePattern,
			Tags:        []string{"error_recovery"},
			Evidence:    errEvent.Content + " " + recoveryEvent.Content,
		}, true
	}
	return types.SemanticPattern{}, false
}

func detectRefactoring(c Cluster) (types.SemanticPattern, bool) {
	changeCount := 0
	for _, e := range c.Events {
		if e.Type == types.EventTypeFileChange {
			changeCount++
		}
	}
	if changeCount >= 3 && c.SpatialCohesion >= 0.6 {
		return types.SemanticPattern{
			Description: "refactoring: several spatially cohesive file changes in one cluster",
			Type:        types.PatternTypeWorkflow,
			Tags:        []string{"refactoring"},
			Evidence:    fmt.Sprintf("%d file_change events with spatial cohesion %.2f", changeCount, c.SpatialCohesion),
		}, true
	}
	return types.SemanticPattern{}, false
}

func detectArchitecturalDecision(c Cluster) (types.SemanticPattern, bool) {
	for _, e := range c.Events {
		if e.Type == types.EventTypeDecision {
			return types.SemanticPattern{
				Description: "architectural decision recorded: " + truncate(e.Content, 120),
				Type:        types.PatternTypeDecision,
				Tags:        []string{"decision", "architecture"},
				Evidence:    e.Content,
			}, true
		}
	}
	return types.SemanticPattern{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// runSystem1 fires every detector over the cluster, returning one
// candidate per match.
func runSystem1(c Cluster) []candidatePattern {
	var out []candidatePattern
	for _, d := range system1Detectors {
		p, ok := d.detect(c)
		if !ok {
			continue
		}
		p.Confidence = d.confidence
		p.SourceEventIDs = eventIDs(c.Events)
		out = append(out, candidatePattern{SemanticPattern: p, system: "system1"})
	}
	return out
}

func eventIDs(events []*types.EpisodicEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func aggregateConfidence(candidates []candidatePattern) float64 {
	if len(candidates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candidates {
		sum += c.Confidence
	}
	return sum / float64(len(candidates))
}

// needsSystem2 decides whether System 1's output is sufficient (spec §4.8
// step 3 "Decision").
func needsSystem2(c Cluster, system1 []candidatePattern) bool {
	if len(system1) == 0 {
		return true
	}
	looksSimple := len(c.Events) <= simpleClusterMaxEvents
	return !(aggregateConfidence(system1) >= system1ConfidenceFloor && looksSimple)
}

// runSystem2 formats the cluster into a deterministic textual summary and
// asks llm for up to maxPatterns structured candidates. A nil llm (no
// provider configured) yields no System-2 candidates, which is a
// legitimate outcome the pipeline tolerates (spec §4.8 failure semantics).
func runSystem2(ctx context.Context, llm ports.LLMProvider, c Cluster, uncertain []string, maxPatterns int) ([]candidatePattern, error) {
	if llm == nil {
		return nil, nil
	}

	summary := summarizeCluster(c, uncertain)
	resp, err := llm.Complete(ctx, ports.CompletionRequest{
		SystemPrompt: "Extract up to " + strconv.Itoa(maxPatterns) + " generalizable patterns from this cluster of engineering events. Respond with description, type, confidence, tags, and evidence for each.",
		Prompt:       summary,
		MaxTokens:    800,
	})
	if err != nil {
		return nil, err
	}

	patterns := parseSystem2Reply(resp.Text, maxPatterns)
	out := make([]candidatePattern, 0, len(patterns))
	for _, p := range patterns {
		p.SourceEventIDs = eventIDs(c.Events)
		out = append(out, candidatePattern{SemanticPattern: p, system: "system2"})
	}
	return out, nil
}

// summarizeCluster renders a deterministic textual summary of the cluster
// for System 2, including any System-1-flagged uncertain questions.
func summarizeCluster(c Cluster, uncertain []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session=%s events=%d span=%s cohesion=%.2f causal_chain=%t\n",
		c.Session, len(c.Events), c.TemporalSpan, c.SpatialCohesion, c.HasCausalChain)
	for _, e := range c.Events {
		fmt.Fprintf(&b, "- [%s] %s outcome=%s: %s\n", e.Timestamp.Format("15:04:05"), e.Type, e.Outcome, truncate(e.Content, 200))
	}
	if len(uncertain) > 0 {
		b.WriteString("System 2 questions:\n")
		for _, q := range uncertain {
			b.WriteString("- " + q + "\n")
		}
	}
	return b.String()
}

// parseSystem2Reply is a minimal line-oriented parser for the schema-
// constrained reply text. A real deployment would parse the provider's
// native structured-output payload; this keeps the contract simple for a
// fake/test LLMProvider to satisfy.
func parseSystem2Reply(text string, maxPatterns int) []types.SemanticPattern {
	var out []types.SemanticPattern
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(out) >= maxPatterns {
			continue
		}
		out = append(out, types.SemanticPattern{
			Description: line,
			Type:        types.PatternTypePattern,
			Confidence:  0.6,
			Tags:        []string{"system2"},
			Evidence:    line,
		})
	}
	return out
}

// runValidationPass re-rates or rejects each candidate using a stronger
// LLM, when one is configured (spec §4.8 step 3 "Optional Claude
// validation"). Updated confidences replace the originals; a pattern the
// validator scores at or below 0 is dropped.
func runValidationPass(ctx context.Context, validator ports.LLMProvider, c Cluster, candidates []candidatePattern) ([]candidatePattern, error) {
	if validator == nil || len(candidates) == 0 {
		return candidates, nil
	}

	var b strings.Builder
	b.WriteString(summarizeCluster(c, nil))
	b.WriteString("Candidate patterns:\n")
	for i, p := range candidates {
		fmt.Fprintf(&b, "%d. %s (confidence %.2f)\n", i+1, p.Description, p.Confidence)
	}

	resp, err := validator.Complete(ctx, ports.CompletionRequest{
		SystemPrompt: "Re-rate each candidate pattern's confidence in [0,1], or 0 to reject it. Reply with one number per line, in order.",
		Prompt:       b.String(),
		MaxTokens:    200,
	})
	if err != nil {
		return candidates, err
	}

	ratings := parseRatings(resp.Text)
	out := make([]candidatePattern, 0, len(candidates))
	for i, p := range candidates {
		if i < len(ratings) {
			if ratings[i] <= 0 {
				continue
			}
			p.Confidence = ratings[i]
		}
		out = append(out, p)
	}
	return out, nil
}

func parseRatings(text string) []float64 {
	var out []float64
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v float64
		if _, err := fmt.Sscanf(line, "%f", &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// flagUncertain collects a one-line question per System-1 detector that
// did not fire, so System 2 knows what the heuristics were unsure about.
func flagUncertain(c Cluster, system1 []candidatePattern) []string {
	fired := make(map[string]bool, len(system1))
	for _, p := range system1 {
		fired[p.Description] = true
	}
	var out []string
	for _, d := range system1Detectors {
		if _, ok := d.detect(c); !ok {
			out = append(out, "does this cluster exhibit a "+d.name+" pattern?")
		}
	}
	return out
}
