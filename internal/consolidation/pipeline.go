package consolidation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/ports"
	"github.com/shawkridge/athena-sub007/internal/telemetry"
)

const (
	// defaultMaxPatternsPerCluster bounds System 2's output per cluster.
	defaultMaxPatternsPerCluster = 5
	// minClusterSize is the smallest cluster extraction runs over (spec
	// §4.8 step 3, and §8 boundary "single-event cluster => no patterns").
	minClusterSize = 2
)

// Pipeline runs the eight-step consolidation process (spec §4.8) over a
// project's unconsolidated episodic events.
type Pipeline struct {
	events     EventStore
	patterns   PatternStore
	llm        ports.LLMProvider
	validator  ports.LLMProvider // optional "stronger" model, spec §4.8 step 3
	graph      ports.KnowledgeGraphStore // optional, spec §4.8 step 7
	clusterer  *Clusterer
	logger     telemetry.Logger
	now        func() time.Time

	minConfidence   float64
	clusterStrategy ClusterStrategy
	maxPatterns     int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLLM(llm ports.LLMProvider) Option           { return func(p *Pipeline) { p.llm = llm } }
func WithValidator(v ports.LLMProvider) Option        { return func(p *Pipeline) { p.validator = v } }
func WithKnowledgeGraph(g ports.KnowledgeGraphStore) Option {
	return func(p *Pipeline) { p.graph = g }
}
func WithLogger(l telemetry.Logger) Option { return func(p *Pipeline) { p.logger = l } }
func WithClock(fn func() time.Time) Option { return func(p *Pipeline) { p.now = fn } }
func WithMinConfidence(c float64) Option    { return func(p *Pipeline) { p.minConfidence = c } }
func WithClusterStrategy(s ClusterStrategy) Option {
	return func(p *Pipeline) { p.clusterStrategy = s }
}
func WithClusterer(c *Clusterer) Option { return func(p *Pipeline) { p.clusterer = c } }

// New constructs a Pipeline over events/patterns, with defaults matching
// spec §6 (min confidence 0.7, context clustering).
func New(events EventStore, patterns PatternStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		events:          events,
		patterns:        patterns,
		clusterer:       NewClusterer(),
		logger:          telemetry.NewNoopLogger(),
		now:             func() time.Time { return time.Now().UTC() },
		minConfidence:   0.7,
		clusterStrategy: ClusterStrategyContext,
		maxPatterns:     defaultMaxPatternsPerCluster,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the full consolidation pipeline over project's window
// (spec §4.8). Failure of any per-cluster step is logged and skipped; the
// run as a whole always returns a report (spec §4.8 failure semantics).
func (p *Pipeline) Run(ctx context.Context, project string, window time.Duration) (ConsolidationReport, error) {
	runAt := p.now()
	report := ConsolidationReport{RunAt: runAt}

	// Step 1: event acquisition.
	events, err := p.events.UnconsolidatedInWindow(ctx, project, runAt.Add(-window))
	if err != nil {
		return report, err
	}
	report.EventsProcessed = len(events)
	if len(events) == 0 {
		return report, nil
	}

	// Step 2: clustering.
	clusters := p.clusterer.Cluster(events, p.clusterStrategy)
	report.ClustersFormed = len(clusters)

	var survivingPatterns []candidatePattern
	var consolidatedEventIDs []string

	for _, cluster := range clusters {
		if len(cluster.Events) < minClusterSize {
			consolidatedEventIDs = append(consolidatedEventIDs, eventIDs(cluster.Events)...)
			continue
		}

		patterns, err := p.extractCluster(ctx, cluster)
		if err != nil {
			p.logger.Warn(ctx, "cluster extraction failed, skipping", "session", cluster.Session, "error", err)
			continue
		}

		// Step 4: validation and grounding.
		var validated []candidatePattern
		for _, cand := range patterns {
			v, ok := Validate(cand, cluster)
			if !ok {
				report.PatternsRejected++
				continue
			}
			validated = append(validated, v)
		}

		// Step 5: conflict resolution between System 1 and System 2.
		resolved := ResolveConflicts(validated)

		for _, r := range resolved {
			if r.Confidence < p.minConfidence {
				report.PatternsRejected++
				continue
			}
			survivingPatterns = append(survivingPatterns, r)
		}

		consolidatedEventIDs = append(consolidatedEventIDs, eventIDs(cluster.Events)...)
	}

	// Step 6: persistence.
	qualityBefore := QualityScore(nil, 0)
	for _, pat := range survivingPatterns {
		pat.ID = uuid.NewString()
		pat.Tags = append(pat.Tags, confidenceBucket(pat.Confidence), "consolidation")
		toSave := pat.SemanticPattern
		if err := p.patterns.SavePattern(ctx, &toSave); err != nil {
			p.logger.Warn(ctx, "pattern persistence failed, skipping", "pattern_id", pat.ID, "error", err)
			continue
		}
		report.PatternsExtracted++
	}
	if err := p.events.MarkConsolidated(ctx, consolidatedEventIDs); err != nil {
		p.logger.Warn(ctx, "marking events consolidated failed", "error", err)
	}

	report.QualityBefore = qualityBefore
	report.QualityAfter = QualityScore(survivingPatterns, 1.0)
	report.QualityDelta = report.QualityAfter - report.QualityBefore

	// Step 7: temporal-graph synthesis (optional).
	if p.graph != nil {
		p.synthesizeGraph(ctx, clusters)
	}

	p.logger.Info(ctx, "consolidation run complete", "project", project,
		"events", report.EventsProcessed, "clusters", report.ClustersFormed,
		"patterns", report.PatternsExtracted, "quality_delta", report.QualityDelta)

	return report, nil
}

func (p *Pipeline) extractCluster(ctx context.Context, cluster Cluster) ([]candidatePattern, error) {
	system1 := runSystem1(cluster)

	if !needsSystem2(cluster, system1) {
		return system1, nil
	}

	uncertain := flagUncertain(cluster, system1)
	system2, err := runSystem2(ctx, p.llm, cluster, uncertain, p.maxPatterns)
	if err != nil {
		return system1, err
	}

	all := append(append([]candidatePattern(nil), system1...), system2...)

	validated, err := runValidationPass(ctx, p.validator, cluster, all)
	if err != nil {
		return all, err
	}
	return validated, nil
}

func confidenceBucket(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "confidence:high"
	case confidence >= 0.5:
		return "confidence:medium"
	default:
		return "confidence:low"
	}
}

// causalityThreshold and minFrequency pin the temporal-graph synthesis's
// tunables (spec §4.8 step 7); the knowledge graph store itself is out of
// core scope (spec §1), so this only derives and pushes entity/relation
// updates through the ports.KnowledgeGraphStore interface.
const (
	causalityThreshold = 0.5
	minFrequency        = 2
)

func (p *Pipeline) synthesizeGraph(ctx context.Context, clusters []Cluster) {
	entityFreq := make(map[string]int)
	for _, c := range clusters {
		for _, e := range c.Events {
			if e.Task != "" {
				entityFreq[e.Task]++
			}
		}
	}
	for entity, freq := range entityFreq {
		if freq < minFrequency {
			continue
		}
		weight := float64(freq) / float64(len(clusters)+1)
		if weight < causalityThreshold {
			continue
		}
		if err := p.graph.UpsertEntity(ctx, entity, "task", weight); err != nil {
			p.logger.Warn(ctx, "knowledge graph upsert failed", "entity", entity, "error", err)
		}
	}
}
