// Package learning implements the Learning Integration component (spec
// §4.2 data flow, §10 supplemented features): a per-worker/per-domain
// success ledger that feeds the Executive Function's Strategy Selector,
// plus small procedural and meta knowledge stores. This replaces the
// teacher's module-level learning-manager singleton (spec §9 "Global
// mutable state") with an explicit dependency constructed once in
// cmd/orchestratord and held there; it is not passed to the orchestrator,
// which has no learning dependency.
package learning

import (
	"sync"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// ledgerKey identifies one (worker type, domain) bucket.
type ledgerKey struct {
	workerType string
	domain     string
}

// LedgerEntry is the rolling record for one (workerType, domain) pair.
type LedgerEntry struct {
	Attempts       int
	Successes      int
	confidenceSum  float64
	AvgConfidence  float64
}

// ProceduralKnowledge is a learned "how to do X" note, keyed by a free-form
// skill/task-shape name.
type ProceduralKnowledge struct {
	Name        string
	Description string
	Confidence  float64
	UsageCount  int
}

// MetaKnowledge is a learned fact about the system's own behavior (e.g.
// "strategy X tends to underestimate hours for migration-class goals").
type MetaKnowledge struct {
	Subject     string
	Observation string
	Confidence  float64
}

// Manager owns the success ledger and the procedural/meta knowledge
// stores. Constructed once and injected; never a package global.
type Manager struct {
	mu        sync.Mutex
	ledger    map[ledgerKey]*LedgerEntry
	procedural map[string]*ProceduralKnowledge
	meta      map[string]*MetaKnowledge
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{
		ledger:     make(map[ledgerKey]*LedgerEntry),
		procedural: make(map[string]*ProceduralKnowledge),
		meta:       make(map[string]*MetaKnowledge),
	}
}

// RecordOutcome folds a completed task's outcome into the (workerType,
// domain) ledger entry.
func (m *Manager) RecordOutcome(workerType string, domain string, success bool, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey{workerType: workerType, domain: domain}
	e, ok := m.ledger[key]
	if !ok {
		e = &LedgerEntry{}
		m.ledger[key] = e
	}
	e.Attempts++
	if success {
		e.Successes++
	}
	e.confidenceSum += confidence
	e.AvgConfidence = e.confidenceSum / float64(e.Attempts)
}

// SuccessRate returns the ledger's success rate for (workerType, domain),
// defaulting to 0.5 (no bias) when there is no history.
func (m *Manager) SuccessRate(workerType, domain string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ledger[ledgerKey{workerType: workerType, domain: domain}]
	if !ok || e.Attempts == 0 {
		return 0.5
	}
	return float64(e.Successes) / float64(e.Attempts)
}

// Entry returns a copy of the ledger entry for (workerType, domain), and
// whether it exists.
func (m *Manager) Entry(workerType, domain string) (LedgerEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ledger[ledgerKey{workerType: workerType, domain: domain}]
	if !ok {
		return LedgerEntry{}, false
	}
	return *e, true
}

// RecordProcedural upserts a procedural knowledge note, averaging
// confidence across observations and bumping UsageCount.
func (m *Manager) RecordProcedural(name, description string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procedural[name]
	if !ok {
		m.procedural[name] = &ProceduralKnowledge{Name: name, Description: description, Confidence: confidence, UsageCount: 1}
		return
	}
	p.UsageCount++
	p.Confidence = (p.Confidence*float64(p.UsageCount-1) + confidence) / float64(p.UsageCount)
	if description != "" {
		p.Description = description
	}
}

// Procedural returns the procedural knowledge note for name, if any.
func (m *Manager) Procedural(name string) (ProceduralKnowledge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procedural[name]
	if !ok {
		return ProceduralKnowledge{}, false
	}
	return *p, true
}

// RecordMeta upserts a meta-knowledge observation about subject.
func (m *Manager) RecordMeta(subject, observation string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[subject] = &MetaKnowledge{Subject: subject, Observation: observation, Confidence: confidence}
}

// Meta returns the meta-knowledge entry for subject, if any.
func (m *Manager) Meta(subject string) (MetaKnowledge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.meta[subject]
	if !ok {
		return MetaKnowledge{}, false
	}
	return *mk, true
}

// RecordGoalOutcome is a convenience wrapper letting the Strategy Selector
// feed a completed goal's strategy outcome straight into the ledger, keyed
// by strategy name as the "domain" axis for a synthetic "executive" worker
// type.
func (m *Manager) RecordGoalOutcome(strategy types.Strategy, success bool, confidence float64) {
	m.RecordOutcome("executive", string(strategy), success, confidence)
}

// StrategySuccessRate mirrors SuccessRate for the "executive" worker type,
// for convenient use from internal/executive.
func (m *Manager) StrategySuccessRate(strategy types.Strategy) float64 {
	return m.SuccessRate("executive", string(strategy))
}
