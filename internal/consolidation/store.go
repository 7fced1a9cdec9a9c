// Package consolidation implements the episodic->semantic Consolidation
// Pipeline (spec §4.8): clustering, dual-process pattern extraction,
// grounding/validation, System-1/System-2 conflict resolution, persistence,
// and an optional temporal-graph synthesis step.
package consolidation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// ErrLowGrounding names the rejection of a candidate pattern whose
// grounding score falls below the rejection floor (spec §4.8 step 4, §7
// "Validation"). No function in this package returns it: Validate reports
// that case through its boolean result.
var ErrLowGrounding = errors.New("consolidation: pattern grounding too low")

// EventStore is the narrow episodic-event slice of the Store Contract
// (spec §6) the pipeline needs: list unconsolidated events in a window,
// and flip their status once folded into a pattern.
type EventStore interface {
	UnconsolidatedInWindow(ctx context.Context, project string, since time.Time) ([]*types.EpisodicEvent, error)
	MarkConsolidated(ctx context.Context, eventIDs []string) error
}

// PatternStore persists surviving SemanticPatterns.
type PatternStore interface {
	SavePattern(ctx context.Context, p *types.SemanticPattern) error
}

// MemoryEventStore is an in-memory EventStore, mirroring
// internal/store.MemoryStore's shape for tasks.
type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string]*types.EpisodicEvent
	order  []string
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]*types.EpisodicEvent)}
}

var _ EventStore = (*MemoryEventStore)(nil)

// Append inserts an event, assigning an ID if unset.
func (s *MemoryEventStore) Append(e *types.EpisodicEvent) *types.EpisodicEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.ConsolidationStatus == "" {
		cp.ConsolidationStatus = types.ConsolidationStatusUnconsolidated
	}
	s.events[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	return &cp
}

func (s *MemoryEventStore) UnconsolidatedInWindow(ctx context.Context, project string, since time.Time) ([]*types.EpisodicEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.EpisodicEvent
	for _, id := range s.order {
		e := s.events[id]
		if e.ConsolidationStatus != types.ConsolidationStatusUnconsolidated {
			continue
		}
		if !e.Timestamp.After(since) {
			continue
		}
		if project != "" && e.CWD != project {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryEventStore) MarkConsolidated(ctx context.Context, eventIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range eventIDs {
		if e, ok := s.events[id]; ok {
			e.ConsolidationStatus = types.ConsolidationStatusConsolidated
		}
	}
	return nil
}

// MemoryPatternStore is an in-memory PatternStore.
type MemoryPatternStore struct {
	mu       sync.Mutex
	patterns []*types.SemanticPattern
}

func NewMemoryPatternStore() *MemoryPatternStore { return &MemoryPatternStore{} }

var _ PatternStore = (*MemoryPatternStore)(nil)

func (s *MemoryPatternStore) SavePattern(ctx context.Context, p *types.SemanticPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patterns = append(s.patterns, &cp)
	return nil
}

func (s *MemoryPatternStore) All() []*types.SemanticPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.SemanticPattern(nil), s.patterns...)
}
