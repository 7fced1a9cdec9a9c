package consolidation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/consolidation"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func seedTDDTrio(t *testing.T, events *consolidation.MemoryEventStore, session string, base time.Time) {
	t.Helper()
	events.Append(&types.EpisodicEvent{
		ID: "e1", Session: session, Timestamp: base,
		Type: types.EventTypeTestRun, Outcome: types.EventOutcomeFailure,
		Content: "test_login_flow failed: expected 200 got 401", CWD: "/repo",
	})
	events.Append(&types.EpisodicEvent{
		ID: "e2", Session: session, Timestamp: base.Add(time.Minute),
		Type: types.EventTypeFileChange, Outcome: types.EventOutcomeSuccess,
		Content: "updated auth middleware to accept bearer tokens", CWD: "/repo",
	})
	events.Append(&types.EpisodicEvent{
		ID: "e3", Session: session, Timestamp: base.Add(2 * time.Minute),
		Type: types.EventTypeTestRun, Outcome: types.EventOutcomeSuccess,
		Content: "test_login_flow failed: expected 200 got 401 updated auth middleware to accept bearer tokens passed",
		CWD:     "/repo",
	})
}

// TestConsolidationOfTDDTrio is spec §8 scenario 3: a failing test, a fix,
// and a passing test in one session cluster together and extract a TDD
// workflow pattern with confidence >= 0.7; the events are marked consolidated.
func TestConsolidationOfTDDTrio(t *testing.T) {
	events := consolidation.NewMemoryEventStore()
	patterns := consolidation.NewMemoryPatternStore()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	seedTDDTrio(t, events, "sess-1", base)

	runAt := base.Add(time.Hour)
	pipeline := consolidation.New(events, patterns, consolidation.WithClock(func() time.Time { return runAt }))

	report, err := pipeline.Run(context.Background(), "", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, report.EventsProcessed)
	assert.Equal(t, 1, report.ClustersFormed)
	require.Equal(t, 1, report.PatternsExtracted)

	saved := patterns.All()
	require.Len(t, saved, 1)
	assert.GreaterOrEqual(t, saved[0].Confidence, 0.7)
	assert.Contains(t, saved[0].Tags, "tdd")

	remaining, err := events.UnconsolidatedInWindow(context.Background(), "", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, remaining, "all three events should be flipped to consolidated")
}

// TestSecondConsolidationRunProcessesNoEvents is spec §8's idempotence
// property: a second run over the same window processes zero events.
func TestSecondConsolidationRunProcessesNoEvents(t *testing.T) {
	events := consolidation.NewMemoryEventStore()
	patterns := consolidation.NewMemoryPatternStore()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	seedTDDTrio(t, events, "sess-1", base)

	pipeline := consolidation.New(events, patterns, consolidation.WithClock(func() time.Time { return base.Add(time.Hour) }))
	_, err := pipeline.Run(context.Background(), "", 24*time.Hour)
	require.NoError(t, err)

	second, err := pipeline.Run(context.Background(), "", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, second.EventsProcessed)
	assert.Equal(t, 0.0, second.QualityDelta)
}

// TestEmptyEventWindowYieldsZeroedReport is spec §8's boundary behavior:
// empty event set => consolidation report with all counts 0 and quality
// delta 0.
func TestEmptyEventWindowYieldsZeroedReport(t *testing.T) {
	events := consolidation.NewMemoryEventStore()
	patterns := consolidation.NewMemoryPatternStore()
	pipeline := consolidation.New(events, patterns)

	report, err := pipeline.Run(context.Background(), "", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EventsProcessed)
	assert.Equal(t, 0, report.ClustersFormed)
	assert.Equal(t, 0, report.PatternsExtracted)
	assert.Equal(t, 0.0, report.QualityDelta)
}

// TestSingleEventClusterExtractsNoPatterns is spec §8's boundary behavior:
// single-event cluster => no patterns extracted.
func TestSingleEventClusterExtractsNoPatterns(t *testing.T) {
	events := consolidation.NewMemoryEventStore()
	patterns := consolidation.NewMemoryPatternStore()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events.Append(&types.EpisodicEvent{
		ID: "lone", Session: "sess-only", Timestamp: base,
		Type: types.EventTypeAction, Outcome: types.EventOutcomeSuccess, Content: "ran a one-off script",
	})

	pipeline := consolidation.New(events, patterns, consolidation.WithClock(func() time.Time { return base.Add(time.Hour) }))
	report, err := pipeline.Run(context.Background(), "", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, report.EventsProcessed)
	assert.Equal(t, 0, report.PatternsExtracted)
}
