package learning_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/learning"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func TestSuccessRateDefaultsToOneHalfWithNoHistory(t *testing.T) {
	m := learning.New()
	assert.Equal(t, 0.5, m.SuccessRate("research", "migration"))
}

func TestRecordOutcomeAccumulatesSuccessRateAndAvgConfidence(t *testing.T) {
	m := learning.New()
	m.RecordOutcome("research", "migration", true, 0.9)
	m.RecordOutcome("research", "migration", true, 0.7)
	m.RecordOutcome("research", "migration", false, 0.2)

	assert.InDelta(t, 2.0/3.0, m.SuccessRate("research", "migration"), 1e-9)

	entry, ok := m.Entry("research", "migration")
	require.True(t, ok)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, 2, entry.Successes)
	assert.InDelta(t, (0.9+0.7+0.2)/3.0, entry.AvgConfidence, 1e-9)
}

func TestLedgerEntriesAreKeyedIndependentlyPerDomain(t *testing.T) {
	m := learning.New()
	m.RecordOutcome("research", "migration", true, 1.0)
	m.RecordOutcome("research", "onboarding", false, 0.3)

	assert.Equal(t, 1.0, m.SuccessRate("research", "migration"))
	assert.Equal(t, 0.0, m.SuccessRate("research", "onboarding"))
}

func TestEntryReportsMissingForUnseenKey(t *testing.T) {
	m := learning.New()
	_, ok := m.Entry("debugging", "never-seen")
	assert.False(t, ok)
}

func TestRecordProceduralAveragesConfidenceAcrossUsages(t *testing.T) {
	m := learning.New()
	m.RecordProcedural("bisect-regression", "binary-search the commit range", 0.8)
	m.RecordProcedural("bisect-regression", "narrow with git bisect run", 0.6)

	p, ok := m.Procedural("bisect-regression")
	require.True(t, ok)
	assert.Equal(t, 2, p.UsageCount)
	assert.InDelta(t, 0.7, p.Confidence, 1e-9)
	assert.Equal(t, "narrow with git bisect run", p.Description, "latest non-empty description wins")
}

func TestRecordProceduralKeepsPriorDescriptionWhenNewOneIsEmpty(t *testing.T) {
	m := learning.New()
	m.RecordProcedural("retry-flaky-test", "rerun up to 3 times", 0.5)
	m.RecordProcedural("retry-flaky-test", "", 0.9)

	p, ok := m.Procedural("retry-flaky-test")
	require.True(t, ok)
	assert.Equal(t, "rerun up to 3 times", p.Description)
}

func TestRecordMetaOverwritesPriorObservationForSameSubject(t *testing.T) {
	m := learning.New()
	m.RecordMeta("migration-estimates", "tends to run short by 20%", 0.6)
	m.RecordMeta("migration-estimates", "tends to run short by 35%", 0.75)

	mk, ok := m.Meta("migration-estimates")
	require.True(t, ok)
	assert.Equal(t, "tends to run short by 35%", mk.Observation)
	assert.Equal(t, 0.75, mk.Confidence)
}

func TestMetaReportsMissingForUnseenSubject(t *testing.T) {
	m := learning.New()
	_, ok := m.Meta("never-observed")
	assert.False(t, ok)
}

// TestRecordGoalOutcomeFeedsStrategySuccessRate verifies the executive-facing
// convenience wrapper folds into the same ledger under the synthetic
// "executive" worker type, keyed by strategy name.
func TestRecordGoalOutcomeFeedsStrategySuccessRate(t *testing.T) {
	m := learning.New()
	assert.Equal(t, 0.5, m.StrategySuccessRate(types.StrategySpike))

	m.RecordGoalOutcome(types.StrategySpike, true, 0.8)
	m.RecordGoalOutcome(types.StrategySpike, true, 0.6)
	m.RecordGoalOutcome(types.StrategyParallel, false, 0.1)

	assert.Equal(t, 1.0, m.StrategySuccessRate(types.StrategySpike))
	assert.Equal(t, 0.0, m.StrategySuccessRate(types.StrategyParallel))

	entry, ok := m.Entry("executive", string(types.StrategySpike))
	require.True(t, ok)
	assert.Equal(t, 2, entry.Attempts)
}
