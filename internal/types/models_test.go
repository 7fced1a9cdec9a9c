package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shawkridge/athena-sub007/internal/types"
)

func TestAgentRecordDecisionTracksRollingMetrics(t *testing.T) {
	a := &types.Agent{}

	a.RecordDecision(true, 0.9, 100*time.Millisecond)
	assert.Equal(t, 1, a.DecisionsMade)
	assert.Equal(t, 1, a.Successes)
	assert.Equal(t, 0, a.Errors)
	assert.InDelta(t, 0.0, a.ErrorRate, 1e-9)
	assert.InDelta(t, 0.9, a.AverageConfidence, 1e-9)
	assert.InDelta(t, 100, a.AverageDecisionMs, 1e-9)

	a.RecordDecision(false, 0.1, 300*time.Millisecond)
	assert.Equal(t, 2, a.DecisionsMade)
	assert.Equal(t, 1, a.Successes)
	assert.Equal(t, 1, a.Errors)
	assert.InDelta(t, 0.5, a.ErrorRate, 1e-9)
	assert.InDelta(t, 0.5, a.AverageConfidence, 1e-9) // mean of 0.9 and 0.1
	assert.InDelta(t, 200, a.AverageDecisionMs, 1e-9) // running mean of 100 and 300
}

func TestAgentRecordDecisionConfidenceRingBounded(t *testing.T) {
	a := &types.Agent{}
	for i := 0; i < 150; i++ {
		a.RecordDecision(true, 1.0, time.Millisecond)
	}
	// All confidences are 1.0 regardless of ring length, but the ring must
	// not grow past its 100-entry cap; DecisionsMade still counts every call.
	assert.Equal(t, 150, a.DecisionsMade)
	assert.InDelta(t, 1.0, a.AverageConfidence, 1e-9)
}

func TestAgentHealthy(t *testing.T) {
	healthy := &types.Agent{ErrorRate: 0.2, AverageConfidence: 0.5}
	assert.True(t, healthy.Healthy())

	unhealthyByError := &types.Agent{ErrorRate: 0.21, AverageConfidence: 0.9}
	assert.False(t, unhealthyByError.Healthy())

	unhealthyByConfidence := &types.Agent{ErrorRate: 0.0, AverageConfidence: 0.49}
	assert.False(t, unhealthyByConfidence.Healthy())

	freshAgent := &types.Agent{}
	assert.False(t, freshAgent.Healthy(), "a fresh agent has zero average confidence, below the 0.5 floor")
}

func TestConfidenceIntervalRelativeUncertainty(t *testing.T) {
	ci := types.ConfidenceInterval{Lower: 8, Point: 10, Upper: 12}
	assert.InDelta(t, 0.2, ci.RelativeUncertainty(), 1e-9)

	zero := types.ConfidenceInterval{Lower: 0, Point: 0, Upper: 0}
	assert.Equal(t, 0.0, zero.RelativeUncertainty())

	negative := types.ConfidenceInterval{Lower: -12, Point: -10, Upper: -8}
	assert.InDelta(t, 0.2, negative.RelativeUncertainty(), 1e-9)
}

func TestConfidenceIntervalOrderingInvariant(t *testing.T) {
	ci := types.ConfidenceInterval{Lower: 1, Point: 5, Upper: 9}
	assert.LessOrEqual(t, ci.Lower, ci.Point)
	assert.LessOrEqual(t, ci.Point, ci.Upper)
}
