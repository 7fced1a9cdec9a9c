package predictor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/predictor"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// TestMonotoneLoadTrendsHighSeverityAlert is spec §8 scenario 6: feeding
// monotonically increasing CPU utilization should cross the high/critical
// severity bar with a predicted time-to-saturation inside the alert horizon.
func TestMonotoneLoadTrendsHighSeverityAlert(t *testing.T) {
	d := predictor.NewBottleneckDetector()
	for _, u := range []float64{0.70, 0.74, 0.78, 0.82} {
		d.Record("cpu", u)
	}

	alert, ok := d.Check("cpu")
	require.True(t, ok, "trending-up utilization near the saturation threshold must raise an alert")
	assert.Contains(t, []types.RiskLevel{types.RiskLevelHigh, types.RiskLevelCritical}, alert.Severity)
	assert.LessOrEqual(t, alert.PredictedSaturationIn.Minutes(), 60.0, "one step away from saturation at this slope")
}

func TestBottleneckDetectorCriticalAboveCriticalThreshold(t *testing.T) {
	d := predictor.NewBottleneckDetector()
	d.Record("memory", 0.5)
	d.Record("memory", 0.97)

	alert, ok := d.Check("memory")
	require.True(t, ok)
	assert.Equal(t, types.RiskLevelCritical, alert.Severity)
	assert.NotEmpty(t, alert.Mitigations)
}

func TestBottleneckDetectorNoAlertWhenFlatAndLow(t *testing.T) {
	d := predictor.NewBottleneckDetector()
	for i := 0; i < 5; i++ {
		d.Record("disk", 0.2)
	}
	_, ok := d.Check("disk")
	assert.False(t, ok, "flat low utilization should not alert")
}

func TestTemporalReasonerDetectsTrend(t *testing.T) {
	r := predictor.NewTemporalReasoner()
	for i := 0; i < 10; i++ {
		r.Observe("latency", float64(i))
	}
	patterns := r.Analyze("latency")
	require.NotEmpty(t, patterns)
	found := false
	for _, p := range patterns {
		if p.Kind == "trend" {
			found = true
			assert.Contains(t, p.Description, "increasing")
		}
	}
	assert.True(t, found, "a strictly increasing series should surface a trend pattern")
}

func TestTemporalReasonerShortStreamYieldsNoPatterns(t *testing.T) {
	r := predictor.NewTemporalReasoner()
	r.Observe("m", 1.0)
	r.Observe("m", 2.0)
	assert.Empty(t, r.Analyze("m"), "fewer than four samples is not enough to analyze")
}

func TestEnsembleForecastConfidenceIntervalOrdered(t *testing.T) {
	dp := predictor.EnsembleForecast([]float64{10, 12, 11, 13, 14, 15}, 1, 24)
	assert.LessOrEqual(t, dp.Interval.Lower, dp.Interval.Point)
	assert.LessOrEqual(t, dp.Interval.Point, dp.Interval.Upper)
	assert.GreaterOrEqual(t, dp.Interval.Lower, 0.0)
}

func TestPredictorPredictComposesSubsystems(t *testing.T) {
	p := predictor.New()
	p.RecordDuration("research", 100)
	p.RecordDuration("research", 120)
	p.RecordDuration("research", 110)
	p.RecordUtilization("cpu", 0.9)

	result := p.Predict(context.Background(), "task-1", "research")
	assert.Equal(t, "task-1", result.TaskID)
	assert.NotEmpty(t, result.ID)
	assert.LessOrEqual(t, result.Duration.Interval.Lower, result.Duration.Interval.Point)
	assert.LessOrEqual(t, result.Duration.Interval.Point, result.Duration.Interval.Upper)
	assert.GreaterOrEqual(t, result.SuccessProbability, 0.0)
	assert.LessOrEqual(t, result.SuccessProbability, 1.0)
}

func TestPredictorVerifyRecordsWithinBounds(t *testing.T) {
	p := predictor.New()
	rec := p.Verify("task-2", types.ConfidenceInterval{Lower: 10, Point: 20, Upper: 30, Level: 0.9}, 25)
	assert.True(t, rec.WithinBounds)
	assert.InDelta(t, 25.0, rec.ErrorPercent, 0.01)

	history := p.VerificationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "task-2", history[0].TaskID)
}
