package predictor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

const baseSuccessProbability = 0.85

// Predictor composes the Temporal Reasoner, Bottleneck Detector, and
// time-series ensemble into per-task PredictionResults (spec §4.9).
type Predictor struct {
	logger    telemetry.Logger
	reasoner  *TemporalReasoner
	detector  *BottleneckDetector

	mu       sync.Mutex
	history  map[string][]float64 // task type -> duration history, in seconds
	verified []VerificationRecord
}

// PredictorOption configures a Predictor.
type PredictorOption func(*Predictor)

func WithLogger(l telemetry.Logger) PredictorOption {
	return func(p *Predictor) { p.logger = l }
}

func WithReasoner(r *TemporalReasoner) PredictorOption {
	return func(p *Predictor) { p.reasoner = r }
}

func WithDetector(d *BottleneckDetector) PredictorOption {
	return func(p *Predictor) { p.detector = d }
}

// New constructs a Predictor with fresh Temporal Reasoner and Bottleneck
// Detector instances, unless overridden via options.
func New(opts ...PredictorOption) *Predictor {
	p := &Predictor{
		logger:   telemetry.NewNoopLogger(),
		reasoner: NewTemporalReasoner(),
		detector: NewBottleneckDetector(),
		history:  make(map[string][]float64),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RecordDuration feeds a completed task's actual duration (seconds) into
// taskType's history, for future ensemble forecasts.
func (p *Predictor) RecordDuration(taskType string, seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hist := append(p.history[taskType], seconds)
	if len(hist) > maxObservations {
		hist = hist[len(hist)-maxObservations:]
	}
	p.history[taskType] = hist
}

// RecordUtilization feeds a resource utilization reading into the
// bottleneck detector and the temporal reasoner (metric name
// "resource:<name>").
func (p *Predictor) RecordUtilization(resource string, utilization float64) {
	p.detector.Record(resource, utilization)
	p.reasoner.Observe("resource:"+resource, utilization)
}

// Predict produces a PredictionResult for a task of taskType (spec §4.9).
func (p *Predictor) Predict(ctx context.Context, taskID, taskType string) types.PredictionResult {
	p.mu.Lock()
	hist := append([]float64(nil), p.history[taskType]...)
	p.mu.Unlock()

	duration := EnsembleForecast(hist, 1, 24)

	var forecasts []types.ResourceForecast
	var alerts []types.BottleneckAlert
	constrainedCount := 0
	criticalCount := 0
	for _, resource := range AllResourceKinds() {
		window := p.reasoner.Snapshot("resource:" + resource)
		if len(window) > 0 {
			point := window[len(window)-1]
			forecasts = append(forecasts, types.ResourceForecast{
				Resource: resource,
				Interval: types.ConfidenceInterval{Lower: point * 0.9, Point: point, Upper: point * 1.1, Level: 0.9},
			})
			if point >= p.detector.saturationThreshold {
				constrainedCount++
			}
		}
		if alert, ok := p.detector.Check(resource); ok {
			alerts = append(alerts, alert)
			if alert.Severity == types.RiskLevelCritical {
				criticalCount++
			}
		}
	}

	var temporalDescriptions []string
	for _, resource := range AllResourceKinds() {
		for _, pattern := range p.reasoner.Analyze("resource:" + resource) {
			temporalDescriptions = append(temporalDescriptions, pattern.Description)
		}
	}

	successProbability := baseSuccessProbability
	for i := 0; i < constrainedCount; i++ {
		successProbability *= 0.9
	}
	for i := 0; i < criticalCount; i++ {
		successProbability *= 0.95
	}

	result := types.PredictionResult{
		ID:                  uuid.NewString(),
		TaskID:              taskID,
		Duration:            duration,
		ResourceForecasts:   forecasts,
		BottleneckAlerts:    alerts,
		TemporalPatterns:    temporalDescriptions,
		OverallRisk:         riskFromProbability(successProbability),
		SuccessProbability:  successProbability,
		OverallConfidence:    1 - duration.Interval.RelativeUncertainty(),
		Recommendations:     recommendationsFor(alerts),
		CriticalConstraints: criticalConstraintNames(alerts),
	}

	p.logger.Info(ctx, "prediction produced", "task_id", taskID, "risk", string(result.OverallRisk), "success_probability", result.SuccessProbability)
	return result
}

func riskFromProbability(p float64) types.RiskLevel {
	switch {
	case p >= 0.9:
		return types.RiskLevelLow
	case p >= 0.75:
		return types.RiskLevelMedium
	case p >= 0.5:
		return types.RiskLevelHigh
	default:
		return types.RiskLevelCritical
	}
}

func recommendationsFor(alerts []types.BottleneckAlert) []string {
	var out []string
	for _, a := range alerts {
		out = append(out, a.Mitigations...)
	}
	return out
}

func criticalConstraintNames(alerts []types.BottleneckAlert) []string {
	var out []string
	for _, a := range alerts {
		if a.Severity == types.RiskLevelCritical || a.Severity == types.RiskLevelHigh {
			out = append(out, a.Resource)
		}
	}
	return out
}

// VerificationRecord captures how a forecast compared to what actually
// happened, driving the predictor's self-assessment metrics (spec §4.9).
type VerificationRecord struct {
	TaskID       string
	Predicted    types.ConfidenceInterval
	Actual       float64
	ErrorPercent float64
	WithinBounds bool
}

// Verify records the outcome once a real execution completes, per spec
// §4.9 "Prediction verification".
func (p *Predictor) Verify(taskID string, predicted types.ConfidenceInterval, actual float64) VerificationRecord {
	errPct := 0.0
	if predicted.Point != 0 {
		errPct = (actual - predicted.Point) / predicted.Point * 100
		if errPct < 0 {
			errPct = -errPct
		}
	}
	rec := VerificationRecord{
		TaskID:       taskID,
		Predicted:    predicted,
		Actual:       actual,
		ErrorPercent: errPct,
		WithinBounds: actual >= predicted.Lower && actual <= predicted.Upper,
	}
	p.mu.Lock()
	p.verified = append(p.verified, rec)
	p.mu.Unlock()
	return rec
}

// VerificationHistory returns all recorded verification outcomes.
func (p *Predictor) VerificationHistory() []VerificationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]VerificationRecord(nil), p.verified...)
}
