package types

import "time"

// Agent is an addressable worker tracked by the registry. Created on spawn,
// mutated by the worker loop and the health monitor, destroyed on
// deregistration.
type Agent struct {
	ID                 string
	Type               AgentType
	Capabilities       []string
	Status             AgentStatus
	CurrentTask        string
	LastHeartbeat       time.Time
	RestartCount       int
	DecisionsMade      int
	Successes          int
	Errors             int
	ErrorRate          float64
	AverageConfidence  float64
	AverageDecisionMs  float64
	confidenceRing     []float64 // last up to 100 confidences, oldest first
}

// RecordDecision folds a completed decision into the agent's rolling
// metrics: decisions++, successes++ or errors++, a running mean latency,
// and a bounded ring (last 100) of confidence to re-derive AverageConfidence.
func (a *Agent) RecordDecision(success bool, confidence float64, latency time.Duration) {
	a.DecisionsMade++
	if success {
		a.Successes++
	} else {
		a.Errors++
	}
	if a.DecisionsMade > 0 {
		a.ErrorRate = float64(a.Errors) / float64(a.DecisionsMade)
	}
	n := float64(a.DecisionsMade)
	a.AverageDecisionMs += (float64(latency.Milliseconds()) - a.AverageDecisionMs) / n

	const ringCap = 100
	a.confidenceRing = append(a.confidenceRing, confidence)
	if len(a.confidenceRing) > ringCap {
		a.confidenceRing = a.confidenceRing[len(a.confidenceRing)-ringCap:]
	}
	var sum float64
	for _, c := range a.confidenceRing {
		sum += c
	}
	a.AverageConfidence = sum / float64(len(a.confidenceRing))
}

// Healthy reports whether the agent meets the health bar from spec §4.4:
// error rate at most 0.2 and average confidence at least 0.5. Liveness
// (running) is the caller's concern; this only covers the rolling-metric
// half of the definition.
func (a *Agent) Healthy() bool {
	return a.ErrorRate <= 0.2 && a.AverageConfidence >= 0.5
}

// Message is an envelope on the bus. Owned by the bus until delivered.
type Message struct {
	ID                string
	Sender            string
	Recipient         string
	Kind              MessageKind
	Payload           map[string]any
	Priority          float64 // in [0,1]
	Timestamp         time.Time
	CorrelationID     string
	ResponseExpected  bool
	Timeout           time.Duration
}

// Task is a unit of work tracked by the store. Owned by the store; agents
// hold only references.
type Task struct {
	ID              string
	Title           string
	Description     string
	Status          TaskStatus
	Priority        TaskPriority
	AssignedAgent   string
	Progress        int // percent, 0..100
	BlockedBy       string
	ClaimedAt       time.Time
	Dependencies    []string
	Deadline        time.Time
	EstimatedEffort time.Duration
	Tags            []string
	Parent          string
	RequiredCaps    []string
	RetryCount      int
	Version         int
}

// ExecutionPlan is the output of decomposition: a DAG of PlanSteps.
// Owned by the orchestrator that produced it.
type ExecutionPlan struct {
	ID                string
	TaskID            string
	Steps             []PlanStep
	EstimatedDuration time.Duration
	EstimatedResources map[string]float64
	Confidence        float64
	ComplexityClass   string
	CriticalPath      []string
	CreatedAt         time.Time
	Strategy          Strategy
	Reasoning         string
}

// PlanStep is a node of the plan DAG.
type PlanStep struct {
	ID                 string
	Description        string
	EstimatedDuration  time.Duration
	EstimatedResources map[string]float64 // cpu, memory, io, network, disk
	Dependencies       []string
	Salience           float64
	Risk               RiskLevel
	SuccessCriteria    []string
	Preconditions      []string
}

// Goal is a durable objective tracked by the Executive Function.
// Invariant: hierarchy depth <= 5; a completed goal is terminal and its
// subgoals either complete or abandon (enforced by internal/executive).
type Goal struct {
	ID             string
	Project        string
	Text           string
	Type           GoalType
	Priority       int // 1..10
	Status         GoalStatus
	Progress       float64 // 0..1
	EstimatedHours float64
	ActualHours    float64
	Deadline       time.Time
	Parent         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskSwitch records a change of the "current" goal. Cost is bounded:
// 5ms floor, 50ms ceiling, quadratic in priority delta (see executive.SwitchCost).
type TaskSwitch struct {
	ID              string
	Project         string
	FromGoal        string
	ToGoal          string
	CostMS          float64
	Reason          string
	ContextSnapshot map[string]any
	Timestamp       time.Time
}

// EpisodicEvent is an observed fact. Monotonic timeline; never mutated
// after creation except to flip ConsolidationStatus. Owned by the episodic
// store and outlives the workers that produced it.
type EpisodicEvent struct {
	ID                  string
	Session             string
	Timestamp           time.Time
	Type                EventType
	Content             string
	Outcome             EventOutcome
	Surprise            *float64
	CWD                 string
	Files               []string
	Task                string
	Phase               string
	ConsolidationStatus ConsolidationStatus
}

// SemanticPattern is the output of consolidation. Created only by the
// consolidation pipeline; owned by the semantic store.
type SemanticPattern struct {
	ID               string
	Description      string
	Type             PatternType
	Confidence       float64
	Tags             []string
	Evidence         string
	SourceEventIDs   []string
	GroundingScore   float64
	HallucinationRisk RiskLevel
}

// ConfidenceInterval is a (lower, point, upper) triple with a nominal level.
// Invariant: lower <= point <= upper, non-negative for durations/resources.
type ConfidenceInterval struct {
	Lower float64
	Point float64
	Upper float64
	Level float64 // default 0.9
}

// RelativeUncertainty returns (upper-lower)/2/|point|, or 0 when point is 0.
func (c ConfidenceInterval) RelativeUncertainty() float64 {
	if c.Point == 0 {
		return 0
	}
	abs := c.Point
	if abs < 0 {
		abs = -abs
	}
	return (c.Upper - c.Lower) / 2 / abs
}

// DurationPrediction is a forecast of task duration with a confidence
// interval, expressed in the same units (seconds) throughout.
type DurationPrediction struct {
	Interval ConfidenceInterval
}

// ResourceForecast is a per-resource-type utilization forecast.
type ResourceForecast struct {
	Resource string
	Interval ConfidenceInterval
}

// BottleneckAlert flags a resource trending towards saturation.
type BottleneckAlert struct {
	Resource            string
	Severity             RiskLevel
	CurrentUtilization   float64
	PredictedSaturationIn time.Duration
	Mitigations          []string
}

// PredictionResult is the output of the predictor for a single task.
type PredictionResult struct {
	ID                  string
	TaskID              string
	Duration            DurationPrediction
	ResourceForecasts   []ResourceForecast
	BottleneckAlerts    []BottleneckAlert
	TemporalPatterns    []string
	OverallRisk         RiskLevel
	SuccessProbability  float64
	OverallConfidence   float64
	Recommendations     []string
	CriticalConstraints []string
}
