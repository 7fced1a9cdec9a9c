// Package types defines the shared data model for the orchestration kernel:
// agents, messages, tasks, plans, goals, episodic events, semantic patterns,
// and predictions. Types in this package are owned by the component named in
// their doc comment (see spec §3 "Ownership"); other components hold only
// references.
package types

// AgentType is the closed set of specialist roles a worker can register as.
type AgentType string

const (
	AgentTypePlanner       AgentType = "planner"
	AgentTypeExecutor      AgentType = "executor"
	AgentTypeMonitor       AgentType = "monitor"
	AgentTypePredictor     AgentType = "predictor"
	AgentTypeLearner       AgentType = "learner"
	AgentTypeResearch      AgentType = "research"
	AgentTypeAnalysis      AgentType = "analysis"
	AgentTypeSynthesis     AgentType = "synthesis"
	AgentTypeValidation    AgentType = "validation"
	AgentTypeOptimization  AgentType = "optimization"
	AgentTypeDocumentation AgentType = "documentation"
	AgentTypeReview        AgentType = "review"
	AgentTypeDebugging     AgentType = "debugging"
)

// IsValid reports whether t is one of the closed set of agent types.
func (t AgentType) IsValid() bool {
	switch t {
	case AgentTypePlanner, AgentTypeExecutor, AgentTypeMonitor, AgentTypePredictor,
		AgentTypeLearner, AgentTypeResearch, AgentTypeAnalysis, AgentTypeSynthesis,
		AgentTypeValidation, AgentTypeOptimization, AgentTypeDocumentation,
		AgentTypeReview, AgentTypeDebugging:
		return true
	}
	return false
}

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentStatusIdle     AgentStatus = "idle"
	AgentStatusBusy     AgentStatus = "busy"
	AgentStatusFailed   AgentStatus = "failed"
	AgentStatusOffline  AgentStatus = "offline"
	AgentStatusShutdown AgentStatus = "shutdown"
)

// MessageKind identifies the purpose of a bus envelope.
type MessageKind string

const (
	MessageKindRequest   MessageKind = "request"
	MessageKindResponse  MessageKind = "response"
	MessageKindAlert     MessageKind = "alert"
	MessageKindUpdate    MessageKind = "update"
	MessageKindHeartbeat MessageKind = "heartbeat"
)

// TaskStatus is the lifecycle state of a task record.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether s is a terminal task state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskPriority is the closed set of task priority levels.
type TaskPriority string

const (
	TaskPriorityCritical TaskPriority = "critical"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityLow      TaskPriority = "low"
)

// Rank returns a numeric rank for priority comparisons, higher is more urgent.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityCritical:
		return 3
	case TaskPriorityHigh:
		return 2
	case TaskPriorityMedium:
		return 1
	default:
		return 0
	}
}

// GoalType distinguishes primary objectives from derived subgoals.
type GoalType string

const (
	GoalTypePrimary     GoalType = "primary"
	GoalTypeSubgoal     GoalType = "subgoal"
	GoalTypeMaintenance GoalType = "maintenance"
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusSuspended GoalStatus = "suspended"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusFailed    GoalStatus = "failed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// IsTerminal reports whether s is a terminal goal state.
func (s GoalStatus) IsTerminal() bool {
	return s == GoalStatusCompleted || s == GoalStatusFailed || s == GoalStatusAbandoned
}

// EventType classifies an episodic event.
type EventType string

const (
	EventTypeAction     EventType = "action"
	EventTypeDecision   EventType = "decision"
	EventTypeError      EventType = "error"
	EventTypeFileChange EventType = "file_change"
	EventTypeTestRun    EventType = "test_run"
	// EventTypeCheckpoint marks an orchestration-state checkpoint written
	// by the Memory Offload subsystem (spec §4.10). Event types are an
	// open set ("action | decision | error | ... | …", spec §3); this is
	// the core's one addition.
	EventTypeCheckpoint EventType = "checkpoint"
)

// EventOutcome is the observed result of an episodic event.
type EventOutcome string

const (
	EventOutcomeSuccess EventOutcome = "success"
	EventOutcomeFailure EventOutcome = "failure"
	EventOutcomePartial EventOutcome = "partial"
	EventOutcomeOngoing EventOutcome = "ongoing"
)

// ConsolidationStatus tracks whether an episodic event has been folded into
// a semantic pattern yet.
type ConsolidationStatus string

const (
	ConsolidationStatusUnconsolidated ConsolidationStatus = "unconsolidated"
	ConsolidationStatusConsolidated   ConsolidationStatus = "consolidated"
)

// PatternType is the closed set of semantic pattern shapes.
type PatternType string

const (
	PatternTypePattern  PatternType = "pattern"
	PatternTypeDecision PatternType = "decision"
	PatternTypeFact     PatternType = "fact"
	PatternTypeWorkflow PatternType = "workflow"
)

// RiskLevel is a coarse risk classification used by plan steps and the
// predictor's bottleneck alerts.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// Strategy is the closed set of decomposition shapes the planner can be
// biased towards.
type Strategy string

const (
	StrategyTopDown        Strategy = "top_down"
	StrategyBottomUp       Strategy = "bottom_up"
	StrategySpike          Strategy = "spike"
	StrategyIncremental    Strategy = "incremental"
	StrategyParallel       Strategy = "parallel"
	StrategySequential     Strategy = "sequential"
	StrategyDeadlineDriven Strategy = "deadline_driven"
	StrategyQualityFirst   Strategy = "quality_first"
	StrategyCollaboration  Strategy = "collaboration"
	StrategyExperimental   Strategy = "experimental"
)

// AllStrategies enumerates the closed set of strategies, in a stable order,
// for scoring and iteration.
func AllStrategies() []Strategy {
	return []Strategy{
		StrategyTopDown, StrategyBottomUp, StrategySpike, StrategyIncremental,
		StrategyParallel, StrategySequential, StrategyDeadlineDriven,
		StrategyQualityFirst, StrategyCollaboration, StrategyExperimental,
	}
}
