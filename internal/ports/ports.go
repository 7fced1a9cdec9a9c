// Package ports defines the interfaces that break the orchestrator /
// executive / bridge / planner cycle and describe the external
// collaborators named in spec §1 and §6: the durable store, LLM providers,
// and embedding providers. Nothing in this package has a production
// implementation beyond the in-memory store; the other ports are satisfied
// by adapters supplied at wiring time (cmd/orchestratord).
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// Store re-exports the Task Store Contract so ports consumers never import
// internal/store directly, per the Design Notes "cyclic references"
// resolution (spec §9).
type Store = store.Store

// StoreFacade is the narrow slice of Store the executive/bridge/planner
// actually need, keeping their dependency surface small and breaking the
// cycle with the orchestrator, which depends on the full Store.
type StoreFacade interface {
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error)
}

// PlanningPort is the slice of the Planner the Executive Function calls,
// so executive does not import planner directly.
type PlanningPort interface {
	DecomposeWithStrategy(task *types.Task, strategy types.Strategy, reasoning string) *types.ExecutionPlan
}

// ExecutiveQueryPort is the slice of the Executive Function the
// Orchestration Bridge calls.
type ExecutiveQueryPort interface {
	RankGoals(ctx context.Context, project string) ([]*types.Goal, error)
}

// KnowledgeGraphStore is the optional entity/relation sink for the
// consolidation pipeline's temporal-graph synthesis step (spec §4.8 step 7).
// Out of core scope per spec §1; consolidation treats a nil implementation
// as "skip this step".
type KnowledgeGraphStore interface {
	UpsertEntity(ctx context.Context, name, kind string, weight float64) error
	UpsertRelation(ctx context.Context, from, to, relation string, weight float64) error
}

// CompletionRequest is a text->text request to an LLMProvider.
type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Schema       map[string]any // optional JSON schema for structured replies
}

// CompletionResult is the reply from an LLMProvider.
type CompletionResult struct {
	Text       string
	TokensUsed int
}

// LLMProvider is a pluggable text->text service (spec §1, §6). Expected
// latency for local services: reasoning p50 < 5s.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// EmbeddingProvider is a pluggable text->vector service (spec §1, §6).
// Expected latency for local services: embedding p50 < 50ms.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// ErrPermanent marks a provider error as non-retryable.
var ErrPermanent = errors.New("ports: permanent provider error")

// RetryableError wraps a transient provider failure (spec §7 "Transient").
// Callers distinguish it from permanent failures via errors.As.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return "ports: retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError wraps err as a RetryableError, optionally suggesting a
// backoff delay before retrying.
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}
