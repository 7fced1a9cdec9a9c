// Package worker implements the abstract specialist work loop (spec §4.4):
// poll for available work, attempt an atomic claim, execute the
// type-specific hook, report the outcome, and repeat. Every concrete
// specialist (research, analysis, debugging, ...) is the same loop plus a
// different ExecuteFunc; the loop itself never varies.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/shawkridge/athena-sub007/internal/registry"
	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// Result is what ExecuteFunc returns on success: a findings payload and an
// optional set of progress updates already emitted via Progress.
type Result struct {
	Findings map[string]any
}

// Progress lets ExecuteFunc report 0..100 progress at its own discretion
// while a task is running.
type Progress func(percent int)

// ExecuteFunc is the single abstract method every specialist implements.
// It is the only place domain-specific behavior lives; the worker loop
// around it is identical for every agent type (spec §4.4, §1 "per-specialist
// domain logic ... plug-ins").
type ExecuteFunc func(ctx context.Context, task *types.Task, progress Progress) (Result, error)

// Worker drives one agent through the poll -> claim -> execute -> report
// loop until its context is cancelled.
type Worker struct {
	AgentID      string
	AgentType    types.AgentType
	Capabilities []string

	store    store.Store
	reg      registry.Registry
	execute  ExecuteFunc
	logger   telemetry.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	pollLimiter       *rate.Limiter

	agent *types.Agent
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(l telemetry.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(w *Worker) { w.heartbeatInterval = d }
}

// WithPollRateLimit caps claim-attempt throughput, e.g. when many workers
// share a store and an unbounded poll loop would thrash it.
func WithPollRateLimit(r rate.Limit, burst int) Option {
	return func(w *Worker) { w.pollLimiter = rate.NewLimiter(r, burst) }
}

// New constructs a Worker. execute is the type-specific hook invoked after a
// successful claim.
func New(agentID string, agentType types.AgentType, capabilities []string, st store.Store, reg registry.Registry, execute ExecuteFunc, opts ...Option) *Worker {
	w := &Worker{
		AgentID:           agentID,
		AgentType:         agentType,
		Capabilities:      capabilities,
		store:             st,
		reg:               reg,
		execute:           execute,
		logger:            telemetry.NewNoopLogger(),
		pollInterval:      5 * time.Second,
		heartbeatInterval: 30 * time.Second,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run drives the worker loop until ctx is cancelled. It also starts the
// separate periodic heartbeat task named in spec §4.4 step 7.
func (w *Worker) Run(ctx context.Context) {
	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go w.heartbeatLoop(hbCtx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok := w.claimNext(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
				continue
			}
		}
		w.runTask(ctx, task)
	}
}

// claimNext asks the store for available work matching this worker's type
// and capabilities, then attempts an atomic claim on each candidate in turn
// until one succeeds (spec §4.4 steps 1-3).
func (w *Worker) claimNext(ctx context.Context) (*types.Task, bool) {
	if w.pollLimiter != nil {
		if err := w.pollLimiter.Wait(ctx); err != nil {
			return nil, false
		}
	}

	candidates, err := w.store.FindAvailable(ctx, string(w.AgentType), w.Capabilities, 10)
	if err != nil {
		w.logger.Error(ctx, "find available tasks failed", "agent_id", w.AgentID, "err", err)
		return nil, false
	}

	for _, c := range candidates {
		claimed, err := w.store.Claim(ctx, w.AgentID, c.ID)
		if err == nil {
			return claimed, true
		}
		if errors.Is(err, store.ErrClaimLost) {
			// Someone else won the race; silently move to the next
			// candidate (spec §7 "Claim-lost").
			continue
		}
		w.logger.Error(ctx, "claim failed", "agent_id", w.AgentID, "task_id", c.ID, "err", err)
	}
	return nil, false
}

func (w *Worker) runTask(ctx context.Context, task *types.Task) {
	_ = w.reg.UpdateStatus(ctx, w.AgentID, types.AgentStatusBusy)
	defer func() { _ = w.reg.UpdateStatus(ctx, w.AgentID, types.AgentStatusIdle) }()

	start := time.Now()
	progress := func(percent int) {
		if err := w.store.UpdateProgress(ctx, w.AgentID, task.ID, percent); err != nil {
			w.logger.Error(ctx, "update progress failed", "task_id", task.ID, "err", err)
		}
	}

	result, err := w.safeExecute(ctx, task, progress)
	latency := time.Since(start)

	if err != nil {
		if failErr := w.store.Fail(ctx, w.AgentID, task.ID, err.Error()); failErr != nil {
			w.logger.Error(ctx, "mark task failed errored", "task_id", task.ID, "err", failErr)
		}
		w.recordOutcome(false, latency)
		return
	}

	if completeErr := w.store.Complete(ctx, w.AgentID, task.ID); completeErr != nil {
		w.logger.Error(ctx, "mark task complete errored", "task_id", task.ID, "err", completeErr)
		w.recordOutcome(false, latency)
		return
	}
	w.logger.Info(ctx, "task completed", "agent_id", w.AgentID, "task_id", task.ID, "findings_keys", len(result.Findings))
	w.recordOutcome(true, latency)
}

// safeExecute converts a panic in the execute hook into a failure, matching
// the "on exception, convert to failure with the error string" step of the
// worker loop (spec §4.4 step 5).
func (w *Worker) safeExecute(ctx context.Context, task *types.Task, progress Progress) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: execute panicked: %v", r)
		}
	}()
	return w.execute(ctx, task, progress)
}

// recordOutcome folds a finished execution into this worker's rolling
// metrics via the agent's RecordDecision (spec §4.4 step 6). Confidence
// defaults to 1.0 on success and 0.0 on failure when the execute hook does
// not report a finer-grained value itself; domain plug-ins that track
// confidence explicitly should fold it in before calling recordOutcome via
// their own wrapping, which this abstract loop does not prescribe.
func (w *Worker) recordOutcome(success bool, latency time.Duration) {
	confidence := 0.0
	if success {
		confidence = 1.0
	}
	if err := w.reg.RecordDecision(w.AgentID, success, confidence, latency); err != nil {
		w.logger.Error(context.Background(), "record decision failed", "agent_id", w.AgentID, "err", err)
	}
}

// Healthy reports whether this worker meets the bar from spec §4.4: running
// (the caller attests to this by virtue of calling Healthy at all) and
// error_rate <= 0.2 and average_confidence >= 0.5.
func (w *Worker) Healthy() bool {
	agent, ok := w.reg.Get(w.AgentID)
	if !ok {
		return false
	}
	return agent.Healthy()
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.reg.Heartbeat(ctx, w.AgentID); err != nil {
				w.logger.Error(ctx, "heartbeat failed", "agent_id", w.AgentID, "err", err)
			}
		}
	}
}
