// Package store defines the Task Store Contract (spec §4.3, §6): durable
// task records with an atomic compare-and-swap claim protocol. The actual
// durable backing (a relational database with vector search, per spec §1)
// is an external collaborator; this package defines the narrow interface
// the core depends on, plus an in-memory reference implementation used by
// tests and single-node deployments, mirroring the teacher's
// registry/store/memory package.
package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shawkridge/athena-sub007/internal/types"
)

var (
	// ErrNotFound is returned when a task lookup fails.
	ErrNotFound = errors.New("store: task not found")
	// ErrClaimLost is returned by Claim when the CAS did not match: some
	// other agent already claimed the task, or it is no longer pending.
	// Per spec §7 this is silent — callers move on to the next candidate,
	// they do not log it as an error.
	ErrClaimLost = errors.New("store: claim lost")
	// ErrForbidden is returned by UpdateProgress/Complete/Fail when the
	// caller is not the assigned agent (spec §4.3 "guarded by
	// assigned_agent_id = caller").
	ErrForbidden = errors.New("store: caller is not the assigned agent")
)

// Store is the Task Store Contract.
type Store interface {
	// CreateTask persists a new task, assigning an ID if unset and
	// defaulting Status to pending and Version to 0.
	CreateTask(ctx context.Context, t *types.Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, id string) (*types.Task, error)

	// FindAvailable returns up to limit pending tasks whose dependencies are
	// all completed and whose RequiredCaps are a subset of capabilities,
	// ordered by priority descending, then deadline ascending, then
	// creation order ascending (spec §4.3).
	FindAvailable(ctx context.Context, agentType string, capabilities []string, limit int) ([]*types.Task, error)

	// Claim atomically transitions a task from pending/unassigned to
	// in-progress/assigned to agentID at version+1.
	// Returns ErrClaimLost if the task is not in that exact state.
	Claim(ctx context.Context, agentID, taskID string) (*types.Task, error)

	// UpdateProgress sets progress (0..100) for a task the caller owns.
	UpdateProgress(ctx context.Context, agentID, taskID string, progress int) error

	// Complete marks a task completed; caller must be the assigned agent.
	Complete(ctx context.Context, agentID, taskID string) error

	// Fail marks a task failed with reason; caller must be the assigned
	// agent, or the empty string to allow the health monitor (the only
	// other component permitted to unclaim/fail another agent's task,
	// spec §4.2) to force-fail it.
	Fail(ctx context.Context, agentID, taskID, reason string) error

	// ResetToPending reverts a failed task to pending with a version bump
	// and an incremented retry counter, per the recovery policy (spec
	// §4.2). Used by the health monitor only.
	ResetToPending(ctx context.Context, taskID string) error

	// ListByStatus returns all tasks with the given status, in creation
	// order. Used by the health monitor to scan for stuck/retryable work.
	ListByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error)
}

// MemoryStore is an in-memory Store implementation, safe for concurrent
// use. Suitable for development, testing, and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	tasks   map[string]*types.Task
	order   []string // insertion order, for creation-time tie-breaking
	seq     int
	nextID  func() string
}

// New constructs an empty MemoryStore. idFn generates task IDs when unset
// on CreateTask; pass nil to use a simple counter-based generator.
func New(idFn func() string) *MemoryStore {
	if idFn == nil {
		counter := 0
		idFn = func() string {
			counter++
			return "task-" + strconv.Itoa(counter)
		}
	}
	return &MemoryStore{
		tasks:  make(map[string]*types.Task),
		nextID: idFn,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateTask(ctx context.Context, t *types.Task) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.nextID()
	}
	if t.Status == "" {
		t.Status = types.TaskStatusPending
	}
	cp := *t
	s.tasks[t.ID] = &cp
	s.order = append(s.order, t.ID)
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) FindAvailable(ctx context.Context, agentType string, capabilities []string, limit int) ([]*types.Task, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	capSet := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		capSet[c] = true
	}

	var candidates []*types.Task
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status != types.TaskStatusPending {
			continue
		}
		if !s.dependenciesCompleteLocked(t) {
			continue
		}
		if !subsetOf(t.RequiredCaps, capSet) {
			continue
		}
		cp := *t
		candidates = append(candidates, &cp)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		ad, bd := a.Deadline, b.Deadline
		if !ad.Equal(bd) {
			if ad.IsZero() {
				return false
			}
			if bd.IsZero() {
				return true
			}
			return ad.Before(bd)
		}
		return s.indexOf(a.ID) < s.indexOf(b.ID)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i, o := range s.order {
		if o == id {
			return i
		}
	}
	return len(s.order)
}

func (s *MemoryStore) dependenciesCompleteLocked(t *types.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := s.tasks[dep]
		if !ok || d.Status != types.TaskStatusCompleted {
			return false
		}
	}
	return true
}

func subsetOf(required []string, have map[string]bool) bool {
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// Claim is the atomic compare-and-swap at the heart of the store: pending +
// unassigned -> in-progress + assigned, version bumped. Proven exclusive by
// holding the single store mutex for the whole check-and-set.
func (s *MemoryStore) Claim(ctx context.Context, agentID, taskID string) (*types.Task, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != types.TaskStatusPending || t.AssignedAgent != "" {
		return nil, ErrClaimLost
	}
	t.Status = types.TaskStatusInProgress
	t.AssignedAgent = agentID
	t.ClaimedAt = time.Now().UTC()
	t.Version++

	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, agentID, taskID string, progress int) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if t.AssignedAgent != agentID {
		return ErrForbidden
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.Progress = progress
	t.Version++
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, agentID, taskID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if t.AssignedAgent != agentID {
		return ErrForbidden
	}
	t.Status = types.TaskStatusCompleted
	t.Progress = 100
	t.Version++
	return nil
}

// Fail marks a task failed. An empty agentID bypasses the ownership check,
// reflecting the health monitor's exclusive right to fail another agent's
// task (spec §4.2).
func (s *MemoryStore) Fail(ctx context.Context, agentID, taskID, reason string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if agentID != "" && t.AssignedAgent != agentID {
		return ErrForbidden
	}
	t.Status = types.TaskStatusFailed
	t.BlockedBy = reason
	t.Version++
	return nil
}

func (s *MemoryStore) ResetToPending(ctx context.Context, taskID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = types.TaskStatusPending
	t.AssignedAgent = ""
	t.ClaimedAt = time.Time{}
	t.Progress = 0
	t.RetryCount++
	t.Version++
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Task
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

