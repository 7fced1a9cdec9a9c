// Package redisstore is an optional Redis-backed Store implementation,
// demonstrating the same atomic claim CAS as store.MemoryStore but behind a
// Lua script so the compare-and-swap is a single round trip against a
// shared backend. Use this when the core is scaled across more than one
// orchestrator process; the in-memory store (internal/store) remains the
// default for single-node deployments and tests.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shawkridge/athena-sub007/internal/store"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// claimScript performs the pending/unassigned -> in-progress/assigned CAS
// atomically on the Redis side: it reads the task, checks status and
// assignment, and writes back the new state in one EVAL, closing the race
// window a GET-then-SET from the client would leave open.
const claimScript = `
local key = KEYS[1]
local agent_id = ARGV[1]
local now = ARGV[2]

local raw = redis.call("GET", key)
if not raw then
  return {err = "not_found"}
end
local task = cjson.decode(raw)
if task.status ~= "pending" or (task.assigned_agent ~= nil and task.assigned_agent ~= "") then
  return {err = "claim_lost"}
end
task.status = "in_progress"
task.assigned_agent = agent_id
task.claimed_at = now
task.version = task.version + 1
redis.call("SET", key, cjson.encode(task))
return cjson.encode(task)
`

// Store is a Redis-backed implementation of store.Store.
type Store struct {
	client *redis.Client
	prefix string
	retry  backoff.BackOff
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the default "orch:task:" key prefix.
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// New constructs a Store backed by the given Redis client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "orch:task:",
		retry:  backoff.NewExponentialBackOff(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

type record struct {
	types.Task
}

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) CreateTask(ctx context.Context, t *types.Task) error {
	if t.ID == "" {
		t.ID = generateID()
	}
	if t.Status == "" {
		t.Status = types.TaskStatusPending
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redisstore: marshal task: %w", err)
	}
	return s.withRetry(ctx, func() error {
		return s.client.Set(ctx, s.key(t.ID), data, 0).Err()
	})
}

func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	var out *types.Task
	err := s.withRetry(ctx, func() error {
		raw, err := s.client.Get(ctx, s.key(id)).Bytes()
		if err == redis.Nil {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var t types.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("redisstore: unmarshal task: %w", err)
		}
		out = &t
		return nil
	})
	return out, err
}

// FindAvailable scans the keyspace under prefix. Acceptable for the scale a
// single orchestrator shard handles; a production deployment would back
// this with a secondary index instead of SCAN.
func (s *Store) FindAvailable(ctx context.Context, agentType string, capabilities []string, limit int) ([]*types.Task, error) {
	capSet := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		capSet[c] = true
	}

	var out []*types.Task
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var t types.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		if t.Status != types.TaskStatusPending {
			continue
		}
		if !subsetOf(t.RequiredCaps, capSet) {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: scan: %w", err)
	}
	sortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Claim(ctx context.Context, agentID, taskID string) (*types.Task, error) {
	var out *types.Task
	err := s.withRetry(ctx, func() error {
		res, err := s.client.Eval(ctx, claimScript, []string{s.key(taskID)}, agentID, time.Now().UTC().Format(time.RFC3339Nano)).Result()
		if err != nil {
			if msg, ok := redisErrMessage(err); ok {
				switch msg {
				case "not_found":
					return store.ErrNotFound
				case "claim_lost":
					return store.ErrClaimLost
				}
			}
			return err
		}
		str, ok := res.(string)
		if !ok {
			return fmt.Errorf("redisstore: unexpected claim result type %T", res)
		}
		var t types.Task
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return fmt.Errorf("redisstore: unmarshal claimed task: %w", err)
		}
		out = &t
		return nil
	})
	return out, err
}

func (s *Store) UpdateProgress(ctx context.Context, agentID, taskID string, progress int) error {
	return s.mutate(ctx, taskID, func(t *types.Task) error {
		if t.AssignedAgent != agentID {
			return store.ErrForbidden
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
	})
}

func (s *Store) Complete(ctx context.Context, agentID, taskID string) error {
	return s.mutate(ctx, taskID, func(t *types.Task) error {
		if t.AssignedAgent != agentID {
			return store.ErrForbidden
		}
		t.Status = types.TaskStatusCompleted
		t.Progress = 100
		t.Version++
		return nil
	})
}

func (s *Store) Fail(ctx context.Context, agentID, taskID, reason string) error {
	return s.mutate(ctx, taskID, func(t *types.Task) error {
		if agentID != "" && t.AssignedAgent != agentID {
			return store.ErrForbidden
		}
		t.Status = types.TaskStatusFailed
		t.BlockedBy = reason
		t.Version++
		return nil
	})
}

func (s *Store) ResetToPending(ctx context.Context, taskID string) error {
	return s.mutate(ctx, taskID, func(t *types.Task) error {
		t.Status = types.TaskStatusPending
		t.AssignedAgent = ""
		t.ClaimedAt = time.Time{}
		t.Progress = 0
		t.RetryCount++
		t.Version++
		return nil
	})
}

func (s *Store) ListByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error) {
	var out []*types.Task
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var t types.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		if t.Status == status {
			cp := t
			out = append(out, &cp)
		}
	}
	return out, iter.Err()
}

// mutate is a read-modify-write helper for non-claim transitions, which are
// guarded by assigned_agent_id rather than a version CAS (spec §4.3). A
// single caller-owned task is extremely unlikely to race with itself, so a
// plain GET/SET is sufficient here; Claim is the only operation that needs
// the Lua-scripted CAS.
func (s *Store) mutate(ctx context.Context, taskID string, fn func(*types.Task) error) error {
	return s.withRetry(ctx, func() error {
		raw, err := s.client.Get(ctx, s.key(taskID)).Bytes()
		if err == redis.Nil {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var t types.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("redisstore: unmarshal task: %w", err)
		}
		if err := fn(&t); err != nil {
			return err
		}
		data, err := json.Marshal(&t)
		if err != nil {
			return fmt.Errorf("redisstore: marshal task: %w", err)
		}
		return s.client.Set(ctx, s.key(taskID), data, 0).Err()
	})
}

// withRetry retries transient Redis errors with exponential backoff,
// per spec §7 ("transient ... retried locally with bounded backoff").
// store sentinel errors (not found, claim lost, forbidden) are never
// retried — they are permanent for the current attempt.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	op := func() (struct{}, error) {
		err := fn()
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(s.retry), backoff.WithMaxTries(5))
	return err
}

func isPermanent(err error) bool {
	switch err {
	case nil, store.ErrNotFound, store.ErrClaimLost, store.ErrForbidden:
		return true
	}
	return false
}

func redisErrMessage(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	s := err.Error()
	switch {
	case strings.Contains(s, "not_found"):
		return "not_found", true
	case strings.Contains(s, "claim_lost"):
		return "claim_lost", true
	}
	return "", false
}

func subsetOf(required []string, have map[string]bool) bool {
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

func sortCandidates(tasks []*types.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
}

func less(a, b *types.Task) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.Deadline.Equal(b.Deadline) {
		if a.Deadline.IsZero() {
			return false
		}
		if b.Deadline.IsZero() {
			return true
		}
		return a.Deadline.Before(b.Deadline)
	}
	return false
}

func generateID() string {
	return "task-" + uuid.NewString()
}
