// Package bus implements the priority-ordered asynchronous message bus with
// request/response correlation described in spec §4.1. A single dispatch
// goroutine pops the highest-priority message and fans it out to every
// subscriber registered for its recipient; response-expected messages await
// the handler's result and route it back to the waiting publisher.
package bus

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// Payload is the opaque, untyped map carried at the bus transport edge (see
// SPEC_FULL §3 "dynamic typing / schemaless payloads"). Subscribers
// deserialize it into typed request/response structs of their own.
type Payload = map[string]any

var (
	// ErrQueueFull is returned by Publish when the bounded queue is at
	// capacity; the message is dropped, not retried.
	ErrQueueFull = errors.New("bus: queue full")
	// ErrTimeout is returned (wrapped) by SendRequest when a request awaits
	// a response past its deadline.
	ErrTimeout = errors.New("bus: request timed out")
	// ErrClosed is returned by Publish/SendRequest after Close.
	ErrClosed = errors.New("bus: closed")
)

// Handler processes a delivered message. When the originating message
// expects a response, the handler's return value (or error, converted to an
// error payload) is routed back to the waiting publisher via SendResponse
// semantics; otherwise the handler runs fire-and-forget and its return is
// discarded.
type Handler func(ctx context.Context, m types.Message) (Payload, error)

// Bus is the message bus contract (spec §4.1).
type Bus interface {
	// Publish enqueues m. Returns ErrQueueFull if the bounded queue is at
	// capacity; the message is dropped and the drop is logged. Never blocks
	// indefinitely.
	Publish(ctx context.Context, m types.Message) error

	// Subscribe registers handler for recipient. Multiple handlers per
	// recipient fan out; all of them receive every message addressed to
	// that recipient.
	Subscribe(recipient string, handler Handler)

	// SendRequest publishes m with ResponseExpected=true and waits up to
	// m.Timeout for a matching response, keyed by m.CorrelationID (generated
	// if empty). Always removes the pending record on exit, success or not.
	SendRequest(ctx context.Context, m types.Message) (Payload, error)

	// SendResponse completes the pending wait keyed by correlationID.
	// No-op if there is no such waiter (already timed out or never existed).
	SendResponse(correlationID string, payload Payload, err error)

	// Close stops the dispatch goroutine and fails every pending request.
	Close()
}

type pending struct {
	resultCh chan result
	once     sync.Once
}

type result struct {
	payload Payload
	err     error
}

// item is a queued message paired with its heap ordering key.
type item struct {
	msg     types.Message
	seq     uint64 // monotonic, breaks ties FIFO within equal priority
	index   int
}

// priorityQueue is a max-heap on priority, FIFO (lowest seq first) within
// ties. container/heap.Pop returns the *least* element per Less, so Less is
// defined to put the highest-priority, earliest-sequenced item first.
type priorityQueue []*item

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].msg.Priority != pq[j].msg.Priority {
		return pq[i].msg.Priority > pq[j].msg.Priority
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return it
}

// logEntry is a recently-dispatched message kept for monitoring.
type logEntry struct {
	msg    types.Message
	status string // dispatched | handled | handler-error | no-subscriber | dropped
}

// InMemoryBus is the default, single-process Bus implementation.
type InMemoryBus struct {
	logger telemetry.Logger

	mu       sync.Mutex
	queue    priorityQueue
	nextSeq  uint64
	capacity int
	notify   chan struct{}

	subMu sync.RWMutex
	subs  map[string][]Handler

	pendMu sync.Mutex
	pend   map[string]*pending

	recentMu sync.Mutex
	recent   []logEntry
	recentCap int

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// Option configures an InMemoryBus.
type Option func(*InMemoryBus)

// WithLogger sets the logger used for drop/error reporting.
func WithLogger(l telemetry.Logger) Option {
	return func(b *InMemoryBus) { b.logger = l }
}

// WithCapacity overrides the default bounded queue size (1000, spec §6
// bus_max_queue_size).
func WithCapacity(n int) Option {
	return func(b *InMemoryBus) { b.capacity = n }
}

// WithRecentLogCapacity overrides the default 10,000-entry recent message
// log used for monitoring (spec §4.1).
func WithRecentLogCapacity(n int) Option {
	return func(b *InMemoryBus) { b.recentCap = n }
}

// New constructs an InMemoryBus and starts its dispatch goroutine.
func New(opts ...Option) *InMemoryBus {
	b := &InMemoryBus{
		logger:    telemetry.NewNoopLogger(),
		capacity:  1000,
		recentCap: 10_000,
		notify:    make(chan struct{}, 1),
		subs:      make(map[string][]Handler),
		pend:      make(map[string]*pending),
		closeCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

var _ Bus = (*InMemoryBus)(nil)

// Publish enqueues m, generating an ID/timestamp if unset. Drops and logs
// when the queue is at capacity.
func (b *InMemoryBus) Publish(ctx context.Context, m types.Message) error {
	select {
	case <-b.closeCh:
		return ErrClosed
	default:
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	if len(b.queue) >= b.capacity {
		b.mu.Unlock()
		b.logger.Warn(ctx, "bus queue full, dropping message", "message_id", m.ID, "recipient", m.Recipient, "priority", m.Priority)
		b.appendRecent(m, "dropped")
		return ErrQueueFull
	}
	b.nextSeq++
	heap.Push(&b.queue, &item{msg: m, seq: b.nextSeq})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe registers handler for recipient.
func (b *InMemoryBus) Subscribe(recipient string, handler Handler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subs[recipient] = append(b.subs[recipient], handler)
}

// SendRequest publishes m as a request and blocks until a response arrives
// or m.Timeout elapses (default 30s if unset).
func (b *InMemoryBus) SendRequest(ctx context.Context, m types.Message) (Payload, error) {
	m.Kind = types.MessageKindRequest
	m.ResponseExpected = true
	if m.CorrelationID == "" {
		m.CorrelationID = uuid.NewString()
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &pending{resultCh: make(chan result, 1)}
	b.pendMu.Lock()
	b.pend[m.CorrelationID] = p
	b.pendMu.Unlock()
	defer func() {
		b.pendMu.Lock()
		delete(b.pend, m.CorrelationID)
		b.pendMu.Unlock()
	}()

	if err := b.Publish(ctx, m); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-p.resultCh:
		return r.payload, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s (correlation_id=%s)", ErrTimeout, timeout, m.CorrelationID)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.closeCh:
		return nil, ErrClosed
	}
}

// SendResponse completes the pending wait for correlationID, if any.
func (b *InMemoryBus) SendResponse(correlationID string, payload Payload, err error) {
	b.pendMu.Lock()
	p, ok := b.pend[correlationID]
	b.pendMu.Unlock()
	if !ok {
		return
	}
	p.once.Do(func() {
		select {
		case p.resultCh <- result{payload: payload, err: err}:
		default:
		}
	})
}

// Close stops the dispatch goroutine and drains pending requests with
// ErrClosed.
func (b *InMemoryBus) Close() {
	b.closeOnce.Do(func() {
		close(b.closeCh)
		b.wg.Wait()

		b.pendMu.Lock()
		for id, p := range b.pend {
			p.once.Do(func() {
				select {
				case p.resultCh <- result{err: ErrClosed}:
				default:
				}
			})
			delete(b.pend, id)
		}
		b.pendMu.Unlock()
	})
}

// RecentMessages returns a snapshot of the bounded monitoring log, most
// recent last.
func (b *InMemoryBus) RecentMessages() []types.Message {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	out := make([]types.Message, len(b.recent))
	for i, e := range b.recent {
		out[i] = e.msg
	}
	return out
}

func (b *InMemoryBus) appendRecent(m types.Message, status string) {
	b.recentMu.Lock()
	defer b.recentMu.Unlock()
	b.recent = append(b.recent, logEntry{msg: m, status: status})
	if len(b.recent) > b.recentCap {
		b.recent = b.recent[len(b.recent)-b.recentCap:]
	}
}

func (b *InMemoryBus) dispatchLoop() {
	defer b.wg.Done()
	for {
		m, ok := b.popHighestPriority()
		if !ok {
			select {
			case <-b.closeCh:
				return
			case <-b.notify:
				continue
			}
		}
		b.dispatch(m)
	}
}

func (b *InMemoryBus) popHighestPriority() (types.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return types.Message{}, false
	}
	it := heap.Pop(&b.queue).(*item)
	return it.msg, true
}

func (b *InMemoryBus) dispatch(m types.Message) {
	b.subMu.RLock()
	handlers := append([]Handler(nil), b.subs[m.Recipient]...)
	b.subMu.RUnlock()

	if len(handlers) == 0 {
		b.appendRecent(m, "no-subscriber")
		if m.ResponseExpected {
			b.SendResponse(m.CorrelationID, nil, fmt.Errorf("bus: no subscriber for recipient %q", m.Recipient))
		}
		return
	}

	if m.ResponseExpected {
		// Only the first handler's result is routed back; additional
		// handlers (if any) still run fire-and-forget for side effects.
		first := handlers[0]
		go b.runResponding(m, first)
		for _, h := range handlers[1:] {
			go b.runFireAndForget(m, h)
		}
		return
	}

	for _, h := range handlers {
		go b.runFireAndForget(m, h)
	}
	b.appendRecent(m, "dispatched")
}

func (b *InMemoryBus) runResponding(m types.Message, h Handler) {
	payload, err := b.safeCall(m, h)
	b.SendResponse(m.CorrelationID, payload, err)
	status := "handled"
	if err != nil {
		status = "handler-error"
	}
	b.appendRecent(m, status)
}

func (b *InMemoryBus) runFireAndForget(m types.Message, h Handler) {
	_, err := b.safeCall(m, h)
	if err != nil {
		b.logger.Error(context.Background(), "bus handler error", "message_id", m.ID, "recipient", m.Recipient, "err", err)
	}
}

// safeCall converts a handler panic into an error payload, matching the
// "handler exceptions become failure payloads" propagation rule (spec §7).
func (b *InMemoryBus) safeCall(m types.Message, h Handler) (payload Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bus: handler panic: %v", r)
		}
	}()
	return h(context.Background(), m)
}
