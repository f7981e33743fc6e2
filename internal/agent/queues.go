package agent

import (
	"context"
	"errors"
	"sync"
	"time"
)

// QueueLane names one of the fixed input sub-queues an agent's worker
// drains. Every Event belongs to exactly one lane via eventQueueLane().
type QueueLane string

const (
	LaneUserMessage          QueueLane = "user_message"
	LaneInterAgentMessage    QueueLane = "inter_agent_message"
	LaneToolResult           QueueLane = "tool_result"
	LaneToolInvocationRequest QueueLane = "tool_invocation_request"
	LaneApproval             QueueLane = "approval"
	LaneInternalSystem       QueueLane = "internal_system"
)

// orderedLanes is the round-robin dequeue order once internal_system has
// been drained. internal_system is deliberately absent here; dequeueLocked
// always checks it first regardless of round-robin position.
var orderedLanes = []QueueLane{
	LaneUserMessage,
	LaneInterAgentMessage,
	LaneToolResult,
	LaneToolInvocationRequest,
	LaneApproval,
}

// DefaultLaneCapacity bounds each lane; Enqueue blocks (subject to ctx)
// once a lane is at capacity, providing backpressure to producers.
const DefaultLaneCapacity = 256

// idempotencyKeyer is implemented by events that carry a natural dedup key
// for idempotent enqueue of duplicate control events (e.g. a second
// AgentReady for an already-bootstrapped agent, or a repeated
// ToolExecutionApproval for the same invocation).
type idempotencyKeyer interface {
	idempotencyKey() string
}

func (e AgentReady) idempotencyKey() string    { return "agent_ready:" + e.AgentID }
func (e AgentStopped) idempotencyKey() string  { return "agent_stopped:" + e.AgentID }
func (e BootstrapAgent) idempotencyKey() string { return "bootstrap:" + e.AgentID }

// InputEventQueues implements spec.md §4.3: six named lanes with bounded
// capacity, fair round-robin dequeue across the five work lanes, and
// strict priority for internal_system. Grounded on internal/infra's
// CommandQueue lane model (named lanes behind one mutex, a cond per
// waiter), adapted here to carry typed Events with priority ordering
// instead of generic task execution.
type InputEventQueues struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool
	capacity int

	lanes map[QueueLane][]Event
	seen  map[string]time.Time // idempotency keys observed recently
	rrPos int
}

// NewInputEventQueues creates an empty set of lanes with the default
// per-lane capacity.
func NewInputEventQueues() *InputEventQueues {
	return NewInputEventQueuesWithCapacity(DefaultLaneCapacity)
}

// NewInputEventQueuesWithCapacity creates an empty set of lanes bounded at
// the given per-lane capacity.
func NewInputEventQueuesWithCapacity(capacity int) *InputEventQueues {
	if capacity <= 0 {
		capacity = DefaultLaneCapacity
	}
	q := &InputEventQueues{
		capacity: capacity,
		lanes:    make(map[QueueLane][]Event, 6),
		seen:     make(map[string]time.Time),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	for _, l := range append(append([]QueueLane{}, orderedLanes...), LaneInternalSystem) {
		q.lanes[l] = nil
	}
	return q
}

// Enqueue appends ev to its lane. If the lane is at capacity, Enqueue
// blocks until space frees up or ctx is done. If ev implements
// idempotencyKeyer and an event with the same key was enqueued within the
// last minute, the duplicate is silently dropped (idempotent enqueue for
// duplicate control events).
func (q *InputEventQueues) Enqueue(ctx context.Context, ev Event) error {
	lane := ev.eventQueueLane()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueuesClosed
	}

	if keyer, ok := ev.(idempotencyKeyer); ok {
		key := keyer.idempotencyKey()
		if last, dup := q.seen[key]; dup && time.Since(last) < time.Minute {
			q.mu.Unlock()
			return nil
		}
		q.seen[key] = time.Now()
	}

	for len(q.lanes[lane]) >= q.capacity && !q.closed {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.notEmpty.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()
		q.notEmpty.Wait()
		close(done)
		if ctx.Err() != nil {
			q.mu.Unlock()
			return ctx.Err()
		}
	}
	if q.closed {
		q.mu.Unlock()
		return ErrQueuesClosed
	}

	q.lanes[lane] = append(q.lanes[lane], ev)
	q.notEmpty.Broadcast()
	q.mu.Unlock()
	return nil
}

// Dequeue blocks until an event is available (or ctx is done / the queues
// are closed and drained) and returns the next event per the priority
// rule: internal_system is always checked first; otherwise lanes are
// drained fairly in round-robin order.
func (q *InputEventQueues) Dequeue(ctx context.Context) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if ev, ok := q.dequeueLocked(); ok {
			q.notEmpty.Broadcast()
			return ev, nil
		}
		if q.closed {
			return nil, ErrQueuesClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		waitCh := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.notEmpty.Broadcast()
				q.mu.Unlock()
			case <-waitCh:
			}
		}()
		q.notEmpty.Wait()
		close(waitCh)
	}
}

// TryDequeue returns the next event without blocking, reporting false if
// every lane is currently empty. Used by the worker's poll loop so it can
// fall through to idle-timeout handling instead of blocking indefinitely.
func (q *InputEventQueues) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev, ok := q.dequeueLocked()
	if ok {
		q.notEmpty.Broadcast()
	}
	return ev, ok
}

func (q *InputEventQueues) dequeueLocked() (Event, bool) {
	if sys := q.lanes[LaneInternalSystem]; len(sys) > 0 {
		ev := sys[0]
		q.lanes[LaneInternalSystem] = sys[1:]
		return ev, true
	}
	for i := 0; i < len(orderedLanes); i++ {
		lane := orderedLanes[(q.rrPos+i)%len(orderedLanes)]
		if items := q.lanes[lane]; len(items) > 0 {
			ev := items[0]
			q.lanes[lane] = items[1:]
			q.rrPos = (q.rrPos + i + 1) % len(orderedLanes)
			return ev, true
		}
	}
	return nil, false
}

// Empty reports whether every lane (including internal_system) is
// currently empty. Used by the worker's idle-timeout check.
func (q *InputEventQueues) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, items := range q.lanes {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

// Depth returns the current pending length of a single lane, used for the
// agent_queue_depth{lane} metric.
func (q *InputEventQueues) Depth(lane QueueLane) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[lane])
}

// Close marks the queues closed and wakes any blocked Enqueue/Dequeue
// callers. Events already queued remain dequeueable until drained.
func (q *InputEventQueues) Close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// ErrQueuesClosed is returned by Enqueue/Dequeue once Close has been
// called and (for Dequeue) every lane has been drained.
var ErrQueuesClosed = errors.New("input event queues closed")
