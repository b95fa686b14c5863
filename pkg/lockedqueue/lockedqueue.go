package lockedqueue

import (
	"runtime"
	"sync"

	"github.com/sasha-s/go-deadlock"

	"github.com/i5heu/GoStrQueue/internal/queue"
	"github.com/i5heu/GoStrQueue/pkg/strqueue"
)

var _ queue.QueueValidationInterface[string] = (*LockedQueue)(nil)

// LockedQueue serializes access to a strqueue.Queue behind a single mutex
// and bounds it to a fixed capacity.
type LockedQueue struct {
	mu       deadlock.Mutex
	notFull  *sync.Cond
	q        *strqueue.Queue
	capacity uint64
	closed   bool
}

// New creates a LockedQueue holding at most capacity values.
// A capacity below 1 is raised to 1.
func New(capacity uint64, opts ...strqueue.Option) (*LockedQueue, error) {
	if capacity < 1 {
		capacity = 1
	}
	q, err := strqueue.New(opts...)
	if err != nil {
		return nil, err
	}
	lq := &LockedQueue{q: q, capacity: capacity}
	lq.notFull = sync.NewCond(&lq.mu)
	return lq, nil
}

// Enqueue appends val, blocking while the queue is full.
// A refused allocation is retried after yielding. Once the queue is closed,
// Enqueue drops val and returns, including callers blocked on a full queue.
func (lq *LockedQueue) Enqueue(val string) {
	for {
		lq.mu.Lock()
		for !lq.closed && uint64(lq.q.Size()) >= lq.capacity {
			lq.notFull.Wait()
		}
		if lq.closed {
			lq.mu.Unlock()
			return
		}
		ok := lq.q.InsertTail([]byte(val))
		lq.mu.Unlock()
		if ok {
			return
		}
		runtime.Gosched()
	}
}

// TryEnqueue appends val unless the queue is full or the allocation is refused.
func (lq *LockedQueue) TryEnqueue(val string) bool {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	if lq.closed || uint64(lq.q.Size()) >= lq.capacity {
		return false
	}
	return lq.q.InsertTail([]byte(val))
}

// Dequeue removes the head value. It never blocks.
func (lq *LockedQueue) Dequeue() (string, bool) {
	lq.mu.Lock()
	v, ok := lq.q.PopHead()
	lq.mu.Unlock()
	if !ok {
		return "", false
	}
	lq.notFull.Signal()
	return string(v), true
}

func (lq *LockedQueue) FreeSlots() uint64 {
	return lq.capacity - lq.UsedSlots()
}

func (lq *LockedQueue) UsedSlots() uint64 {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return uint64(lq.q.Size())
}

func (lq *LockedQueue) Reverse() {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	lq.q.Reverse()
}

func (lq *LockedQueue) Sort() {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	lq.q.Sort()
}

// Snapshot returns the queued values from head to tail.
func (lq *LockedQueue) Snapshot() []string {
	lq.mu.Lock()
	vals := lq.q.Values()
	lq.mu.Unlock()
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// Check validates the underlying chain under the lock.
func (lq *LockedQueue) Check() error {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return lq.q.Check()
}

// Close releases every queued value and wakes blocked producers. Afterwards
// Enqueue is a no-op, TryEnqueue and Dequeue report false, and a second
// Close does nothing.
func (lq *LockedQueue) Close() {
	lq.mu.Lock()
	if lq.closed {
		lq.mu.Unlock()
		return
	}
	lq.closed = true
	lq.q.Free()
	lq.mu.Unlock()
	lq.notFull.Broadcast()
}
