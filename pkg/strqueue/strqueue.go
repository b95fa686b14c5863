package strqueue

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrAllocation is returned when the allocator refuses a request.
	ErrAllocation = errors.New("strqueue: allocation failed")
	// ErrCorrupt is wrapped by Check when the chain disagrees with the cached head, tail or size.
	ErrCorrupt = errors.New("strqueue: corrupt queue")
)

var (
	queueSize = int(unsafe.Sizeof(Queue{}))
	nodeSize  = int(unsafe.Sizeof(node{}))
)

// node owns one value and the link to its successor.
type node struct {
	value []byte
	next  *node

	block      uint64 // allocator handle of the node itself
	valueBlock uint64 // allocator handle of value
}

// Queue is a singly linked list of byte-string values with cached head, tail and size.
// It is single-owner: callers sharing a Queue between goroutines must serialize access.
type Queue struct {
	head  *node
	tail  *node // non-owning
	size  int
	alloc Allocator
	block uint64
	freed bool
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithAllocator routes every header, node and value allocation through a.
func WithAllocator(a Allocator) Option {
	return func(q *Queue) {
		if a != nil {
			q.alloc = a
		}
	}
}

// New creates an empty queue.
// It returns ErrAllocation if the allocator cannot provide the queue header.
func New(opts ...Option) (*Queue, error) {
	q := &Queue{alloc: heapAllocator{}}
	for _, opt := range opts {
		opt(q)
	}
	block, ok := q.alloc.Alloc(queueSize)
	if !ok {
		return nil, fmt.Errorf("new queue: %w", ErrAllocation)
	}
	q.block = block
	return q, nil
}

// Destroy releases every node and value owned by q, then q itself.
// A nil q is a no-op.
func Destroy(q *Queue) {
	q.Free()
}

// Free is the method form of Destroy. The queue must not be used afterwards;
// every later call behaves as if the queue were absent.
func (q *Queue) Free() {
	if !q.usable() {
		return
	}
	cur := q.head
	for cur != nil {
		next := cur.next
		q.releaseNode(cur)
		cur = next
	}
	q.head, q.tail, q.size = nil, nil, 0
	q.freed = true
	q.alloc.Free(q.block)
}

func (q *Queue) usable() bool {
	return q != nil && !q.freed
}

// newNode allocates a node owning a copy of value.
// A node whose value buffer cannot be allocated is released before returning.
func (q *Queue) newNode(value []byte) *node {
	block, ok := q.alloc.Alloc(nodeSize)
	if !ok {
		return nil
	}
	valueBlock, ok := q.alloc.Alloc(len(value))
	if !ok {
		q.alloc.Free(block)
		return nil
	}
	n := &node{value: make([]byte, len(value)), block: block, valueBlock: valueBlock}
	copy(n.value, value)
	return n
}

func (q *Queue) releaseNode(n *node) {
	q.alloc.Free(n.valueBlock)
	q.alloc.Free(n.block)
	n.block, n.valueBlock = 0, 0
	n.value = nil
	n.next = nil
}

// InsertHead stores a copy of value in front of the current head.
// It returns false if q is absent or allocation fails; q is unchanged then.
func (q *Queue) InsertHead(value []byte) bool {
	if !q.usable() {
		return false
	}
	n := q.newNode(value)
	if n == nil {
		return false
	}
	n.next = q.head
	q.head = n
	if q.tail == nil {
		q.tail = n
	}
	q.size++
	return true
}

// InsertTail stores a copy of value after the current tail.
// It returns false if q is absent or allocation fails; q is unchanged then.
func (q *Queue) InsertTail(value []byte) bool {
	if !q.usable() {
		return false
	}
	n := q.newNode(value)
	if n == nil {
		return false
	}
	if q.tail != nil {
		q.tail.next = n
	} else {
		q.head = n
	}
	q.tail = n
	q.size++
	return true
}

// RemoveHead detaches and releases the head node.
// If out is non-empty, up to len(out)-1 bytes of the removed value are copied
// into it and the remainder of out is zeroed, so out[len(out)-1] is always 0.
// It returns false, without mutating q, if q is absent or empty.
func (q *Queue) RemoveHead(out []byte) bool {
	n := q.unlinkHead()
	if n == nil {
		return false
	}
	if len(out) > 0 {
		copied := copy(out[:len(out)-1], n.value)
		clear(out[copied:])
	}
	q.releaseNode(n)
	return true
}

// PopHead detaches the head node and returns its value, whose ownership
// passes to the caller. The allocator only accounts for memory the queue
// owns, so the value's block is released at handoff together with the node.
func (q *Queue) PopHead() ([]byte, bool) {
	n := q.unlinkHead()
	if n == nil {
		return nil, false
	}
	value := n.value
	q.releaseNode(n)
	return value, true
}

func (q *Queue) unlinkHead() *node {
	if !q.usable() || q.head == nil {
		return nil
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	n.next = nil
	return n
}

// Size returns the number of values in q, 0 for an absent queue.
func (q *Queue) Size() int {
	if !q.usable() || q.head == nil {
		return 0
	}
	return q.size
}

// Reverse inverts the order of q in place without allocating.
func (q *Queue) Reverse() {
	if !q.usable() || q.size < 2 {
		return
	}
	var prev *node
	cur := q.head
	for cur != nil {
		next := cur.next
		cur.next = prev
		prev = cur
		cur = next
	}
	q.head, q.tail = q.tail, q.head
	q.tail.next = nil
}

// Values returns copies of the stored values from head to tail.
func (q *Queue) Values() [][]byte {
	if !q.usable() {
		return nil
	}
	out := make([][]byte, 0, q.size)
	for n := q.head; n != nil; n = n.next {
		out = append(out, append([]byte(nil), n.value...))
	}
	return out
}

// Check walks the chain and reports the first inconsistency between the links
// and the cached head, tail and size.
func (q *Queue) Check() error {
	if !q.usable() {
		return nil
	}
	if q.size == 0 {
		if q.head != nil || q.tail != nil {
			return fmt.Errorf("%w: size 0 with head or tail set", ErrCorrupt)
		}
		return nil
	}
	if q.head == nil || q.tail == nil {
		return fmt.Errorf("%w: size %d with head or tail missing", ErrCorrupt, q.size)
	}
	last := q.head
	for i := 1; i < q.size; i++ {
		if last.next == nil {
			return fmt.Errorf("%w: chain ends after %d of %d nodes", ErrCorrupt, i, q.size)
		}
		last = last.next
	}
	if last != q.tail {
		return fmt.Errorf("%w: node %d is not the cached tail", ErrCorrupt, q.size)
	}
	if last.next != nil {
		return fmt.Errorf("%w: tail has a successor", ErrCorrupt)
	}
	return nil
}
