package queue

// QueueValidationInterface is a *type constraint* for queues shared between
// goroutines. It is used at compile time by the timed test runner.
type QueueValidationInterface[T any] interface {
	// Enqueue adds an element to the queue and blocks if the queue is full.
	Enqueue(T)

	// Dequeue removes and returns the oldest element.
	// If the queue is empty it returns an empty T and false, otherwise true.
	Dequeue() (T, bool)

	// FreeSlots returns how many more elements can be enqueued before the queue is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64
}

// StructuralQueue is the single-owner surface of a linked byte-string queue.
// Sized workloads are written against it so they can run on the raw queue.
type StructuralQueue interface {
	InsertHead([]byte) bool
	InsertTail([]byte) bool
	RemoveHead([]byte) bool
	Size() int
	Reverse()
	Sort()
	Check() error
	Free()
}
