package harness

import (
	"math/rand/v2"
	"sync"
)

// Tracker is a checked allocator. Every granted block gets its own handle,
// so a handle freed twice or never handed out is reported as a double free
// even while other blocks are still live. It can also be told to refuse
// allocations so that failure paths get exercised.
//
// Tracker satisfies strqueue.Allocator.
type Tracker struct {
	mu sync.Mutex

	live        map[uint64]int // handle -> size
	nextHandle  uint64
	bytes       int
	allocs      int
	failures    int
	doubleFrees int

	failProbability float64
	failAfter       int // successful allocations before refusing; < 0 disables
	byteLimit       int // 0 disables
	rng             *rand.Rand
}

// New returns a Tracker that never refuses until configured otherwise.
func New(seed uint64) *Tracker {
	return &Tracker{
		live:      make(map[uint64]int),
		failAfter: -1,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// SetFailProbability makes each Alloc fail with probability p (0 <= p <= 1).
func (t *Tracker) SetFailProbability(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	t.failProbability = p
}

// FailAfter lets n more allocations succeed, then refuses all further ones.
// A negative n disables the countdown.
func (t *Tracker) FailAfter(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAfter = n
}

// SetByteLimit refuses any allocation that would take the live byte count
// above limit. Zero removes the limit.
func (t *Tracker) SetByteLimit(limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byteLimit = limit
}

// Alloc grants a block of size bytes and returns its handle. Handles start
// at 1 and are never reused.
func (t *Tracker) Alloc(size int) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failAfter == 0 ||
		(t.byteLimit > 0 && t.bytes+size > t.byteLimit) ||
		(t.failProbability > 0 && t.rng.Float64() < t.failProbability) {
		t.failures++
		return 0, false
	}
	if t.failAfter > 0 {
		t.failAfter--
	}
	t.nextHandle++
	t.live[t.nextHandle] = size
	t.bytes += size
	t.allocs++
	return t.nextHandle, true
}

// Free releases the block behind handle. A handle that is not live counts
// as a double free and leaves the other blocks untouched.
func (t *Tracker) Free(handle uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	size, ok := t.live[handle]
	if !ok {
		t.doubleFrees++
		return
	}
	delete(t.live, handle)
	t.bytes -= size
}

// Stats is a point-in-time copy of the tracker counters.
type Stats struct {
	LiveBlocks  int
	LiveBytes   int
	Allocs      int
	Failures    int
	DoubleFrees int
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		LiveBlocks:  len(t.live),
		LiveBytes:   t.bytes,
		Allocs:      t.allocs,
		Failures:    t.failures,
		DoubleFrees: t.doubleFrees,
	}
}

// Leaks returns the number of blocks allocated and never freed.
func (t *Tracker) Leaks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
