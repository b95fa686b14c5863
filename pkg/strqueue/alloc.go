package strqueue

// Allocator accounts for the memory a Queue owns. Alloc reports whether a
// block of size bytes may be taken and returns a handle for it; every
// successful Alloc is matched by exactly one Free of that handle.
type Allocator interface {
	Alloc(size int) (handle uint64, ok bool)
	Free(handle uint64)
}

// heapAllocator defers to the Go runtime and never refuses.
type heapAllocator struct{}

func (heapAllocator) Alloc(int) (uint64, bool) { return 0, true }
func (heapAllocator) Free(uint64)              {}
