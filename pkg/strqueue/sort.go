package strqueue

import "bytes"

// precedes reports whether a orders before or equal to b: bytewise up to
// the shorter length, then the shorter value first. Equal values precede
// each other, which keeps the merge stable.
func precedes(a, b []byte) bool {
	return bytes.Compare(a, b) <= 0
}

// Sort orders q ascending by precedes using a stable merge sort that only
// rewires next-links.
func (q *Queue) Sort() {
	if !q.usable() || q.head == nil || q.head.next == nil {
		return
	}
	q.head, q.tail = mergeSort(q.head, q.size)
}

// mergeSort sorts the n-node chain starting at head, which must be terminated
// after its n-th node, and returns its new first and last nodes.
func mergeSort(head *node, n int) (first, last *node) {
	if n == 1 {
		return head, head
	}
	half := n / 2
	mid := head
	for i := 1; i < half; i++ {
		mid = mid.next
	}
	right := mid.next
	mid.next = nil

	left, _ := mergeSort(head, half)
	right, _ = mergeSort(right, n-half)
	return merge(left, right)
}

// merge combines two non-empty ascending chains, taking from l on ties.
func merge(l, r *node) (first, last *node) {
	if precedes(l.value, r.value) {
		first, l = l, l.next
	} else {
		first, r = r, r.next
	}
	last = first
	for l != nil && r != nil {
		if precedes(l.value, r.value) {
			last.next, l = l, l.next
		} else {
			last.next, r = r, r.next
		}
		last = last.next
	}
	if l != nil {
		last.next = l
	} else {
		last.next = r
	}
	for last.next != nil {
		last = last.next
	}
	return first, last
}
