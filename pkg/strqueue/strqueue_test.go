package strqueue

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/GoStrQueue/pkg/harness"
)

func newTracked(t *testing.T) (*Queue, *harness.Tracker) {
	t.Helper()
	tr := harness.New(1)
	q, err := New(WithAllocator(tr))
	require.NoError(t, err)
	return q, tr
}

func strs(vals [][]byte) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		q, err := New()
		require.NoError(t, err)
		assert.Equal(t, 0, q.Size())
		assert.Nil(t, q.head)
		assert.Nil(t, q.tail)
		assert.NoError(t, q.Check())
	})

	t.Run("AllocationFailure", func(t *testing.T) {
		tr := harness.New(1)
		tr.FailAfter(0)
		q, err := New(WithAllocator(tr))
		assert.Nil(t, q)
		assert.True(t, errors.Is(err, ErrAllocation))
		assert.Equal(t, 0, tr.Leaks())
	})
}

func TestAbsentQueue(t *testing.T) {
	var q *Queue
	assert.False(t, q.InsertHead([]byte("x")))
	assert.False(t, q.InsertTail([]byte("x")))
	assert.False(t, q.RemoveHead(make([]byte, 4)))
	assert.Equal(t, 0, q.Size())
	assert.NotPanics(t, func() {
		q.Reverse()
		q.Sort()
		Destroy(q)
	})
}

func TestInsert(t *testing.T) {
	t.Run("TailOnEmpty", func(t *testing.T) {
		q, tr := newTracked(t)
		require.True(t, q.InsertTail([]byte("first")))
		assert.Equal(t, 1, q.Size())
		assert.Same(t, q.head, q.tail)
		assert.Nil(t, q.head.next)
		require.NoError(t, q.Check())
		Destroy(q)
		assert.Equal(t, 0, tr.Leaks())
	})

	t.Run("HeadAndTailOrder", func(t *testing.T) {
		q, _ := newTracked(t)
		q.InsertTail([]byte("b"))
		q.InsertTail([]byte("c"))
		q.InsertHead([]byte("a"))
		assert.Equal(t, []string{"a", "b", "c"}, strs(q.Values()))
		assert.Equal(t, "c", string(q.tail.value))
		require.NoError(t, q.Check())
	})

	t.Run("DeepCopy", func(t *testing.T) {
		q, _ := newTracked(t)
		buf := []byte("hello")
		q.InsertHead(buf)
		q.InsertTail(buf)
		buf[0] = 'J'
		assert.Equal(t, []string{"hello", "hello"}, strs(q.Values()))
	})

	t.Run("FullLengthCopy", func(t *testing.T) {
		q, _ := newTracked(t)
		for _, v := range []string{"", "x", "exactly-seventeen"} {
			require.True(t, q.InsertHead([]byte(v)))
			out := make([]byte, len(v)+1)
			require.True(t, q.RemoveHead(out))
			assert.Equal(t, v, string(out[:len(v)]))
			assert.Equal(t, byte(0), out[len(v)])
		}
	})

	t.Run("ValueAllocationFailureReleasesNode", func(t *testing.T) {
		q, tr := newTracked(t)
		require.True(t, q.InsertTail([]byte("keep")))
		before := tr.Stats()

		tr.FailAfter(1) // node succeeds, value buffer fails
		assert.False(t, q.InsertHead([]byte("lost")))
		tr.FailAfter(1)
		assert.False(t, q.InsertTail([]byte("lost")))

		after := tr.Stats()
		assert.Equal(t, before.LiveBlocks, after.LiveBlocks)
		assert.Equal(t, before.LiveBytes, after.LiveBytes)
		assert.Equal(t, []string{"keep"}, strs(q.Values()))
		require.NoError(t, q.Check())

		tr.FailAfter(-1)
		Destroy(q)
		assert.Equal(t, 0, tr.Leaks())
		assert.Equal(t, 0, tr.Stats().DoubleFrees)
	})

	t.Run("NodeAllocationFailure", func(t *testing.T) {
		q, tr := newTracked(t)
		tr.FailAfter(0)
		assert.False(t, q.InsertTail([]byte("x")))
		assert.Equal(t, 0, q.Size())
		assert.Equal(t, 1, tr.Leaks())
	})
}

func TestRemoveHead(t *testing.T) {
	t.Run("EmptyFails", func(t *testing.T) {
		q, _ := newTracked(t)
		assert.False(t, q.RemoveHead(make([]byte, 8)))
		assert.Equal(t, 0, q.Size())
		require.NoError(t, q.Check())
	})

	t.Run("Truncates", func(t *testing.T) {
		q, _ := newTracked(t)
		q.InsertTail([]byte("0123456789"))
		out := bytes.Repeat([]byte{0xff}, 4)
		require.True(t, q.RemoveHead(out))
		assert.Equal(t, []byte{'0', '1', '2', 0}, out)
		assert.Equal(t, 0, q.Size())
	})

	t.Run("ZeroFillsShortValue", func(t *testing.T) {
		q, _ := newTracked(t)
		q.InsertTail([]byte("ab"))
		out := bytes.Repeat([]byte{0xff}, 6)
		require.True(t, q.RemoveHead(out))
		assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 0}, out)
	})

	t.Run("NilBuffer", func(t *testing.T) {
		q, tr := newTracked(t)
		q.InsertTail([]byte("a"))
		q.InsertTail([]byte("b"))
		require.True(t, q.RemoveHead(nil))
		assert.Equal(t, []string{"b"}, strs(q.Values()))
		require.True(t, q.RemoveHead(nil))
		assert.Nil(t, q.head)
		assert.Nil(t, q.tail)
		assert.Equal(t, 1, tr.Leaks())
	})

	t.Run("LastThenInsertTail", func(t *testing.T) {
		q, _ := newTracked(t)
		q.InsertTail([]byte("a"))
		q.RemoveHead(nil)
		require.True(t, q.InsertTail([]byte("b")))
		assert.Equal(t, []string{"b"}, strs(q.Values()))
		require.NoError(t, q.Check())
	})

	t.Run("PopHead", func(t *testing.T) {
		q, tr := newTracked(t)
		headerOnly := tr.Stats()
		q.InsertTail([]byte("whole value"))
		q.InsertTail([]byte("next"))

		v, ok := q.PopHead()
		require.True(t, ok)
		assert.Equal(t, "whole value", string(v))
		assert.Equal(t, []string{"next"}, strs(q.Values()))
		require.NoError(t, q.Check())

		// The handed-off value no longer counts against the queue.
		afterPop := tr.Stats()
		assert.Equal(t, headerOnly.LiveBlocks+2, afterPop.LiveBlocks)
		assert.Equal(t, headerOnly.LiveBytes+nodeSize+len("next"), afterPop.LiveBytes)

		v[0] = 'W'
		assert.Equal(t, []string{"next"}, strs(q.Values()))

		_, ok = q.PopHead()
		require.True(t, ok)
		_, ok = q.PopHead()
		assert.False(t, ok)
		assert.Equal(t, 1, tr.Leaks())
		assert.Equal(t, 0, tr.Stats().DoubleFrees)
	})
}

func TestNodesReleasedIndividually(t *testing.T) {
	q, tr := newTracked(t)
	q.InsertTail([]byte("a"))
	q.InsertTail([]byte("b"))
	first, second := q.head, q.tail
	require.NotEqual(t, first.block, second.block)
	require.NotEqual(t, first.valueBlock, second.valueBlock)

	// Releasing the first node's blocks twice is caught while the second
	// node is still live.
	q.alloc.Free(first.block)
	q.alloc.Free(first.block)
	assert.Equal(t, 1, tr.Stats().DoubleFrees)
	assert.Equal(t, 4, tr.Leaks())
}

func TestReverse(t *testing.T) {
	t.Run("SmallIsNoop", func(t *testing.T) {
		q, _ := newTracked(t)
		q.Reverse()
		q.InsertTail([]byte("only"))
		q.Reverse()
		assert.Equal(t, []string{"only"}, strs(q.Values()))
		require.NoError(t, q.Check())
	})

	t.Run("InPlace", func(t *testing.T) {
		q, tr := newTracked(t)
		for _, v := range []string{"a", "b", "c", "d"} {
			q.InsertTail([]byte(v))
		}
		oldHead, oldTail := q.head, q.tail
		allocs := tr.Stats().Allocs

		q.Reverse()
		assert.Equal(t, []string{"d", "c", "b", "a"}, strs(q.Values()))
		assert.Same(t, oldTail, q.head)
		assert.Same(t, oldHead, q.tail)
		assert.Nil(t, q.tail.next)
		assert.Equal(t, allocs, tr.Stats().Allocs)
		require.NoError(t, q.Check())
	})

	t.Run("SelfInverse", func(t *testing.T) {
		q, _ := newTracked(t)
		for i := 0; i < 33; i++ {
			q.InsertHead([]byte{byte(i)})
		}
		want := q.Values()
		q.Reverse()
		q.Reverse()
		assert.Equal(t, want, q.Values())
		require.NoError(t, q.Check())
	})
}

func TestFree(t *testing.T) {
	q, tr := newTracked(t)
	for i := 0; i < 100; i++ {
		q.InsertTail(bytes.Repeat([]byte{'v'}, i))
	}
	q.Free()
	assert.Equal(t, 0, tr.Leaks())
	assert.Equal(t, 0, tr.Stats().LiveBytes)

	// A freed queue behaves as absent and never frees twice.
	assert.False(t, q.InsertTail([]byte("late")))
	assert.Equal(t, 0, q.Size())
	Destroy(q)
	assert.Equal(t, 0, tr.Stats().DoubleFrees)
}

func TestCheckDetectsCorruption(t *testing.T) {
	q, _ := newTracked(t)
	q.InsertTail([]byte("a"))
	q.InsertTail([]byte("b"))

	q.size = 3
	assert.ErrorIs(t, q.Check(), ErrCorrupt)
	q.size = 2

	saved := q.tail
	q.tail = q.head
	assert.ErrorIs(t, q.Check(), ErrCorrupt)
	q.tail = saved
	assert.NoError(t, q.Check())
}

// TestRandomOperations drives the queue with a random mix of operations and
// injected allocation failures, comparing it against a slice model.
func TestRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	tr := harness.New(42)
	q, err := New(WithAllocator(tr))
	require.NoError(t, err)
	tr.SetFailProbability(0.05)

	var model []string
	inserted, removed := 0, 0
	for step := 0; step < 5000; step++ {
		v := make([]byte, rng.IntN(6))
		for i := range v {
			v[i] = 'a' + byte(rng.IntN(3))
		}
		switch op := rng.IntN(6); op {
		case 0:
			if q.InsertHead(v) {
				model = append([]string{string(v)}, model...)
				inserted++
			}
		case 1:
			if q.InsertTail(v) {
				model = append(model, string(v))
				inserted++
			}
		case 2:
			out := make([]byte, 8)
			ok := q.RemoveHead(out)
			require.Equal(t, len(model) > 0, ok)
			if ok {
				want := model[0]
				if len(want) > 7 {
					want = want[:7]
				}
				assert.Equal(t, want, string(bytes.TrimRight(out, "\x00")))
				model = model[1:]
				removed++
			}
		case 3:
			q.Reverse()
			for i, j := 0, len(model)-1; i < j; i, j = i+1, j-1 {
				model[i], model[j] = model[j], model[i]
			}
		case 4:
			q.Sort()
			sortStable(model)
		case 5:
			require.Equal(t, inserted-removed, q.Size())
		}
		require.NoError(t, q.Check(), "step %d", step)
		require.Equal(t, len(model), q.Size())
	}
	assert.Equal(t, model, strs(q.Values()))

	q.Free()
	assert.Equal(t, 0, tr.Leaks())
	assert.Equal(t, 0, tr.Stats().DoubleFrees)
}

func sortStable(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
