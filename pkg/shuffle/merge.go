// The sorter ends up with several sorted sources: the spilled runs and whatever is still buffered in memory.
// This module merges them with a heap-based multi-way iterator that pulls lazily from each source, so memory usage
// stays constant in the number of records. Unlike a key-value merge, equal records are never discarded; they're
// yielded in the order of the sources that produced them, which keeps the merge stable.

package shuffle

import (
	"container/heap"
	"errors"
	"iter"

	"github.com/nobletooth/pairs/pkg/utils"
)

// heapElement is an item pulled from one of the merged sequences.
type heapElement[T any] struct {
	item   T
	seqIdx int // The index of the sequence that produced this element; earlier sequences win ties.
}

// mergeHeap holds the iteration state over multiple sequences.
type mergeHeap[T any] struct { // Implements heap.Interface.
	compare  utils.CompareFn[T]
	elements []*heapElement[T]
}

var _ heap.Interface = (*mergeHeap[int])(nil)

func (mh *mergeHeap[T]) Len() int {
	return len(mh.elements)
}

// Less orders elements by item, and by sequence index for equal items.
func (mh *mergeHeap[T]) Less(i, j int) bool {
	e1, e2 := mh.elements[i], mh.elements[j]
	if cmp := mh.compare(e1.item, e2.item); cmp != 0 {
		return cmp < 0
	}
	return e1.seqIdx < e2.seqIdx
}

func (mh *mergeHeap[T]) Swap(i, j int) {
	mh.elements[i], mh.elements[j] = mh.elements[j], mh.elements[i]
}

func (mh *mergeHeap[T]) Push(x any) {
	if element, ok := x.(*heapElement[T]); !ok {
		utils.RaiseInvariant("merge", "pushed_invalid_type", "An item with invalid type was pushed to heap.")
	} else if element == nil {
		utils.RaiseInvariant("merge", "pushed_nil_element", "A nil element was pushed to merge heap.")
	} else if len(mh.elements) == cap(mh.elements) {
		utils.RaiseInvariant("merge", "exceeded_capacity",
			"An element was pushed while the capacity was full.", "cap", cap(mh.elements))
	} else {
		mh.elements = append(mh.elements, element)
	}
}

func (mh *mergeHeap[T]) Pop() any {
	lastElement := mh.elements[len(mh.elements)-1]
	mh.elements = mh.elements[:len(mh.elements)-1]
	return lastElement
}

// Merge merges sorted `sequences` into one sorted sequence, keeping every item. Items comparing equal are yielded in
// the order of their sequences, then in the order they appeared in their sequence.
// Nothing is pulled from the sequences until the merged sequence is iterated.
func Merge[T any](compare utils.CompareFn[T], sequences []iter.Seq[T]) (iter.Seq[T], error) {
	if compare == nil {
		return nil, errors.New("expected a non-nil comparison function")
	}

	return func(yield func(T) bool) {
		mh := &mergeHeap[T]{compare: compare, elements: make([]*heapElement[T], 0, len(sequences))}
		pull := make([]func() (T, bool), len(sequences))
		for seqIdx, seq := range sequences {
			pullFn, stopFn := iter.Pull(seq)
			defer stopFn()
			pull[seqIdx] = pullFn
			if first, hasAny := pullFn(); hasAny {
				heap.Push(mh, &heapElement[T]{item: first, seqIdx: seqIdx})
			}
		}

		for mh.Len() > 0 {
			top := heap.Pop(mh).(*heapElement[T])
			// The consumer sees the item before its sequence moves on; sources may reuse their buffers.
			if !yield(top.item) {
				return
			}
			if next, hasNext := pull[top.seqIdx](); hasNext {
				heap.Push(mh, &heapElement[T]{item: next, seqIdx: top.seqIdx})
			}
		}
	}, nil
}
