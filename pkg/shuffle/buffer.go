package shuffle

import (
	"iter"
	"math"

	"github.com/google/btree"
	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/nobletooth/pairs/pkg/registry"
)

const btreeDegree = 32

// bufferEntry is an encoded record plus its insertion sequence, which keeps equal records in arrival order.
type bufferEntry struct {
	record []byte
	seq    uint64
}

// SortBuffer keeps encoded records ordered by a raw comparator while they are being collected in memory.
// Equal records are all kept, in insertion order. Comparators providing a total order are sorted by it.
// SortBuffer isn't safe for concurrent use.
type SortBuffer struct {
	tree      *btree.BTreeG[bufferEntry]
	nextSeq   uint64 // Starts at 1; sequence 0 is reserved for lookup probes.
	sizeBytes int
}

// NewSortBuffer is the constructor for SortBuffer.
func NewSortBuffer(comparator registry.RawComparator) *SortBuffer {
	order := registry.SortOrder(comparator)
	less := func(e1, e2 bufferEntry) bool {
		if cmp := order(e1.record, e2.record); cmp != 0 {
			return cmp < 0
		}
		return e1.seq < e2.seq
	}
	return &SortBuffer{tree: btree.NewG(btreeDegree, less), nextSeq: 1}
}

// Add inserts the encoded `record`. The buffer keeps a reference to it, so it must not be modified afterward.
func (b *SortBuffer) Add(record []byte) {
	b.tree.ReplaceOrInsert(bufferEntry{record: record, seq: b.nextSeq})
	b.nextSeq++
	b.sizeBytes += len(record)
}

// Len returns the number of buffered records.
func (b *SortBuffer) Len() int { return b.tree.Len() }

// SizeBytes returns the total size of the buffered records.
func (b *SortBuffer) SizeBytes() int { return b.sizeBytes }

// All yields the buffered records in sorted order.
func (b *SortBuffer) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		b.tree.Ascend(func(entry bufferEntry) bool { return yield(entry.record) })
	}
}

// containsLeft returns true if any buffered record has `left` as its left element.
func (b *SortBuffer) containsLeft(left string) bool {
	// (left, -Inf) sorts before every other pair sharing the same left element.
	probe, err := pair.NewStringFloat(left, float32(math.Inf(-1))).MarshalBinary()
	if err != nil {
		return false // Such a left element could never have been buffered.
	}
	found := false
	b.tree.AscendGreaterOrEqual(bufferEntry{record: probe, seq: 0}, func(entry bufferEntry) bool {
		entryLeft, err := leftOf(entry.record)
		found = err == nil && string(entryLeft) == left
		return false // Only the first record is of interest.
	})
	return found
}

// Clone returns a snapshot of the buffer; later changes to either buffer aren't visible in the other.
func (b *SortBuffer) Clone() *SortBuffer {
	return &SortBuffer{tree: b.tree.Clone(), nextSeq: b.nextSeq, sizeBytes: b.sizeBytes}
}

// Reset drops every buffered record.
func (b *SortBuffer) Reset() {
	b.tree.Clear(false /*addNodesToFreelist*/)
	b.sizeBytes = 0
}
