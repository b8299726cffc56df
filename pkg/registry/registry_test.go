package registry

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bytesComparator orders records by their raw bytes.
type bytesComparator struct{ name string }

func (bytesComparator) CompareRange(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int) int {
	return bytes.Compare(b1[s1:s1+l1], b2[s2:s2+l2])
}

func (c bytesComparator) Compare(a, b []byte) int {
	return c.CompareRange(a, 0, len(a), b, 0, len(b))
}

// funcComparator isn't comparable, so it can never be treated as the same comparator.
type funcComparator struct{ compare func(a, b []byte) int }

func (f funcComparator) CompareRange(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int) int {
	return f.compare(b1[s1:s1+l1], b2[s2:s2+l2])
}

func (f funcComparator) Compare(a, b []byte) int { return f.compare(a, b) }

type recordA struct{}
type recordB struct{}

func TestDefine(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		r := New()
		_, found := Lookup[recordA](r)
		assert.False(t, found)

		require.NoError(t, Define[recordA](r, bytesComparator{name: "a"}))
		comparator, found := Lookup[recordA](r)
		assert.True(t, found)
		assert.Equal(t, bytesComparator{name: "a"}, comparator)
		assert.Negative(t, comparator.Compare([]byte{1}, []byte{2}))

		_, found = Lookup[recordB](r)
		assert.False(t, found, "Expected record types to be independent")
	})
	t.Run("idempotent", func(t *testing.T) {
		r := New()
		require.NoError(t, Define[recordA](r, bytesComparator{name: "a"}))
		assert.NoError(t, Define[recordA](r, bytesComparator{name: "a"}))
	})
	t.Run("conflict", func(t *testing.T) {
		r := New()
		require.NoError(t, Define[recordA](r, bytesComparator{name: "a"}))
		assert.ErrorIs(t, Define[recordA](r, bytesComparator{name: "other"}), ErrAlreadyDefined)
		comparator, _ := Lookup[recordA](r)
		assert.Equal(t, bytesComparator{name: "a"}, comparator, "Expected the first definition to win")
	})
	t.Run("non comparable comparator", func(t *testing.T) {
		r := New()
		comparator := funcComparator{compare: bytes.Compare}
		require.NoError(t, Define[recordA](r, comparator))
		assert.ErrorIs(t, Define[recordA](r, comparator), ErrAlreadyDefined)
	})
	t.Run("nil comparator", func(t *testing.T) {
		assert.Error(t, Define[recordA](New(), nil))
	})
}

func TestDefineConcurrently(t *testing.T) {
	r := New()
	wg := sync.WaitGroup{}
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, Define[recordA](r, bytesComparator{name: "a"}))
		}()
	}
	wg.Wait()
	_, found := Lookup[recordA](r)
	assert.True(t, found)
}

// reversedOrderer sorts records in reverse byte order.
type reversedOrderer struct{ bytesComparator }

func (reversedOrderer) SortOrder(a, b []byte) int { return bytes.Compare(b, a) }

func TestSortOrder(t *testing.T) {
	a, b := []byte("a"), []byte("b")
	assert.Equal(t, -1, SortOrder(bytesComparator{})(a, b), "Expected Compare without a total order")
	assert.Equal(t, 1, SortOrder(reversedOrderer{})(a, b), "Expected SortOrder to take precedence")
}
