package shuffle

import (
	"cmp"
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tagged struct {
	key int
	tag string
}

func compareTagged(a, b tagged) int { return cmp.Compare(a.key, b.key) }

func TestMerge(t *testing.T) {
	s1 := slices.Values([]tagged{{1, "s1"}, {2, "s1"}, {2, "s1'"}, {4, "s1"}})
	s2 := slices.Values([]tagged{{1, "s2"}, {3, "s2"}, {5, "s2"}})
	s3 := slices.Values([]tagged{})
	s4 := slices.Values([]tagged{{2, "s4"}, {6, "s4"}})
	merged, err := Merge(compareTagged, []iter.Seq[tagged]{s1, s2, s3, s4})
	require.NoError(t, err)

	expected := []tagged{{1, "s1"}, {1, "s2"}, {2, "s1"}, {2, "s1'"}, {2, "s4"}, {3, "s2"}, {4, "s1"}, {5, "s2"},
		{6, "s4"}}
	assert.Equal(t, expected, slices.Collect(merged), "Expected duplicates to be kept in sequence order")
	assert.Equal(t, expected, slices.Collect(merged), "Expected the merged sequence to be reusable")
}

func TestMergeEdgeCases(t *testing.T) {
	t.Run("nil compare", func(t *testing.T) {
		_, err := Merge[int](nil /*compare*/, nil /*sequences*/)
		assert.Error(t, err)
	})
	t.Run("no sequences", func(t *testing.T) {
		merged, err := Merge(cmp.Compare[int], nil /*sequences*/)
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(merged))
	})
	t.Run("early stop", func(t *testing.T) {
		pulled := 0
		counting := func(yield func(int) bool) {
			for i := range 100 {
				pulled++
				if !yield(i) {
					return
				}
			}
		}
		merged, err := Merge(cmp.Compare[int], []iter.Seq[int]{counting})
		require.NoError(t, err)
		var got []int
		for item := range merged {
			got = append(got, item)
			if len(got) == 3 {
				break
			}
		}
		assert.Equal(t, []int{0, 1, 2}, got)
		assert.Equal(t, 3, pulled, "Expected sequences to be pulled lazily")
	})
	t.Run("reused buffers", func(t *testing.T) {
		// Sources may hand out the same slice again once the consumer moved on.
		reusing := func(values ...byte) iter.Seq[[]byte] {
			return func(yield func([]byte) bool) {
				buf := make([]byte, 1)
				for _, value := range values {
					buf[0] = value
					if !yield(buf) {
						return
					}
				}
			}
		}
		merged, err := Merge(func(a, b []byte) int { return cmp.Compare(a[0], b[0]) },
			[]iter.Seq[[]byte]{reusing(1, 3, 5), reusing(2, 4, 6)})
		require.NoError(t, err)
		var got []byte
		for item := range merged {
			got = append(got, item[0])
		}
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
	})
}
