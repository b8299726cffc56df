package shuffle

import (
	"math"
	"slices"
	"testing"

	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortBuffer(t *testing.T) {
	buffer := NewSortBuffer(pair.Comparator{})
	records := encodeAll(t,
		pair.NewStringFloat("banana", 0),
		pair.NewStringFloat("apple", 2.5),
		pair.NewStringFloat("apple", 1.5),
		pair.NewStringFloat("date", float32(math.NaN())),
		pair.NewStringFloat("cherry", 7),
	)
	size := 0
	for _, record := range records {
		buffer.Add(record)
		size += len(record)
	}
	assert.Equal(t, len(records), buffer.Len())
	assert.Equal(t, size, buffer.SizeBytes())

	got := slices.Collect(buffer.All())
	expected := []int{2, 1, 0, 4, 3} // Indices into records.
	require.Len(t, got, len(expected))
	for i, recordIdx := range expected {
		assert.Equalf(t, records[recordIdx], got[i], "Unexpected record at position %d", i)
	}

	buffer.Reset()
	assert.Zero(t, buffer.Len())
	assert.Zero(t, buffer.SizeBytes())
	assert.Empty(t, slices.Collect(buffer.All()))
}

func TestSortBufferKeepsDuplicatesInOrder(t *testing.T) {
	buffer := NewSortBuffer(pair.Comparator{})
	// Equal pairs with distinct encodings: -0 and 0 compare equal.
	first := encodeAll(t, pair.NewStringFloat("k", float32(math.Copysign(0, -1))))[0]
	second := encodeAll(t, pair.NewStringFloat("k", 0))[0]
	third := encodeAll(t, pair.NewStringFloat("k", float32(math.Copysign(0, -1))))[0]
	for _, record := range [][]byte{first, second, third} {
		buffer.Add(record)
	}
	got := slices.Collect(buffer.All())
	require.Len(t, got, 3)
	assert.Same(t, &first[0], &got[0][0])
	assert.Same(t, &second[0], &got[1][0])
	assert.Same(t, &third[0], &got[2][0])
}

func TestSortBufferPutsNaNLast(t *testing.T) {
	buffer := NewSortBuffer(pair.Comparator{})
	records := encodeAll(t,
		pair.NewStringFloat("k", 7),
		pair.NewStringFloat("k", float32(math.NaN())),
		pair.NewStringFloat("k", 3),
		pair.NewStringFloat("k", float32(math.NaN())),
	)
	for _, record := range records {
		buffer.Add(record)
	}
	assert.Equal(t, len(records), buffer.Len())
	assert.Equal(t, [][]byte{records[2], records[0], records[1], records[3]}, slices.Collect(buffer.All()))
}

func TestSortBufferClone(t *testing.T) {
	buffer := NewSortBuffer(pair.Comparator{})
	records := encodeAll(t, pair.NewStringFloat("a", 1), pair.NewStringFloat("b", 2))
	buffer.Add(records[0])
	snapshot := buffer.Clone()
	buffer.Add(records[1])
	assert.Equal(t, [][]byte{records[0]}, slices.Collect(snapshot.All()))
	buffer.Reset()
	assert.Equal(t, 1, snapshot.Len(), "Expected the snapshot to survive a reset")
}

func TestSortBufferContainsLeft(t *testing.T) {
	buffer := NewSortBuffer(pair.Comparator{})
	for _, record := range encodeAll(t,
		pair.NewStringFloat("apple", float32(math.Inf(-1))),
		pair.NewStringFloat("banana", float32(math.NaN())),
		pair.NewStringFloat("cherry", 3),
	) {
		buffer.Add(record)
	}
	for _, testCase := range []struct {
		left     string
		expected bool
	}{
		{left: "apple", expected: true},
		{left: "banana", expected: true},
		{left: "cherry", expected: true},
		{left: "", expected: false},
		{left: "app", expected: false},
		{left: "blueberry", expected: false},
		{left: "zucchini", expected: false},
	} {
		t.Run(testCase.left, func(t *testing.T) {
			assert.Equal(t, testCase.expected, buffer.containsLeft(testCase.left))
		})
	}
}
