// Sorting serialized pairs is dominated by comparisons, so pairs are compared on their encoded bytes instead of being
// decoded first. The left elements are compared as zero-copy slices of the buffers; only if they're equal are the
// right elements located by skipping each length-prefixed left element and compared as floats.
// For every valid encoding, the byte order must be identical to StringFloat.Compare.

package pair

import (
	"bytes"
	"fmt"

	"github.com/nobletooth/pairs/pkg/registry"
	"github.com/nobletooth/pairs/pkg/utils"
	"github.com/nobletooth/pairs/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var malformedComparisons = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pair_malformed_comparisons_total",
	Help: "Total number of raw comparisons that were given a malformed encoded pair.",
})

// Comparator compares encoded StringFloat pairs without decoding them. The zero value is ready to use.
type Comparator struct{}

var (
	_ registry.RawComparator = Comparator{}
	_ registry.TotalOrderer  = Comparator{}
)

// leftAndRightOffset returns the left element of the encoded pair in `buf[start:start+length]` and the offset of its
// right element inside `buf`.
func leftAndRightOffset(buf []byte, start, length int) ([]byte, int, error) {
	if start < 0 || length < 0 || start > len(buf) || len(buf)-start < length {
		return nil, 0, fmt.Errorf("%w: range [%d, %d+%d) is outside a %d byte buffer",
			wire.ErrDecode, start, start, length, len(buf))
	}
	record := buf[start : start+length]
	left, err := wire.ReadUTFBytes(record, 0 /*offset*/)
	if err != nil {
		return nil, 0, err
	}
	// The right element is found by skipping the length prefix and the left element.
	leftLength, err := wire.ReadUnsignedShort(record, 0 /*offset*/)
	if err != nil {
		return nil, 0, err
	}
	rightOffset := wire.ShortSize + int(leftLength)
	if len(record)-rightOffset < wire.FloatSize {
		return nil, 0, fmt.Errorf("%w: encoded pair of %d bytes has no room for its right element",
			wire.ErrDecode, len(record))
	}
	return left, start + rightOffset, nil
}

// CompareRaw compares the encoded pairs `b1[s1:s1+l1]` and `b2[s2:s2+l2]` the same way StringFloat.Compare compares
// their decoded forms. Neither buffer is modified, and no memory outside the given ranges is read.
func (Comparator) CompareRaw(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int) (int, error) {
	return compareRaw(b1, s1, l1, b2, s2, l2, compareFloats)
}

// compareRaw compares two encoded pairs, breaking ties on the left element with `compareRights`.
func compareRaw(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int, compareRights func(x, y float32) int) (int, error) {
	left1, rightOffset1, err := leftAndRightOffset(b1, s1, l1)
	if err != nil {
		return 0, fmt.Errorf("failed to read first pair: %w", err)
	}
	left2, rightOffset2, err := leftAndRightOffset(b2, s2, l2)
	if err != nil {
		return 0, fmt.Errorf("failed to read second pair: %w", err)
	}
	// Valid UTF-8 sorts bytewise in code point order, same as Go strings.
	if cmp := bytes.Compare(left1, left2); cmp != 0 {
		return cmp, nil
	}
	right1, err := wire.ReadFloat(b1, rightOffset1)
	if err != nil {
		return 0, fmt.Errorf("failed to read first right element: %w", err)
	}
	right2, err := wire.ReadFloat(b2, rightOffset2)
	if err != nil {
		return 0, fmt.Errorf("failed to read second right element: %w", err)
	}
	return compareRights(right1, right2), nil
}

// CompareRange is CompareRaw for callers that can't handle errors, e.g. sort routines.
// Malformed pairs raise an invariant and are ordered by their raw bytes, so the result stays deterministic.
func (Comparator) CompareRange(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int) int {
	return compareOrFallback(b1, s1, l1, b2, s2, l2, compareFloats)
}

// Compare compares two whole encoded pairs; see CompareRange.
func (c Comparator) Compare(a, b []byte) int {
	return c.CompareRange(a, 0, len(a), b, 0, len(b))
}

// SortOrder is the raw form of the SortOrder function: a total order over whole encoded pairs that puts NaN right
// elements after every number. Malformed pairs are handled as in CompareRange.
func (Comparator) SortOrder(a, b []byte) int {
	return compareOrFallback(a, 0, len(a), b, 0, len(b), sortFloats)
}

func compareOrFallback(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int, compareRights func(x, y float32) int) int {
	cmp, err := compareRaw(b1, s1, l1, b2, s2, l2, compareRights)
	if err != nil {
		malformedComparisons.Inc()
		utils.RaiseInvariant("pair", "malformed_record", "Compared a malformed encoded pair.", "error", err)
		return bytes.Compare(clampRange(b1, s1, l1), clampRange(b2, s2, l2))
	}
	return cmp
}

// clampRange returns the part of `buf[start:start+length]` that lies inside `buf`.
func clampRange(buf []byte, start, length int) []byte {
	start = min(max(start, 0), len(buf))
	end := min(max(start+max(length, 0), start), len(buf))
	return buf[start:end]
}

// Register associates Comparator with StringFloat in the given registry. Calling it more than once is harmless.
func Register(r *registry.Registry) error {
	return registry.Define[StringFloat](r, Comparator{})
}
