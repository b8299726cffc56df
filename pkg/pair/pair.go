// A StringFloat is the record unit sorted and shuffled between pipeline stages: a text left element (the key) and a
// float32 right element (the value). Pairs are sorted by the left element first and then by the right element.
//
// On the wire, a pair is the left element as length-prefixed UTF-8 text followed by the right element:
//
//	offset 0   : 2 bytes, big-endian length N of the UTF-8 left element.
//	offset 2   : N bytes, the UTF-8 left element.
//	offset 2+N : 4 bytes, big-endian IEEE-754 float32 right element.
//
// Float comparisons follow the `<` and `==` operators, so NaN is not totally ordered; see Compare.

package pair

import (
	"encoding"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/nobletooth/pairs/pkg/wire"
)

// StringFloat is a pair of a string and a float32. The zero value is the pair ("", 0).
// A StringFloat must not be mutated from multiple goroutines without external synchronization.
type StringFloat struct {
	left  string
	right float32
}

var (
	_ encoding.BinaryMarshaler   = StringFloat{}
	_ encoding.BinaryAppender    = StringFloat{}
	_ encoding.BinaryUnmarshaler = (*StringFloat)(nil)
	_ fmt.Stringer               = StringFloat{}
)

// NewStringFloat is the constructor for StringFloat.
func NewStringFloat(left string, right float32) StringFloat {
	return StringFloat{left: left, right: right}
}

// Set replaces both elements of the pair in place.
func (p *StringFloat) Set(left string, right float32) {
	p.left, p.right = left, right
}

func (p StringFloat) Left() string { return p.left }

func (p StringFloat) Right() float32 { return p.right }

// Key is an alias of Left.
func (p StringFloat) Key() string { return p.left }

// Value is an alias of Right.
func (p StringFloat) Value() float32 { return p.right }

// EncodedSize returns the number of bytes the pair occupies on the wire.
func (p StringFloat) EncodedSize() int {
	return wire.UTFSize(p.left) + wire.FloatSize
}

// Write serializes the pair into `w`. Sink failures are returned wrapped in wire.ErrEncode.
func (p StringFloat) Write(w io.Writer) error {
	encoded, err := p.AppendBinary(make([]byte, 0, p.EncodedSize()))
	if err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("%w: failed to write pair: %w", wire.ErrEncode, err)
	}
	return nil
}

// ReadFields deserializes a pair from `r` into the receiver. The receiver is only modified when the whole pair has
// been read. Returns io.EOF as is when `r` is exhausted before the pair starts.
func (p *StringFloat) ReadFields(r io.Reader) error {
	left, err := wire.ReadUTFFrom(r)
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("failed to read left element: %w", err)
	}
	right, err := wire.ReadFloatFrom(r)
	if err != nil {
		return fmt.Errorf("failed to read right element: %w", err)
	}
	p.Set(left, right)
	return nil
}

// Decode reads the next pair from `r`.
func Decode(r io.Reader) (StringFloat, error) {
	var p StringFloat
	err := p.ReadFields(r)
	return p, err
}

// AppendBinary appends the wire encoding of the pair to `dst`.
func (p StringFloat) AppendBinary(dst []byte) ([]byte, error) {
	dst, err := wire.AppendUTF(dst, p.left)
	if err != nil {
		return dst, fmt.Errorf("failed to encode left element: %w", err)
	}
	return wire.AppendFloat(dst, p.right), nil
}

// MarshalBinary returns the wire encoding of the pair.
func (p StringFloat) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, p.EncodedSize()))
}

// UnmarshalBinary decodes exactly one pair from `data`; trailing bytes are rejected.
func (p *StringFloat) UnmarshalBinary(data []byte) error {
	left, err := wire.ReadUTF(data, 0 /*offset*/)
	if err != nil {
		return fmt.Errorf("failed to decode left element: %w", err)
	}
	rightOffset := wire.UTFSize(left)
	right, err := wire.ReadFloat(data, rightOffset)
	if err != nil {
		return fmt.Errorf("failed to decode right element: %w", err)
	}
	if trailing := len(data) - rightOffset - wire.FloatSize; trailing > 0 {
		return fmt.Errorf("%w: %d trailing bytes after pair", wire.ErrDecode, trailing)
	}
	p.Set(left, right)
	return nil
}

// compareFloats orders floats with `<` and `==`. Two NaNs are equal so that every pair equals itself,
// but a NaN is greater than any number and any number is greater than a NaN.
func compareFloats(x, y float32) int {
	switch {
	case x < y:
		return -1
	case x == y, isNaN(x) && isNaN(y):
		return 0
	default:
		return 1
	}
}

// Compare returns a negative value, zero or a positive value if `p` sorts before, together with or after `other`.
// Left elements are compared as strings; on a tie the right elements are compared numerically.
//
// NaN right elements aren't totally ordered: NaN compares equal to NaN and greater than any number from either
// side, so Compare is neither antisymmetric nor transitive once NaNs are involved.
func (p StringFloat) Compare(other StringFloat) int {
	if p.left == other.left {
		return compareFloats(p.right, other.right)
	}
	return strings.Compare(p.left, other.left)
}

// Compare is the free function form of StringFloat.Compare; handy with slices.SortFunc.
func Compare(a, b StringFloat) int {
	return a.Compare(b)
}

// sortFloats is compareFloats turned into a total order: NaN sorts after every number.
func sortFloats(x, y float32) int {
	if xNaN, yNaN := isNaN(x), isNaN(y); xNaN || yNaN {
		switch {
		case xNaN == yNaN:
			return 0
		case xNaN:
			return 1
		default:
			return -1
		}
	}
	return compareFloats(x, y)
}

// SortOrder is a total order agreeing with Compare wherever Compare is consistent. It differs only for a NaN right
// element against a number, which SortOrder puts after the number. Sort routines that need a strict weak ordering
// should use it instead of Compare.
func SortOrder(a, b StringFloat) int {
	if a.left == b.left {
		return sortFloats(a.right, b.right)
	}
	return strings.Compare(a.left, b.left)
}

// Equal reports whether both elements are equal. Right elements are compared with `==`,
// so -0 equals 0 and a pair holding NaN isn't equal to itself.
func (p StringFloat) Equal(other StringFloat) bool {
	return p.left == other.left && p.right == other.right
}

// Hash returns a 32-bit hash consistent with Equal. It is the 31-polynomial string hash of the left element over
// its UTF-16 code units, plus the right element truncated toward zero and saturated to the int32 range.
func (p StringFloat) Hash() int32 {
	var leftHash int32
	for _, r := range p.left {
		if utf16.RuneLen(r) == 2 { // Runes outside the BMP hash as a surrogate pair.
			r1, r2 := utf16.EncodeRune(r)
			leftHash = 31*leftHash + r1
			leftHash = 31*leftHash + r2
		} else {
			leftHash = 31*leftHash + r
		}
	}
	return leftHash + truncateFloat(p.right)
}

func isNaN(f float32) bool { return math.IsNaN(float64(f)) }

// truncateFloat narrows `f` to an int32: NaN becomes 0 and out of range values saturate.
func truncateFloat(f float32) int32 {
	switch {
	case isNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(f)
	}
}

// Clone returns an independent copy of the pair.
func (p StringFloat) Clone() StringFloat {
	return StringFloat{left: strings.Clone(p.left), right: p.right}
}

// String renders the pair as "(left, right)" for diagnostics; the format isn't stable.
func (p StringFloat) String() string {
	right := strconv.FormatFloat(float64(p.right), 'g', -1, 32)
	if !strings.ContainsAny(right, ".eEnN") { // Integral values keep a trailing ".0", e.g. "3.0".
		right += ".0"
	}
	return "(" + p.left + ", " + right + ")"
}
