// Pairs travel between sort stages as raw bytes. This module reads and writes the primitive fields of a record
// directly at an offset inside a caller-owned buffer, so comparators never need to decode a whole record.
// All fields are big-endian with no padding:
// 1) Unsigned short: 2 bytes.
// 2) Float         : 4 bytes of IEEE-754 binary32.
// 3) UTF           : an unsigned short length N followed by N bytes of valid UTF-8.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	ShortSize = 2
	FloatSize = 4
	// MaxUTFLength is the largest UTF-8 encoding that fits the 2-byte length prefix.
	MaxUTFLength = math.MaxUint16
)

var (
	// ErrDecode is returned for truncated, out-of-range or otherwise malformed input.
	ErrDecode = errors.New("decode error")
	// ErrEncode is returned when a value can't be encoded or the underlying sink rejects a write.
	ErrEncode = errors.New("encode error")
)

// checkRange makes sure `size` bytes are readable at `offset` of `buf`.
func checkRange(buf []byte, offset, size int) error {
	if offset < 0 || size < 0 || offset > len(buf) || len(buf)-offset < size {
		return fmt.Errorf("%w: reading %d bytes at offset %d of a %d byte buffer", ErrDecode, size, offset, len(buf))
	}
	return nil
}

// ReadUnsignedShort reads a big-endian uint16 at `offset`.
func ReadUnsignedShort(buf []byte, offset int) (uint16, error) {
	if err := checkRange(buf, offset, ShortSize); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[offset:]), nil
}

// ReadFloat reads a big-endian IEEE-754 float32 at `offset`.
func ReadFloat(buf []byte, offset int) (float32, error) {
	if err := checkRange(buf, offset, FloatSize); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf[offset:])), nil
}

// ReadUTFBytes returns the UTF-8 bytes of the length-prefixed text at `offset` without copying them.
// The returned slice aliases `buf` and must not be modified.
func ReadUTFBytes(buf []byte, offset int) ([]byte, error) {
	length, err := ReadUnsignedShort(buf, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read text length: %w", err)
	}
	start := offset + ShortSize
	if err := checkRange(buf, start, int(length)); err != nil {
		return nil, fmt.Errorf("failed to read text content: %w", err)
	}
	text := buf[start : start+int(length) : start+int(length)]
	if !utf8.Valid(text) {
		return nil, fmt.Errorf("%w: invalid utf-8 text at offset %d", ErrDecode, start)
	}
	return text, nil
}

// ReadUTF reads the length-prefixed text at `offset`.
func ReadUTF(buf []byte, offset int) (string, error) {
	text, err := ReadUTFBytes(buf, offset)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// UTFSize returns the number of bytes `s` occupies once encoded as length-prefixed text.
func UTFSize(s string) int {
	return ShortSize + len(s)
}

// AppendUTF appends `s` as length-prefixed text to `dst`.
func AppendUTF(dst []byte, s string) ([]byte, error) {
	if len(s) > MaxUTFLength {
		return dst, fmt.Errorf("%w: text of %d bytes exceeds %d bytes", ErrEncode, len(s), MaxUTFLength)
	}
	if !utf8.ValidString(s) {
		return dst, fmt.Errorf("%w: text is not valid utf-8", ErrEncode)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

// AppendFloat appends `f` as a big-endian IEEE-754 float32 to `dst`.
func AppendFloat(dst []byte, f float32) []byte {
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(f))
}
