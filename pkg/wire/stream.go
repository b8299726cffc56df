package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// encodeError wraps a sink failure so callers can match both ErrEncode and the original cause.
func encodeError(what string, cause error) error {
	return fmt.Errorf("%w: failed to write %s: %w", ErrEncode, what, cause)
}

// decodeError wraps a source failure; a short read is reported as ErrDecode with the cause kept.
func decodeError(what string, cause error) error {
	if errors.Is(cause, io.EOF) {
		cause = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: failed to read %s: %w", ErrDecode, what, cause)
}

// WriteUTF writes `s` as length-prefixed text to `w`.
func WriteUTF(w io.Writer, s string) error {
	encoded, err := AppendUTF(make([]byte, 0, UTFSize(s)), s)
	if err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return encodeError("text", err)
	}
	return nil
}

// WriteFloat writes `f` as a big-endian float32 to `w`.
func WriteFloat(w io.Writer, f float32) error {
	var encoded [FloatSize]byte
	binary.BigEndian.PutUint32(encoded[:], math.Float32bits(f))
	if _, err := w.Write(encoded[:]); err != nil {
		return encodeError("float", err)
	}
	return nil
}

// ReadUTFFrom reads a length-prefixed text from `r`.
// It returns io.EOF as is when `r` has no bytes left before the length prefix.
func ReadUTFFrom(r io.Reader) (string, error) {
	var prefix [ShortSize]byte
	if readBytes, err := io.ReadFull(r, prefix[:]); err != nil {
		if readBytes == 0 && errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", decodeError("text length", err)
	}
	text := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	if _, err := io.ReadFull(r, text); err != nil {
		return "", decodeError("text content", err)
	}
	if !utf8.Valid(text) {
		return "", fmt.Errorf("%w: invalid utf-8 text", ErrDecode)
	}
	return string(text), nil
}

// ReadFloatFrom reads a big-endian float32 from `r`.
func ReadFloatFrom(r io.Reader) (float32, error) {
	var encoded [FloatSize]byte
	if _, err := io.ReadFull(r, encoded[:]); err != nil {
		return 0, decodeError("float", err)
	}
	return math.Float32frombits(binary.BigEndian.Uint32(encoded[:])), nil
}

// ReadRecord reads one encoded record (length-prefixed text followed by a float) from `r` into `buf`, growing it
// when needed, and returns the record bytes. The returned slice aliases `buf`.
// Returns io.EOF as is if `r` ends exactly at a record boundary.
func ReadRecord(r io.Reader, buf []byte) ([]byte, error) {
	buf = buf[:0]
	var prefix [ShortSize]byte
	if readBytes, err := io.ReadFull(r, prefix[:]); err != nil {
		if readBytes == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, decodeError("record length", err)
	}
	recordSize := ShortSize + int(binary.BigEndian.Uint16(prefix[:])) + FloatSize
	if cap(buf) < recordSize {
		buf = make([]byte, 0, recordSize)
	}
	buf = append(buf, prefix[:]...)
	buf = buf[:recordSize]
	if _, err := io.ReadFull(r, buf[ShortSize:]); err != nil {
		return nil, decodeError("record body", err)
	}
	return buf, nil
}
