package shuffle

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/nobletooth/pairs/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closingBuffer is an in-memory io.WriteCloser.
type closingBuffer struct {
	bytes.Buffer
	closed   bool
	writeErr error
}

func (cb *closingBuffer) Write(p []byte) (int, error) {
	if cb.writeErr != nil {
		return 0, cb.writeErr
	}
	return cb.Buffer.Write(p)
}

func (cb *closingBuffer) Close() error {
	cb.closed = true
	return nil
}

// encodeAll encodes the given pairs in order.
func encodeAll(t *testing.T, pairs ...pair.StringFloat) [][]byte {
	t.Helper()
	records := make([][]byte, 0, len(pairs))
	for _, p := range pairs {
		record, err := p.MarshalBinary()
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestRunWriter(t *testing.T) {
	t.Run("writes across buffer boundaries", func(t *testing.T) {
		sink := &closingBuffer{}
		writer := newRunWriter(sink)
		expected := make([]byte, 0, 3*defaultBufferSize)
		chunk := bytes.Repeat([]byte("0123456789"), 1000)
		for len(expected) < 3*defaultBufferSize {
			n, err := writer.Write(chunk)
			require.NoError(t, err)
			require.Equal(t, len(chunk), n)
			expected = append(expected, chunk...)
		}
		assert.Less(t, sink.Len(), len(expected), "Expected the tail to stay buffered until Close")
		require.NoError(t, writer.Close())
		assert.True(t, sink.closed)
		assert.Equal(t, expected, sink.Bytes())
		assert.Equal(t, int64(len(expected)), writer.writtenBytes)

		_, err := writer.Write([]byte("late"))
		assert.Error(t, err, "Expected writes after Close to fail")
		assert.NoError(t, writer.Close(), "Expected Close to be idempotent")
	})
	t.Run("flush failure", func(t *testing.T) {
		sinkErr := errors.New("disk full")
		sink := &closingBuffer{writeErr: sinkErr}
		writer := newRunWriter(sink)
		_, err := writer.Write([]byte("small"))
		require.NoError(t, err, "Expected a small write to be buffered")
		assert.ErrorIs(t, writer.Close(), sinkErr)
		assert.True(t, sink.closed, "Expected the sink to be closed even if the flush failed")
	})
}

func TestWriteRun(t *testing.T) {
	records := encodeAll(t,
		pair.NewStringFloat("apple", 1.5),
		pair.NewStringFloat("apple", 2.5),
		pair.NewStringFloat("banana", 0),
		pair.NewStringFloat("", -1),
	)
	slices.SortStableFunc(records, pair.Comparator{}.Compare)
	path := filepath.Join(t.TempDir(), "0.run")
	run, err := writeRun(path, slices.Values(records), len(records), 0.01)
	require.NoError(t, err)
	assert.Equal(t, path, run.Path())
	assert.Equal(t, len(records), run.Len())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, run.sizeBytes, info.Size())

	var readErr error
	got := slices.Collect(run.Records(func(err error) { readErr = err }))
	require.NoError(t, readErr)
	assert.Equal(t, records, got)

	for _, left := range []string{"apple", "banana", ""} {
		assert.Truef(t, run.MayContain(left), "Expected the run to contain %q", left)
	}

	t.Run("existing file", func(t *testing.T) {
		_, err := writeRun(path, slices.Values(records), len(records), 0.01)
		assert.Error(t, err, "Expected runs to never overwrite a file")
	})
	t.Run("malformed record", func(t *testing.T) {
		malformed := [][]byte{records[0], {0, 5, 'a'}}
		_, err := writeRun(filepath.Join(t.TempDir(), "bad.run"), slices.Values(malformed), 2, 0.01)
		assert.ErrorIs(t, err, wire.ErrDecode)
	})
	t.Run("truncated file", func(t *testing.T) {
		require.NoError(t, os.Truncate(path, info.Size()-1))
		var readErr error
		got := slices.Collect(run.Records(func(err error) { readErr = err }))
		assert.ErrorIs(t, readErr, wire.ErrDecode)
		assert.Equal(t, records[:len(records)-1], got)
	})
	t.Run("missing file", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		var readErr error
		got := slices.Collect(run.Records(func(err error) { readErr = err }))
		assert.ErrorIs(t, readErr, os.ErrNotExist)
		assert.Empty(t, got)
	})
}
