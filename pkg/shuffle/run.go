// When the sort buffer outgrows its memory budget, its records are spilled to disk as a sorted run. A run file is
// the plain concatenation of encoded records in sorted order; records delimit themselves through their length
// prefix, so no header or index is needed. Each run keeps a bloom filter of its left elements in memory to answer
// membership checks without touching the disk.

package shuffle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/nobletooth/pairs/pkg/wire"
)

const defaultBufferSize = 64 << 10 // 64 KiB.

var bufferPool = sync.Pool{New: func() any { return bytes.NewBuffer(make([]byte, 0, defaultBufferSize)) }}

// runWriter buffers records in a pooled buffer and flushes them to the underlying writer once the buffer is full.
type runWriter struct { // Implements io.WriteCloser.
	writer       io.WriteCloser
	buffer       *bytes.Buffer
	writtenBytes int64
}

var _ io.WriteCloser = (*runWriter)(nil)

// newRunWriter is the constructor for runWriter.
func newRunWriter(writer io.WriteCloser) *runWriter {
	return &runWriter{writer: writer, buffer: bufferPool.Get().(*bytes.Buffer)}
}

func (rw *runWriter) Write(p []byte) (flushed int, err error) {
	if rw.buffer == nil {
		return 0, errors.New("run writer already closed")
	}

	toFlush := len(p)
	for toFlush > 0 {
		if availableBytes := rw.buffer.Available(); availableBytes < toFlush {
			rw.buffer.Write(p[flushed : flushed+availableBytes])
			flushed += availableBytes
			toFlush -= availableBytes
			// Flush the entire buffer.
			if _, err := rw.writer.Write(rw.buffer.Bytes()); err != nil {
				return flushed, err
			}
			rw.buffer.Reset()
		} else {
			rw.buffer.Write(p[flushed:]) // Write all remaining bytes.
			flushed += toFlush
			toFlush = 0
		}
	}
	rw.writtenBytes += int64(flushed)

	return flushed, nil
}

func (rw *runWriter) Close() error {
	if rw.buffer == nil {
		return nil
	}
	defer func() { // Give back the buffer to the pool.
		rw.buffer.Reset()
		bufferPool.Put(rw.buffer)
		rw.buffer = nil
	}()

	// Flush any remaining bytes in the buffer.
	var flushErr error
	if remaining := rw.buffer.Bytes(); len(remaining) > 0 {
		if _, err := rw.writer.Write(remaining); err != nil {
			flushErr = fmt.Errorf("failed to flush run writer: %w", err)
		}
	}
	// Close the underlying writer even if the flush failed, so no file descriptor leaks.
	if err := rw.writer.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("failed to close run writer: %w", err))
	}

	return flushErr
}

// Run is a sorted file of encoded records spilled from a SortBuffer.
type Run struct {
	path      string
	records   int
	sizeBytes int64
	filter    *bloom.BloomFilter // Holds the left element of every record.
}

// writeRun writes the sorted `records` into a new run file at `path`.
// The `expectedRecords` count and `falsePositiveRate` size the run's bloom filter.
func writeRun(path string, records iter.Seq[[]byte], expectedRecords int, falsePositiveRate float64) (*Run, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run file: %w", err)
	}
	writer := newRunWriter(file)
	run := &Run{path: path, filter: bloom.NewWithEstimates(uint(max(expectedRecords, 1)), falsePositiveRate)}
	for record := range records {
		left, err := leftOf(record)
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("failed to spill record #%d: %w", run.records, err)
		}
		if _, err := writer.Write(record); err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("%w: failed to write run %s: %w", wire.ErrEncode, path, err)
		}
		run.filter.Add(left)
		run.records++
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", wire.ErrEncode, err)
	}
	run.sizeBytes = writer.writtenBytes
	return run, nil
}

// Path returns the run file path.
func (r *Run) Path() string { return r.path }

// Len returns the number of records in the run.
func (r *Run) Len() int { return r.records }

// MayContain returns false if no record of the run has `left` as its left element. It may return false positives.
func (r *Run) MayContain(left string) bool {
	return r.filter.TestString(left)
}

// Records streams the records of the run in sorted order. Each yielded record is a fresh slice owned by the caller.
// Iteration stops at the first failure, which is passed to `onError`.
func (r *Run) Records(onError func(error)) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		file, err := os.Open(r.path)
		if err != nil {
			onError(fmt.Errorf("failed to open run %s: %w", r.path, err))
			return
		}
		defer func() { _ = file.Close() }()

		reader := bufio.NewReaderSize(file, defaultBufferSize)
		for readRecords := 0; ; readRecords++ {
			record, err := wire.ReadRecord(reader, nil /*buf*/)
			if errors.Is(err, io.EOF) {
				if readRecords != r.records {
					onError(fmt.Errorf("%w: run %s ended after %d of %d records",
						wire.ErrDecode, r.path, readRecords, r.records))
				}
				return
			}
			if err != nil {
				onError(fmt.Errorf("failed to read record #%d of run %s: %w", readRecords, r.path, err))
				return
			}
			if !yield(record) {
				return
			}
		}
	}
}
