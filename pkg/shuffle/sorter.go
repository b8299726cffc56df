// The sorter is the map-side half of a shuffle: it collects encoded pairs into an in-memory sort buffer, spills the
// buffer to a sorted run on disk whenever it outgrows its memory budget, and finally merges the buffer and every run
// into one sorted stream. Records are only ever compared through a raw comparator; nothing is decoded.

package shuffle

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/nobletooth/pairs/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sortBufferBytes = flag.Int("sort_buffer_bytes", 64<<20, /*64 MiB*/
		"Size of the in-memory sort buffer; once exceeded, the buffer is spilled to disk as a sorted run.")
	spillDir = flag.String("spill_dir", os.TempDir(),
		"Directory under which sorters create their run files.")
	bloomFalsePositiveRate = flag.Float64("bloom_false_positive_rate", 0.01,
		"Target false positive rate of the per-run bloom filters of left elements.")
)

var (
	recordsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuffle_records_added_total",
		Help: "Total number of records added to sorters.",
	})
	runsSpilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuffle_runs_spilled_total",
		Help: "Total number of sorted runs spilled to disk.",
	})
	spilledBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuffle_spilled_bytes_total",
		Help: "Total number of bytes written to sorted runs.",
	})
	malformedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shuffle_malformed_records_total",
		Help: "Total number of records rejected by sorters for being malformed.",
	})
)

// SorterOptions configures a Sorter.
type SorterOptions struct {
	Comparator        registry.RawComparator
	MemoryBudgetBytes int     // The buffer is spilled once it holds at least this many bytes.
	SpillDir          string  // Parent of the sorter's own run directory.
	FalsePositiveRate float64 // Of the per-run bloom filters; in (0, 1).
}

// DefaultSorterOptions returns the options set by flags, for the given comparator.
func DefaultSorterOptions(comparator registry.RawComparator) SorterOptions {
	return SorterOptions{
		Comparator:        comparator,
		MemoryBudgetBytes: *sortBufferBytes,
		SpillDir:          *spillDir,
		FalsePositiveRate: *bloomFalsePositiveRate,
	}
}

// Sorter sorts encoded records within a memory budget. It's safe for concurrent use.
type Sorter struct {
	opts    SorterOptions
	dir     string     // Holds the run files; removed on Close.
	mux     sync.Mutex // Protects the fields below.
	buffer  *SortBuffer
	runs    []*Run
	records int
	closed  bool
}

// NewSorter is the constructor for Sorter. It creates a fresh run directory under `opts.SpillDir`.
func NewSorter(opts SorterOptions) (*Sorter, error) {
	if opts.Comparator == nil {
		return nil, errors.New("expected a non-nil comparator")
	}
	if opts.MemoryBudgetBytes <= 0 {
		return nil, fmt.Errorf("expected a positive memory budget, got %d", opts.MemoryBudgetBytes)
	}
	if opts.FalsePositiveRate <= 0 || opts.FalsePositiveRate >= 1 {
		return nil, fmt.Errorf("expected a false positive rate in (0, 1), got %v", opts.FalsePositiveRate)
	}
	if err := os.MkdirAll(opts.SpillDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spill directory %s: %w", opts.SpillDir, err)
	}
	dir, err := os.MkdirTemp(opts.SpillDir, "sorter-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Sorter{opts: opts, dir: dir, buffer: NewSortBuffer(opts.Comparator)}, nil
}

// Add validates and adds one encoded pair. The record is copied, so the caller may reuse it.
func (s *Sorter) Add(record []byte) error {
	if _, err := leftOf(record); err != nil {
		malformedRecords.Inc()
		return fmt.Errorf("rejected malformed record: %w", err)
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return errors.New("sorter is closed")
	}
	s.buffer.Add(slices.Clone(record))
	s.records++
	recordsAdded.Inc()
	if s.buffer.SizeBytes() >= s.opts.MemoryBudgetBytes {
		return s.spill()
	}
	return nil
}

// AddPair encodes and adds a decoded pair.
func (s *Sorter) AddPair(p pair.StringFloat) error {
	record, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p, err)
	}
	return s.Add(record)
}

// spill writes the buffer into a new run and resets it. Must be called with the lock held.
func (s *Sorter) spill() error {
	path := filepath.Join(s.dir, fmt.Sprintf("%06d.run", len(s.runs)))
	run, err := writeRun(path, s.buffer.All(), s.buffer.Len(), s.opts.FalsePositiveRate)
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to spill sort buffer: %w", err)
	}
	slog.Debug("Spilled sort buffer.", "run", path, "records", run.Len(), "bytes", run.sizeBytes)
	s.runs = append(s.runs, run)
	s.buffer.Reset()
	runsSpilled.Inc()
	spilledBytes.Add(float64(run.sizeBytes))
	return nil
}

// Sorted streams every record added so far in sorted order. Equal records keep the order they were added in.
// It works on a snapshot, so records added during iteration aren't yielded. Iteration ends with a non-nil error if
// `ctx` is cancelled or a run can't be read.
func (s *Sorter) Sorted(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		s.mux.Lock()
		if s.closed {
			s.mux.Unlock()
			yield(nil, errors.New("sorter is closed"))
			return
		}
		buffered := s.buffer.Clone()
		runs := slices.Clone(s.runs)
		s.mux.Unlock()

		var readErr error
		onError := func(err error) {
			if readErr == nil {
				readErr = err
			}
		}
		// Runs were spilled before anything still buffered, so they come first to keep the merge stable.
		sequences := make([]iter.Seq[[]byte], 0, len(runs)+1)
		for _, run := range runs {
			sequences = append(sequences, run.Records(onError))
		}
		sequences = append(sequences, buffered.All())
		merged, err := Merge(registry.SortOrder(s.opts.Comparator), sequences)
		if err != nil {
			yield(nil, err)
			return
		}

		for record := range merged {
			if readErr != nil {
				yield(nil, readErr)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(record, nil) {
				return
			}
		}
		if readErr != nil {
			yield(nil, readErr)
		}
	}
}

// MayContain returns false if no added record has `left` as its left element. It may return false positives for
// records that were spilled to disk.
func (s *Sorter) MayContain(left string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.buffer.containsLeft(left) {
		return true
	}
	return slices.ContainsFunc(s.runs, func(run *Run) bool { return run.MayContain(left) })
}

// Len returns the number of records added so far.
func (s *Sorter) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.records
}

// Runs returns the number of runs spilled so far.
func (s *Sorter) Runs() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.runs)
}

// Close drops buffered records and deletes every run file. It's safe to call more than once.
func (s *Sorter) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.buffer.Reset()
	s.runs = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove run directory %s: %w", s.dir, err)
	}
	return nil
}
