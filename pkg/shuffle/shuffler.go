package shuffle

import (
	"errors"
	"fmt"

	"github.com/nobletooth/pairs/pkg/pair"
)

// Shuffler routes records to one sorter per partition.
type Shuffler struct {
	partitioner Partitioner
	sorters     []*Sorter
}

// NewShuffler creates `partitions` sorters, each with its own run directory.
func NewShuffler(partitions int, partitioner Partitioner, opts SorterOptions) (*Shuffler, error) {
	if partitions <= 0 {
		return nil, fmt.Errorf("expected a positive partition count, got %d", partitions)
	}
	if partitioner == nil {
		return nil, errors.New("expected a non-nil partitioner")
	}
	shuffler := &Shuffler{partitioner: partitioner, sorters: make([]*Sorter, 0, partitions)}
	for range partitions {
		sorter, err := NewSorter(opts)
		if err != nil {
			return nil, errors.Join(err, shuffler.Close())
		}
		shuffler.sorters = append(shuffler.sorters, sorter)
	}
	return shuffler, nil
}

// Add routes one encoded pair to its partition's sorter.
func (s *Shuffler) Add(record []byte) error {
	partition, err := s.partitioner.Partition(record, len(s.sorters))
	if err != nil {
		malformedRecords.Inc()
		return err
	}
	return s.sorters[partition].Add(record)
}

// AddPair encodes and routes a decoded pair.
func (s *Shuffler) AddPair(p pair.StringFloat) error {
	record, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p, err)
	}
	return s.Add(record)
}

// Partitions returns the number of partitions.
func (s *Shuffler) Partitions() int { return len(s.sorters) }

// Partition returns the sorter of the given partition.
func (s *Shuffler) Partition(partition int) *Sorter { return s.sorters[partition] }

// Close closes every partition's sorter.
func (s *Shuffler) Close() error {
	var errs []error
	for _, sorter := range s.sorters {
		errs = append(errs, sorter.Close())
	}
	return errors.Join(errs...)
}
