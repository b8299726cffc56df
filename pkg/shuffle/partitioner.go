// A shuffle routes every record to one of several partitions, each sorted and reduced independently. All records
// sharing a left element must meet in the same partition, so the partition is chosen by hashing the left element
// only; the right element never takes part.

package shuffle

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/pairs/pkg/wire"
)

// leftOf returns the left element of a whole encoded pair, checking the record has exactly one pair in it.
func leftOf(record []byte) ([]byte, error) {
	left, err := wire.ReadUTFBytes(record, 0 /*offset*/)
	if err != nil {
		return nil, err
	}
	if expectedSize := wire.ShortSize + len(left) + wire.FloatSize; len(record) != expectedSize {
		return nil, fmt.Errorf("%w: got a %d byte record, expected %d bytes", wire.ErrDecode, len(record), expectedSize)
	}
	return left, nil
}

// Partitioner picks the partition of an encoded record.
type Partitioner interface {
	// Partition returns a partition in [0, partitions) for the given encoded record.
	Partition(record []byte, partitions int) (int, error)
}

// HashPartitioner spreads records across partitions by the xxhash of their left element.
type HashPartitioner struct{} // Implements Partitioner.

var _ Partitioner = HashPartitioner{}

func (HashPartitioner) Partition(record []byte, partitions int) (int, error) {
	if partitions <= 0 {
		return 0, fmt.Errorf("expected a positive partition count, got %d", partitions)
	}
	left, err := leftOf(record)
	if err != nil {
		return 0, fmt.Errorf("failed to partition record: %w", err)
	}
	return int(xxhash.Sum64(left) % uint64(partitions)), nil
}
