// Sort engines order serialized records with a raw comparator picked per record type. Instead of a process wide
// table, the engine owns a Registry and every record type is defined on it once, during the engine's startup.

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

var ErrAlreadyDefined = errors.New("a different comparator is already defined")

// RawComparator orders encoded records without decoding them.
type RawComparator interface {
	// CompareRange compares records `b1[s1:s1+l1]` and `b2[s2:s2+l2]`. It returns a negative value, zero or a
	// positive value when the first record sorts before, together with or after the second one.
	CompareRange(b1 []byte, s1, l1 int, b2 []byte, s2, l2 int) int
	// Compare compares two whole records.
	Compare(a, b []byte) int
}

// TotalOrderer is implemented by raw comparators whose Compare isn't a strict weak ordering for every input.
// SortOrder must be a total order that agrees with Compare wherever Compare is consistent.
type TotalOrderer interface {
	SortOrder(a, b []byte) int
}

// SortOrder returns the order sort routines should use for `comparator`: its SortOrder when it has one,
// otherwise its Compare.
func SortOrder(comparator RawComparator) func(a, b []byte) int {
	if orderer, ok := comparator.(TotalOrderer); ok {
		return orderer.SortOrder
	}
	return comparator.Compare
}

// Registry maps record types to their raw comparators. It is safe for concurrent use.
type Registry struct {
	mux         sync.RWMutex
	comparators map[reflect.Type]RawComparator
}

// New is the constructor for Registry.
func New() *Registry {
	return &Registry{mux: sync.RWMutex{}, comparators: make(map[reflect.Type]RawComparator)}
}

// sameComparator returns true if both comparators are equal values of the same type.
func sameComparator(c1, c2 RawComparator) bool {
	t1, t2 := reflect.TypeOf(c1), reflect.TypeOf(c2)
	return t1 == t2 && t1.Comparable() && c1 == c2
}

// Define registers `comparator` for record type T. Defining the same comparator again is a no-op, while defining
// a different one for T fails with ErrAlreadyDefined.
func Define[T any](r *Registry, comparator RawComparator) error {
	if comparator == nil {
		return errors.New("expected a non-nil comparator")
	}
	recordType := reflect.TypeFor[T]()

	r.mux.Lock()
	defer r.mux.Unlock()

	if defined, exists := r.comparators[recordType]; exists {
		if sameComparator(defined, comparator) {
			return nil
		}
		return fmt.Errorf("%w for %s: %T", ErrAlreadyDefined, recordType, defined)
	}
	r.comparators[recordType] = comparator
	slog.Debug("Defined raw comparator.", "type", recordType.String(), "comparator", fmt.Sprintf("%T", comparator))
	return nil
}

// Lookup returns the comparator defined for record type T.
func Lookup[T any](r *Registry) (RawComparator, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	comparator, found := r.comparators[reflect.TypeFor[T]()]
	return comparator, found
}
