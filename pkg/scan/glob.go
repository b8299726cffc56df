// Pairs streamed out of a sorter can be narrowed down to the left elements matching a glob pattern;
// the following module implements that filtering.

package scan

import (
	"iter"

	"github.com/nobletooth/pairs/pkg/pair"
	"v.io/v23/glob"
)

// MatchGlob keeps the pairs of the `pairs` stream whose left element matches the given `glob` pattern.
// An invalid pattern matches nothing.
func MatchGlob(pattern string, pairs iter.Seq[pair.StringFloat]) iter.Seq[pair.StringFloat] {
	// Parse the glob pattern.
	parsedPattern, err := glob.Parse(pattern)
	if err != nil { // If pattern is invalid, return empty sequence.
		return func(yield func(pair.StringFloat) bool) {}
	}
	matcher := parsedPattern.Head()
	return func(yield func(pair.StringFloat) bool) {
		for p := range pairs {
			if matcher.Match(p.Left()) {
				if !yield(p) {
					return
				}
			}
		}
	}
}

// ValidGlob returns an error if `pattern` can't be parsed as a glob.
func ValidGlob(pattern string) error {
	_, err := glob.Parse(pattern)
	return err
}
