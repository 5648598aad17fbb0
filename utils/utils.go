package utils

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/text/unicode/norm"
	"strings"
)

// Set is a map used for membership only. len works on it.
type Set[T comparable] map[T]struct{}

func (s Set[T]) Add(element T) {
	s[element] = struct{}{}
}

// Remove is a no-op when element is absent.
func (s Set[T]) Remove(element T) {
	delete(s, element)
}

func (s Set[T]) Has(element T) bool {
	_, ok := s[element]
	return ok
}

func SliceMap[T any, U any](s []T, f func(T) U) []U {
	output := make([]U, 0, len(s))
	for _, e := range s {
		output = append(output, f(e))
	}
	return output
}

// NormalizeString returns the NFKC form of s, trimmed.
// Used on identifiers, never on signed content.
func NormalizeString(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Ternary[T any](condition bool, valTrue T, valFalse T) T {
	if condition {
		return valTrue
	}
	return valFalse
}
