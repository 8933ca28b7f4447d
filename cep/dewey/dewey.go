// Package dewey implements the version-vector scheme the shared buffer
// uses to disambiguate sibling branches of a computation that fork from
// the same predecessor entry.
package dewey

import (
	"fmt"
	"strconv"
	"strings"
)

// Number is an immutable Dewey-style version vector, e.g. "1.2.1". The
// zero value has no digits; New returns the root version "1".
type Number struct {
	digits []int
}

// New returns the root version, digits [1].
func New() Number {
	return Number{digits: []int{1}}
}

// Parse reconstructs a Number from its dotted string form, for tests and
// diagnostics.
func Parse(s string) (Number, error) {
	parts := strings.Split(s, ".")
	digits := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Number{}, fmt.Errorf("dewey: invalid version %q: %w", s, err)
		}
		digits[i] = n
	}
	return Number{digits: digits}, nil
}

// Increase returns a new version with its final digit incremented by one,
// modelling a plain in-place progression along the same branch.
func (n Number) Increase() Number {
	out := make([]int, len(n.digits))
	copy(out, n.digits)
	if len(out) == 0 {
		out = []int{1}
	} else {
		out[len(out)-1]++
	}
	return Number{digits: out}
}

// AddStage returns a new version with a trailing 0 digit appended,
// opening a fresh branch level below the current one. Callers almost
// always chain Increase() immediately after AddStage() to mint the first
// sibling at that level.
func (n Number) AddStage() Number {
	out := make([]int, len(n.digits)+1)
	copy(out, n.digits)
	out[len(out)-1] = 0
	return Number{digits: out}
}

// Length reports the number of digits in the version.
func (n Number) Length() int {
	return len(n.digits)
}

// IsCompatibleWith reports whether n could have been produced by
// following edges that pass through other, i.e. whether other is a
// version a predecessor of n's lineage could legitimately carry. This
// mirrors Flink's DeweyNumber compatibility check: the shorter vector's
// digits must prefix-match the longer one, with the final shared digit
// allowed to differ only when the shorter vector is the prefix (an
// earlier checkpoint along the same branch).
func (n Number) IsCompatibleWith(other Number) bool {
	if n.Length() < other.Length() {
		return other.IsCompatibleWith(n)
	}
	for i := 0; i < other.Length()-1; i++ {
		if n.digits[i] != other.digits[i] {
			return false
		}
	}
	return n.digits[other.Length()-1] >= other.digits[other.Length()-1]
}

// String renders the version in dotted form, e.g. "1.2.1".
func (n Number) String() string {
	if len(n.digits) == 0 {
		return "1"
	}
	parts := make([]string, len(n.digits))
	for i, d := range n.digits {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ".")
}
