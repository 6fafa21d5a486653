package enums

import (
	"fmt"
	"slices"
)

// oneOf is the closed value set behind a string enum.
type oneOf[T ~string] []T

func (s oneOf[T]) has(v T) bool { return slices.Contains(s, v) }

func (s oneOf[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
