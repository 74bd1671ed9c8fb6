// Package enums holds the string enums stored in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
)

func isOneOf[T ~string](valid []T, v T) bool {
	return slices.Contains(valid, v)
}

func parseOneOf[T ~string](valid []T, value, kind string) (T, error) {
	if i := slices.Index(valid, T(value)); i >= 0 {
		return valid[i], nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
