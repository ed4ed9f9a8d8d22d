package gamerow

import (
	"maps"
	"slices"
	"strings"

	"github.com/iota-uz/gamesync/pkg/normalize"
)

// Row is one spreadsheet record: column header -> raw cell value.
type Row map[string]any

func canonicalColumn(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Get looks a column up ignoring case and surrounding or repeated whitespace.
// An exact header wins; otherwise the first matching header in sorted order.
func (r Row) Get(column string) (any, bool) {
	if v, ok := r[column]; ok {
		return v, true
	}
	want := canonicalColumn(column)
	for _, name := range slices.Sorted(maps.Keys(r)) {
		if canonicalColumn(name) == want {
			return r[name], true
		}
	}
	return nil, false
}

// String returns the trimmed string form of a cell, or "" when the cell is
// absent or not a scalar.
func (r Row) String(column string) string {
	v, ok := r.Get(column)
	if !ok {
		return ""
	}
	s, ok := normalize.String(v)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Has reports whether the column is present with a non-blank value.
func (r Row) Has(column string) bool {
	return r.String(column) != ""
}
