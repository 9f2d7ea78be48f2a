package core

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fold lower-cases s for case-insensitive comparison. Search text and query
// text go through the same function so they always agree.
func Fold(s string) string {
	// Casers carry state, so each call gets its own.
	return cases.Lower(language.Und).String(s)
}

// BuildSearchText joins the plain string values of fd with single spaces, in
// field order, and folds the result. Numbers, booleans, nested objects,
// arrays and nulls are skipped.
func BuildSearchText(fd FieldData) string {
	parts := make([]string, 0, fd.Len())
	fd.Range(func(_ string, v any) bool {
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
		return true
	})
	return Fold(strings.Join(parts, " "))
}

// Matches reports whether searchText contains the folded query as a
// contiguous substring.
func Matches(searchText, query string) bool {
	return strings.Contains(searchText, Fold(query))
}

// FilterItems returns the items matching query, keeping their order.
func FilterItems(items []Item, query string) []Item {
	q := Fold(query)
	out := make([]Item, 0)
	for _, item := range items {
		if strings.Contains(item.SearchText, q) {
			out = append(out, item)
		}
	}
	return out
}
