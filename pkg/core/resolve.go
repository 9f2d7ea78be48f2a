package core

import (
	"sort"
	"strings"
)

// AllCollections is the wildcard collection filter.
const AllCollections = "all"

// IsAll reports whether requested is the wildcard filter, in any casing.
func IsAll(requested string) bool {
	return strings.EqualFold(strings.TrimSpace(requested), AllCollections)
}

// Resolution is the detailed outcome of resolving a collection filter.
type Resolution struct {
	// IDs are the matched collection ids, without duplicates, in the order
	// their tokens appeared (ascending id order for the wildcard).
	IDs []string
	// Unmatched lists tokens that matched no collection.
	Unmatched []string
	// Ambiguous lists tokens that matched more than one collection; the
	// collection with the lowest id won.
	Ambiguous []string
}

// Resolve maps a comma-separated list of slugs, display names or singular
// names (or the wildcard "all") to collection ids. Unknown tokens are dropped.
func Resolve(requested string, known []Collection) []string {
	return ResolveDetailed(requested, known).IDs
}

// ResolveDetailed is Resolve that also reports unmatched and ambiguous tokens.
func ResolveDetailed(requested string, known []Collection) Resolution {
	ordered := make([]Collection, len(known))
	copy(ordered, known)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var res Resolution
	if IsAll(requested) {
		res.IDs = make([]string, 0, len(ordered))
		for _, c := range ordered {
			res.IDs = append(res.IDs, c.ID)
		}
		return res
	}

	seen := make(map[string]bool)
	for _, raw := range strings.Split(requested, ",") {
		token := Fold(strings.TrimSpace(raw))
		if token == "" {
			continue
		}

		var matches []string
		for _, c := range ordered {
			if collectionMatches(c, token) {
				matches = append(matches, c.ID)
			}
		}

		switch {
		case len(matches) == 0:
			res.Unmatched = append(res.Unmatched, token)
			continue
		case len(matches) > 1:
			res.Ambiguous = append(res.Ambiguous, token)
		}

		if id := matches[0]; !seen[id] {
			seen[id] = true
			res.IDs = append(res.IDs, id)
		}
	}
	return res
}

func collectionMatches(c Collection, token string) bool {
	return Fold(c.Slug) == token ||
		Fold(c.DisplayName) == token ||
		Fold(c.SingularName) == token
}
