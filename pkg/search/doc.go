// Package search is the query engine of cmsmirror.
//
// # Overview
//
// A query carries free text and a collection filter. The engine resolves the
// filter against the stored collections, then asks the store for matching
// items restricted to the resolved collections. Restriction happens inside
// the store query, before any result cap, so a narrow filter never loses
// results to items from other collections.
//
// # Matching modes
//
//   - substring: the case-folded query must appear as a contiguous
//     substring of an item's search text. Results are uncapped unless the
//     caller passes a limit.
//   - fts: the query is split on whitespace, each token becomes a quoted
//     prefix term, and all terms must match. Results are capped (100 by
//     default) and ordered by the full-text index's ranking.
//
// # Collection filters
//
// The filter is "all" or a comma separated list of collection slugs,
// display names or singular names, matched case-insensitively. Unknown
// names are dropped. When nothing is left the engine answers with an empty
// result set, or with a *core.NotFoundError when configured to.
//
// # Usage
//
//	service := search.NewSearchService(store, search.Options{Mode: storage.ModeFTS})
//	params, err := search.ParseSearchParams(r.URL.Query())
//	if err != nil {
//		// missing q
//	}
//	results, err := service.Search(ctx, params)
//
// Blank query text yields an empty result set without touching the store.
package search
