package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/metrics"
	"github.com/rubiojr/cmsmirror/pkg/storage"
)

// DefaultLimit caps full-text results when no other cap is configured.
const DefaultLimit = 100

// SearchParams represents all parameters for a search operation.
type SearchParams struct {
	// Query is the search text. Surrounding whitespace is ignored.
	Query string

	// Collections is "all" or a comma separated list of collection names.
	Collections string

	// Limit optionally lowers the result cap. Zero keeps the default.
	Limit int
}

// SearchResults is the answer to a search.
type SearchResults struct {
	Results []core.Result `json:"results"`
	Total   int           `json:"total"`
}

func emptyResults() *SearchResults {
	return &SearchResults{Results: []core.Result{}}
}

type Options struct {
	Mode storage.Mode
	// Limit caps full-text results. Defaults to DefaultLimit.
	Limit int
	// NotFoundOnUnknown makes a filter that resolves to no collection an
	// error instead of an empty result.
	NotFoundOnUnknown bool
	Metrics           *metrics.Metrics
}

// SearchService runs queries against a store.
type SearchService struct {
	store   storage.Store
	mode    storage.Mode
	limit   int
	strict  bool
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewSearchService creates a service. A mode the store cannot serve falls
// back to substring matching.
func NewSearchService(store storage.Store, opts Options) *SearchService {
	logger := log.ForService("search")

	mode := opts.Mode
	if mode == "" {
		mode = storage.ModeSubstring
	}
	if !storage.Supports(store, mode) {
		logger.Warnf("Store does not support %s search, using substring matching", mode)
		mode = storage.ModeSubstring
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	return &SearchService{
		store:   store,
		mode:    mode,
		limit:   limit,
		strict:  opts.NotFoundOnUnknown,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Mode is the matching mode in effect.
func (s *SearchService) Mode() storage.Mode {
	return s.mode
}

// ParseSearchParams reads q, collections and limit from a query string. A
// missing q is a validation error; an empty one is not. The collection filter
// defaults to "all". An unparsable limit is ignored.
func ParseSearchParams(values url.Values) (SearchParams, error) {
	params := SearchParams{Collections: core.AllCollections}

	q, ok := values["q"]
	if !ok || len(q) == 0 {
		return params, &core.ValidationError{Field: "q", Msg: "query parameter is required"}
	}
	params.Query = q[0]

	if c := strings.TrimSpace(values.Get("collections")); c != "" {
		params.Collections = c
	}

	if limitStr := values.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			params.Limit = parsed
		}
	}

	return params, nil
}

// Search runs a query.
func (s *SearchService) Search(ctx context.Context, params SearchParams) (*SearchResults, error) {
	start := time.Now()
	results, err := s.search(ctx, params)

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveSearch(string(s.mode), status, time.Since(start))
	return results, err
}

func (s *SearchService) search(ctx context.Context, params SearchParams) (*SearchResults, error) {
	text := strings.TrimSpace(params.Query)
	if text == "" {
		return emptyResults(), nil
	}

	ids, err := s.resolve(ctx, params.Collections)
	if err != nil {
		return nil, err
	}
	if ids != nil && len(ids) == 0 {
		return emptyResults(), nil
	}

	q := core.Query{Text: text, CollectionIDs: ids, Limit: params.Limit}
	if s.mode == storage.ModeFTS && (q.Limit <= 0 || q.Limit > s.limit) {
		q.Limit = s.limit
	}

	items, err := s.store.Search(ctx, s.mode, q)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	results := make([]core.Result, len(items))
	for i, item := range items {
		results[i] = item.Result()
	}
	s.logger.Debugf("Query %q in %q matched %d items", text, params.Collections, len(results))
	return &SearchResults{Results: results, Total: len(results)}, nil
}

// Data returns every item of the requested collections, for callers that
// filter on their side.
func (s *SearchService) Data(ctx context.Context, collections string) ([]core.Item, error) {
	ids, err := s.resolve(ctx, collections)
	if err != nil {
		return nil, err
	}
	return s.store.Items(ctx, ids)
}

// resolve maps a collection filter to ids. nil means unrestricted; an empty
// slice means nothing matched (and the service is lenient).
func (s *SearchService) resolve(ctx context.Context, requested string) ([]string, error) {
	if strings.TrimSpace(requested) == "" || core.IsAll(requested) {
		return nil, nil
	}

	known, err := s.store.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading collections: %w", err)
	}

	res := core.ResolveDetailed(requested, known)
	for _, token := range res.Ambiguous {
		s.logger.Warnf("Collection filter %q matches several collections, using the one with the lowest id", token)
	}
	if len(res.IDs) == 0 {
		if s.strict {
			return nil, &core.NotFoundError{What: fmt.Sprintf("collection %q", requested)}
		}
		return []string{}, nil
	}
	return res.IDs, nil
}
