package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
)

// Searcher answers one query. Remote and ItemCache implement it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]core.Result, error)
}

// Remote searches through the API.
type Remote struct {
	Client      *Client
	Collections string
	Limit       int
}

func (r Remote) Search(ctx context.Context, query string) ([]core.Result, error) {
	res, err := r.Client.Search(ctx, query, r.Collections, r.Limit)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

type SessionOptions struct {
	// Delay defaults to DefaultDebounce.
	Delay time.Duration
	// Render shows a result set. Clear empties the view.
	Render func(query string, results []core.Result)
	Clear  func()
}

// Session turns raw input into searches: bursts are debounced, stale
// responses are dropped, blank input clears the view without a request, and
// failures clear it rather than surfacing error text.
type Session struct {
	searcher  Searcher
	debouncer *Debouncer
	seq       Sequencer
	render    func(string, []core.Result)
	clear     func()
	logger    *log.Logger

	mu    sync.Mutex
	shown string
}

func NewSession(searcher Searcher, opts SessionOptions) *Session {
	s := &Session{
		searcher:  searcher,
		debouncer: NewDebouncer(opts.Delay),
		render:    opts.Render,
		clear:     opts.Clear,
		logger:    log.ForService("session"),
	}
	if s.render == nil {
		s.render = func(string, []core.Result) {}
	}
	if s.clear == nil {
		s.clear = func() {}
	}
	return s
}

// Input handles a new value of the search box.
func (s *Session) Input(ctx context.Context, text string) {
	query := strings.TrimSpace(text)
	if query == "" {
		s.debouncer.Cancel()
		s.seq.Accept(s.seq.Next())
		s.show("")
		s.clear()
		return
	}
	s.debouncer.Call(func() { s.Run(ctx, query) })
}

// Run searches immediately, bypassing the debounce.
func (s *Session) Run(ctx context.Context, query string) {
	seq := s.seq.Next()
	results, err := s.searcher.Search(ctx, query)
	if !s.seq.Accept(seq) {
		s.logger.Debugf("Dropping stale results for %q", query)
		return
	}
	if err != nil {
		s.logger.Warnf("Search for %q failed: %v", query, err)
		s.show("")
		s.clear()
		return
	}
	s.show(query)
	s.render(query, results)
}

func (s *Session) show(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = query
}

// Close cancels any pending search and waits for a debounced search already
// running to render.
func (s *Session) Close() {
	s.debouncer.Cancel()
	s.debouncer.Wait()
}

// Flush closes the session and answers text right away unless it is
// already the rendered query.
func (s *Session) Flush(ctx context.Context, text string) {
	s.Close()
	query := strings.TrimSpace(text)
	s.mu.Lock()
	done := query == s.shown
	s.mu.Unlock()
	if query == "" || done {
		return
	}
	s.Run(ctx, query)
}
