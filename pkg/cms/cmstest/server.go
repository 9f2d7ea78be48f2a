// Package cmstest provides an in-process fake of the CMS API for tests.
package cmstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/rubiojr/cmsmirror/pkg/core"
)

const Token = "test-token"

// Server serves a fixed set of collections and items for one site.
type Server struct {
	*httptest.Server

	SiteID string

	mu          sync.Mutex
	collections []core.Collection
	items       map[string][]json.RawMessage
	requests    map[string]int
	// TotalOverride, when set for a collection, replaces the reported
	// pagination total.
	totalOverride map[string]int
	failStatus    map[string]int
}

// NewServer starts a fake for siteID.
func NewServer(siteID string) *Server {
	s := &Server{
		SiteID:        siteID,
		items:         make(map[string][]json.RawMessage),
		requests:      make(map[string]int),
		totalOverride: make(map[string]int),
		failStatus:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddCollection registers a collection with the given items. Each item is
// a raw fieldData JSON object.
func (s *Server) AddCollection(c core.Collection, fieldData ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = append(s.collections, c)
	for i, fd := range fieldData {
		item := `{"id":"` + c.ID + `-` + strconv.Itoa(i+1) + `","isDraft":false,"isArchived":false,"fieldData":` + fd + `}`
		s.items[c.ID] = append(s.items[c.ID], json.RawMessage(item))
	}
}

// SetTotal makes the items endpoint report total for collectionID.
func (s *Server) SetTotal(collectionID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOverride[collectionID] = total
}

// FailWith makes every request whose path contains fragment answer status.
func (s *Server) FailWith(fragment string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus[fragment] = status
}

// Requests returns how many item pages were requested for collectionID.
func (s *Server) Requests(collectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[collectionID]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+Token {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	for fragment, status := range s.failStatus {
		if strings.Contains(r.URL.Path, fragment) {
			http.Error(w, `{"message":"failure"}`, status)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 3 && parts[0] == "sites" && parts[2] == "collections":
		if parts[1] != s.SiteID {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"collections": s.collections})

	case len(parts) == 3 && parts[0] == "collections" && parts[2] == "items":
		id := parts[1]
		s.requests[id]++
		all := s.items[id]

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}
		end := offset + limit
		if offset > len(all) {
			offset = len(all)
		}
		if end > len(all) {
			end = len(all)
		}

		total := len(all)
		if t, ok := s.totalOverride[id]; ok {
			total = t
		}
		page := all[offset:end]
		if page == nil {
			page = []json.RawMessage{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": page,
			"pagination": map[string]int{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})

	default:
		http.NotFound(w, r)
	}
}
