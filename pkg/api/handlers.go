package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/search"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"github.com/rubiojr/cmsmirror/pkg/version"
)

// HandleSync runs a full sync. The run is detached from the request context
// so a client hanging up does not abort a half written snapshot.
func (s *Server) HandleSync(w http.ResponseWriter, r *http.Request) {
	d := s.deps()
	if d.Syncer == nil {
		s.writeError(w, http.StatusInternalServerError, "Sync failed", "sync is not configured")
		return
	}

	report, err := d.Syncer.Run(context.WithoutCancel(r.Context()), bearerToken(r))
	if err != nil {
		if core.HTTPStatus(err) == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cmsmirror"`)
			s.writeError(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		s.writeFailure(w, "Sync failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, SyncResponse{Success: true, SyncReport: report})
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	d := s.deps()

	params, err := search.ParseSearchParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter", err.Error())
		return
	}

	results, err := d.Search.Search(r.Context(), params)
	if err != nil {
		s.writeFailure(w, "Search failed", err)
		return
	}

	cacheFor(w, d.SearchMaxAge)
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) HandleData(w http.ResponseWriter, r *http.Request) {
	d := s.deps()

	collections := r.URL.Query().Get("collections")
	if collections == "" {
		collections = core.AllCollections
	}

	items, err := d.Search.Data(r.Context(), collections)
	if err != nil {
		s.writeFailure(w, "Failed to load data", err)
		return
	}
	if items == nil {
		items = []core.Item{}
	}

	cacheFor(w, d.DataMaxAge)
	s.writeJSON(w, http.StatusOK, DataResponse{Items: items, Total: len(items)})
}

func (s *Server) HandleCollections(w http.ResponseWriter, r *http.Request) {
	d := s.deps()
	ctx := r.Context()

	collections, err := d.Store.Collections(ctx)
	if err != nil {
		s.writeFailure(w, "Failed to list collections", err)
		return
	}
	if collections == nil {
		collections = []core.Collection{}
	}

	response := CollectionsResponse{Collections: collections, Total: len(collections)}
	last, err := d.Store.LastSynced(ctx)
	if err != nil {
		s.writeFailure(w, "Failed to list collections", err)
		return
	}
	if !last.IsZero() {
		response.LastSyncedAt = &last
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps().Store.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, "Failed to get stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// HandleHealth answers liveness checks. With deep=1 it also verifies that the
// store and its search index agree.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	if r.URL.Query().Get("deep") == "1" {
		if m, ok := s.deps().Store.(storage.Maintainer); ok {
			report, err := m.Check(r.Context())
			if err != nil {
				s.writeFailure(w, "Health check failed", err)
				return
			}
			health.Check = report
			if !report.OK() {
				health.Status = "degraded"
				s.writeJSON(w, http.StatusServiceUnavailable, health)
				return
			}
		}
	}

	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) HandlePage(w http.ResponseWriter, r *http.Request) {
	page := s.deps().Page
	if page == nil {
		http.NotFound(w, r)
		return
	}
	page.ServeHTTP(w, r)
}
