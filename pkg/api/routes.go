package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sync", s.HandleSync)
	mux.HandleFunc("POST /api/sync", s.HandleSync)
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	// Full collection dumps are large and compress well.
	mux.Handle("GET /api/data", gzhttp.GzipHandler(http.HandlerFunc(s.HandleData)))
	mux.HandleFunc("GET /api/collections", s.HandleCollections)
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("GET /api/events", s.HandleEvents)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /{$}", s.HandlePage)
}
