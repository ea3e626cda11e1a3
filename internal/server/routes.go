package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, metrics and catalog.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/resources", s.handleListResources)

	// Editor uploads and static blob serving.
	prefix := s.lifecycle.PublicPrefix()
	mux.HandleFunc("POST "+strings.TrimSuffix(prefix, "/"), s.handleEditorUpload)
	mux.HandleFunc("GET "+prefix+"{key...}", s.handleServeUpload)

	// Admin.
	mux.HandleFunc("POST /api/admin/sweep-orphans", s.handleSweepOrphans)

	// One route set per catalog resource.
	for _, res := range s.catalog.Resources() {
		base := "/api/" + res.Name
		mux.HandleFunc("GET "+base, s.forResource(res, s.handleListRecords))
		mux.HandleFunc("POST "+base, s.forResource(res, s.handleCreateRecord))
		mux.HandleFunc("GET "+base+"/{id}", s.forResource(res, s.handleGetRecord))
		mux.HandleFunc("PUT "+base+"/{id}", s.forResource(res, s.handleUpdateRecord))
		mux.HandleFunc("DELETE "+base+"/{id}", s.forResource(res, s.handleDeleteRecord))
	}

	return s.withRequestLogging(mux)
}
