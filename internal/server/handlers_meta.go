package server

import (
	"fmt"
	"net/http"

	"edupanel/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeServiceError(w, r, storeFailure(fmt.Errorf("ping store: %w", err)))
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, "resources fetched", s.catalog.Resources())
}
