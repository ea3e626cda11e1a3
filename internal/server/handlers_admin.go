package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"edupanel/internal/api"
)

func (s *Server) handleSweepOrphans(w http.ResponseWriter, r *http.Request) {
	var req api.SweepRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return
	}
	dryRun := req.IsDryRun()
	if !dryRun && r.Header.Get("X-Confirm") != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}
	minAge := s.sweepMinAge
	if raw := strings.TrimSpace(req.MinAge); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("invalid minAge %q", raw)))
			return
		}
		minAge = parsed
	}

	s.withLimiter(w, r, s.sweepLimiter, "sweep", func() {
		result, err := s.sweeper.Sweep(r.Context(), SweepOptions{Apply: !dryRun, MinAge: minAge})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeData(w, http.StatusOK, "orphan sweep complete", api.SweepResponse{
			DryRun:         result.DryRun,
			ScannedBlobs:   result.ScannedBlobs,
			ReferencedKeys: result.ReferencedKeys,
			SkippedRecent:  result.SkippedRecent,
			CandidateCount: result.CandidateCount,
			DeletedCount:   result.DeletedCount,
			FailedCount:    result.FailedCount,
			ReclaimedBytes: result.ReclaimedBytes,
			Candidates:     result.Candidates,
		})
	})
}
