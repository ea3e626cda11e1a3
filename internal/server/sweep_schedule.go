package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ScheduleSweeps registers a recurring orphan sweep on a standard five-field
// cron expression. Runs that overlap a still-running sweep are skipped. The
// caller starts and stops the returned scheduler.
func (s *Server) ScheduleSweeps(ctx context.Context, spec string, opts SweepOptions) (*cron.Cron, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("sweep schedule is required")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	logger := s.log().With("component", "sweep")
	_, err := c.AddFunc(spec, func() {
		if !s.acquireSweepSlot() {
			logger.Info("scheduled sweep skipped; another sweep is running")
			return
		}
		defer s.releaseLimiter(s.sweepLimiter)

		result, err := s.sweeper.Sweep(ctx, opts)
		if err != nil {
			logger.Error("scheduled sweep failed", "error", err)
			return
		}
		logger.Info("scheduled sweep finished",
			"dry_run", result.DryRun,
			"candidates", result.CandidateCount,
			"deleted", result.DeletedCount,
			"failed", result.FailedCount,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return c, nil
}

// acquireSweepSlot shares the admin endpoint's limiter without an HTTP
// response to write.
func (s *Server) acquireSweepSlot() bool {
	select {
	case s.sweepLimiter <- struct{}{}:
		return true
	default:
		return false
	}
}
