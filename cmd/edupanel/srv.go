package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"edupanel/internal/blobstore"
	"edupanel/internal/catalog"
	"edupanel/internal/config"
	"edupanel/internal/server"
	"edupanel/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the edupanel API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(parent context.Context, cfg *config.Config) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default().With("component", "server")

	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := blobstore.NewLocalDir(cfg.Uploads.Dir)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	srv := server.New(addr, st, blobs, cat, server.Options{
		Uploads:     cfg.Uploads,
		SweepMinAge: cfg.SweepMinAge(),
		Logger:      logger,
	})
	if err := srv.ProvisionDefaultAssets(ctx); err != nil {
		return err
	}

	if cfg.Sweep.Schedule != "" {
		scheduler, err := srv.ScheduleSweeps(ctx, cfg.Sweep.Schedule, server.SweepOptions{
			Apply:  cfg.Sweep.Apply,
			MinAge: cfg.SweepMinAge(),
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		logger.Info("orphan sweep scheduled", "schedule", cfg.Sweep.Schedule, "apply", cfg.Sweep.Apply)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
