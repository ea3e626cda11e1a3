package main

import (
	"github.com/spf13/cobra"

	"edupanel/internal/api"
	"edupanel/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminSweepOrphansCmd(cfg, jsonOutput))
	return cmd
}

func newAdminSweepOrphansCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply  bool
		minAge string
	)

	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Delete uploaded files no record references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				req := api.NewSweepRequest(apply, minAge)
				resp, err := client.SweepOrphans(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeSweepResult(resp)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphaned files (default is a dry run)")
	cmd.Flags().StringVar(&minAge, "min-age", "", "skip files younger than this duration (default: server sweep.min_age)")
	return cmd
}

func writeSweepResult(resp api.SweepResponse) error {
	mode := "dry run"
	if !resp.DryRun {
		mode = "applied"
	}
	if err := writePlain("%s: scanned=%d referenced=%d recent=%d candidates=%d deleted=%d failed=%d reclaimed_bytes=%d\n",
		mode, resp.ScannedBlobs, resp.ReferencedKeys, resp.SkippedRecent, resp.CandidateCount, resp.DeletedCount, resp.FailedCount, resp.ReclaimedBytes); err != nil {
		return err
	}
	for _, key := range resp.Candidates {
		if err := writePlain("  %s\n", key); err != nil {
			return err
		}
	}
	return nil
}
