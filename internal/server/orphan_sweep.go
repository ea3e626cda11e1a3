package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"edupanel/internal/blobstore"
	"edupanel/internal/catalog"
	"edupanel/internal/models"
	"edupanel/internal/store"
)

// SweepOptions controls one orphan sweep.
type SweepOptions struct {
	Apply bool
	// MinAge protects blobs staged by requests still in flight.
	MinAge time.Duration
}

// SweepResult reports one orphan sweep run.
type SweepResult struct {
	DryRun         bool
	ScannedBlobs   int
	ReferencedKeys int
	SkippedRecent  int
	CandidateCount int
	DeletedCount   int
	FailedCount    int
	ReclaimedBytes int64
	Candidates     []string
}

// OrphanSweeper deletes blobs no live record references.
type OrphanSweeper struct {
	store     store.RecordStore
	blobs     blobstore.BlobStore
	catalog   *catalog.Catalog
	lifecycle *AttachmentLifecycle
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrphanSweeper creates a sweeper sharing the lifecycle's ownership rules.
func NewOrphanSweeper(s store.RecordStore, blobs blobstore.BlobStore, cat *catalog.Catalog, lifecycle *AttachmentLifecycle, metrics *Metrics, logger *slog.Logger) *OrphanSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrphanSweeper{
		store:     s,
		blobs:     blobs,
		catalog:   cat,
		lifecycle: lifecycle,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep lists every blob, subtracts the keys referenced by records and the
// default assets, and deletes the rest when opts.Apply is set.
func (o *OrphanSweeper) Sweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	result := SweepResult{DryRun: !opts.Apply, Candidates: []string{}}

	referenced, err := o.referencedKeys(ctx)
	if err != nil {
		return result, storeFailure(fmt.Errorf("scan records: %w", err))
	}
	result.ReferencedKeys = len(referenced)

	blobs, err := o.blobs.List(ctx)
	if err != nil {
		return result, storageFailure(fmt.Errorf("list blobs: %w", err))
	}
	result.ScannedBlobs = len(blobs)

	cutoff := o.now().Add(-opts.MinAge)
	var candidates []blobstore.BlobInfo
	for _, blob := range blobs {
		if _, ok := referenced[blob.Key]; ok {
			continue
		}
		if o.lifecycle.IsDefaultAsset(blob.Key) {
			continue
		}
		if blob.ModTime.After(cutoff) {
			result.SkippedRecent++
			continue
		}
		candidates = append(candidates, blob)
		result.Candidates = append(result.Candidates, blob.Key)
	}
	result.CandidateCount = len(candidates)

	if !opts.Apply {
		for _, blob := range candidates {
			result.ReclaimedBytes += blob.SizeBytes
		}
		return result, nil
	}

	for _, blob := range candidates {
		_, err := o.blobs.Delete(ctx, blob.Key)
		o.metrics.blobDeleted(releaseSweep, err)
		if err != nil {
			result.FailedCount++
			o.logger.Warn("sweep delete failed", "key", blob.Key, "error", err)
			continue
		}
		result.DeletedCount++
		result.ReclaimedBytes += blob.SizeBytes
	}
	o.metrics.sweptBlobs(result.DeletedCount)
	o.logger.Info("orphan sweep complete",
		"scanned", result.ScannedBlobs,
		"candidates", result.CandidateCount,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
		"reclaimed_bytes", result.ReclaimedBytes,
	)
	return result, nil
}

func (o *OrphanSweeper) referencedKeys(ctx context.Context) (map[string]struct{}, error) {
	prefix := o.lifecycle.PublicPrefix()
	keys := map[string]struct{}{}
	err := o.store.ScanRecords(ctx, func(rec models.Record) error {
		var res *catalog.Resource
		if o.catalog != nil {
			res, _ = o.catalog.Get(rec.Resource)
		}
		for _, p := range o.lifecycle.ReferencedPaths(res, rec) {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			key, err := blobstore.CleanKey(strings.TrimPrefix(p, prefix))
			if err != nil {
				continue
			}
			keys[key] = struct{}{}
		}
		return nil
	})
	return keys, err
}
