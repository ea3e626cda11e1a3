package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"edupanel/internal/blobstore"
	"edupanel/internal/catalog"
	"edupanel/internal/models"
	"edupanel/internal/store"
)

const (
	defaultBlobDeleteConcurrency = 4
	maxNameAttempts              = 3
)

// Blob delete reasons, used as metric labels.
const (
	releaseCompensation = "compensation"
	releaseSuperseded   = "superseded"
	releaseRecordDelete = "record_deleted"
	releaseSweep        = "sweep"
)

// FileCandidate is one uploaded file part awaiting the gatekeeper.
type FileCandidate struct {
	Field        string
	OriginalName string
	DeclaredType string
	Size         int64
	Open         func() (io.ReadCloser, error)
}

// RecordAccessor is the record persistence the lifecycle needs for one
// resource. Get returns nil, nil for a missing record.
type RecordAccessor interface {
	Get(ctx context.Context, id string) (*models.Record, error)
	Insert(ctx context.Context, rec *models.Record) error
	Update(ctx context.Context, rec *models.Record, expectedVersion int) error
	Delete(ctx context.Context, id string, expectedVersion int) error
}

type storeAccessor struct {
	store    store.RecordStore
	resource *catalog.Resource
}

// NewStoreAccessor binds a record store to one catalog resource.
func NewStoreAccessor(s store.RecordStore, res *catalog.Resource) RecordAccessor {
	return storeAccessor{store: s, resource: res}
}

func (a storeAccessor) Get(ctx context.Context, id string) (*models.Record, error) {
	return a.store.GetRecord(ctx, a.resource.Name, id)
}

func (a storeAccessor) Insert(ctx context.Context, rec *models.Record) error {
	rec.Resource = a.resource.Name
	return a.store.CreateRecord(ctx, rec, a.resource.UniqueValue(rec.Fields))
}

func (a storeAccessor) Update(ctx context.Context, rec *models.Record, expectedVersion int) error {
	return a.store.UpdateRecord(ctx, rec, a.resource.UniqueValue(rec.Fields), expectedVersion)
}

func (a storeAccessor) Delete(ctx context.Context, id string, expectedVersion int) error {
	return a.store.DeleteRecord(ctx, a.resource.Name, id, expectedVersion)
}

// LifecycleOptions configures an AttachmentLifecycle.
type LifecycleOptions struct {
	PublicPrefix string
	// PublicOrigins are the scheme://host values under which this server's
	// uploads are reachable; absolute rich-text image URLs on other hosts
	// are never treated as managed.
	PublicOrigins     []string
	DefaultAssets     []string
	DeleteConcurrency int
	Metrics           *Metrics
	Logger            *slog.Logger
}

// AttachmentLifecycle couples record writes to blob writes. Blobs are staged
// before the record write and removed again if that write fails; superseded
// and deleted attachments are released after the record write succeeds.
type AttachmentLifecycle struct {
	blobs       blobstore.BlobStore
	gate        *UploadGatekeeper
	namer       *UploadNamer
	prefix      string
	origins     []string
	defaults    map[string]struct{}
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger
}

// NewAttachmentLifecycle creates a lifecycle manager over blobs.
func NewAttachmentLifecycle(blobs blobstore.BlobStore, gate *UploadGatekeeper, namer *UploadNamer, opts LifecycleOptions) *AttachmentLifecycle {
	prefix := opts.PublicPrefix
	if prefix == "" {
		prefix = "/api/uploads/"
	}
	defaults := make(map[string]struct{}, len(opts.DefaultAssets))
	for _, p := range opts.DefaultAssets {
		if p = strings.TrimSpace(p); p != "" {
			defaults[p] = struct{}{}
		}
	}
	var origins []string
	for _, raw := range opts.PublicOrigins {
		if origin, ok := NormalizeOrigin(raw); ok {
			origins = append(origins, origin)
		}
	}
	concurrency := opts.DeleteConcurrency
	if concurrency <= 0 {
		concurrency = defaultBlobDeleteConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentLifecycle{
		blobs:       blobs,
		gate:        gate,
		namer:       namer,
		prefix:      prefix,
		origins:     origins,
		defaults:    defaults,
		concurrency: concurrency,
		metrics:     opts.Metrics,
		logger:      logger,
	}
}

// PublicPrefix returns the URL prefix of managed blobs.
func (l *AttachmentLifecycle) PublicPrefix() string {
	return l.prefix
}

// UpdateInput is a partial update of one record. A nil patch value clears
// the field. ExpectedVersion, when positive, must match the stored version.
type UpdateInput struct {
	ID              string
	Patch           map[string]any
	Files           []FileCandidate
	ExpectedVersion int
}

// DeleteReport summarizes the blob cleanup after a record delete.
type DeleteReport struct {
	Deleted int
	Missing int
	Failed  int
	Skipped int
}

type gatedFile struct {
	candidate FileCandidate
	profile   models.UploadProfile
	subdir    string
	mimeType  string
	ext       string
}

// Create validates and stages files, then inserts the record. Staged blobs
// are removed when the insert fails.
func (l *AttachmentLifecycle) Create(ctx context.Context, res *catalog.Resource, acc RecordAccessor, fields map[string]any, files []FileCandidate) (*models.Record, error) {
	grouped, err := groupFiles(res, files)
	if err != nil {
		return nil, err
	}
	for _, att := range res.Attachments {
		if att.Required && len(grouped[att.Name]) == 0 {
			return nil, badRequestCode(fmt.Errorf("%s file is required", att.Name), ErrCodeMissingFile)
		}
	}
	gated, err := l.gateAll(res, grouped)
	if err != nil {
		return nil, err
	}
	refs, staged, err := l.stage(ctx, gated)
	if err != nil {
		return nil, err
	}

	if fields == nil {
		fields = map[string]any{}
	}
	rec := &models.Record{Resource: res.Name, Fields: fields, Attachments: refs}
	for _, att := range res.Attachments {
		if att.Default == "" || len(rec.Attachments[att.Name]) > 0 {
			continue
		}
		rec.Attachments[att.Name] = []models.AttachmentRef{defaultRef(l.prefix + att.Default)}
	}

	if err := acc.Insert(ctx, rec); err != nil {
		l.compensate(ctx, "create", staged)
		return nil, classifyStoreError(err)
	}
	return rec, nil
}

// Update stages new files, then applies the patch with a version-conditional
// write. On success the blobs the new files replaced are released; on any
// failure the staged blobs are removed.
func (l *AttachmentLifecycle) Update(ctx context.Context, res *catalog.Resource, acc RecordAccessor, in UpdateInput) (*models.Record, error) {
	grouped, err := groupFiles(res, in.Files)
	if err != nil {
		return nil, err
	}
	gated, err := l.gateAll(res, grouped)
	if err != nil {
		return nil, err
	}
	refs, staged, err := l.stage(ctx, gated)
	if err != nil {
		return nil, err
	}

	current, err := acc.Get(ctx, in.ID)
	if err != nil {
		l.compensate(ctx, "update", staged)
		return nil, classifyStoreError(err)
	}
	if current == nil {
		l.compensate(ctx, "update", staged)
		return nil, notFoundCode(fmt.Errorf("%s record not found", res.Name), ErrCodeRecordNotFound)
	}
	if in.ExpectedVersion > 0 && current.Version != in.ExpectedVersion {
		l.compensate(ctx, "update", staged)
		return nil, conflict(fmt.Errorf("record is at version %d, not %d", current.Version, in.ExpectedVersion))
	}

	next := current.Clone()
	for name, value := range in.Patch {
		if value == nil {
			delete(next.Fields, name)
			continue
		}
		next.Fields[name] = value
	}
	var superseded []string
	for field, newRefs := range refs {
		for _, old := range next.Attachments[field] {
			superseded = append(superseded, old.StoragePath)
		}
		next.Attachments[field] = newRefs
	}

	if err := acc.Update(ctx, &next, current.Version); err != nil {
		l.compensate(ctx, "update", staged)
		return nil, classifyStoreError(err)
	}
	l.releaseAll(ctx, releaseSuperseded, superseded)
	return &next, nil
}

// Delete removes the record, then every blob it referenced through
// attachment fields or images embedded in rich-text fields. Blob failures
// are logged and counted; the sweep reclaims whatever is left.
func (l *AttachmentLifecycle) Delete(ctx context.Context, res *catalog.Resource, acc RecordAccessor, id string) (DeleteReport, error) {
	current, err := acc.Get(ctx, id)
	if err != nil {
		return DeleteReport{}, classifyStoreError(err)
	}
	if current == nil {
		return DeleteReport{}, notFoundCode(fmt.Errorf("%s record not found", res.Name), ErrCodeRecordNotFound)
	}

	paths := l.ownedPaths(res, *current)
	if err := acc.Delete(ctx, id, current.Version); err != nil {
		return DeleteReport{}, classifyStoreError(err)
	}
	return l.releaseAll(ctx, releaseRecordDelete, paths), nil
}

// StageStandalone gates and stores one file that no record owns yet, such
// as an image inserted by a rich-text editor.
func (l *AttachmentLifecycle) StageStandalone(ctx context.Context, subdir string, c FileCandidate) (models.AttachmentRef, error) {
	gated, err := l.gateOne(models.UploadProfileGeneral, subdir, c)
	if err != nil {
		return models.AttachmentRef{}, err
	}
	refs, _, err := l.stage(ctx, []gatedFile{gated})
	if err != nil {
		return models.AttachmentRef{}, err
	}
	return refs[c.Field][0], nil
}

// ReferencedPaths lists every public path rec holds, including managed
// images embedded in its rich-text fields. res may be nil for records of
// resources no longer in the catalog.
func (l *AttachmentLifecycle) ReferencedPaths(res *catalog.Resource, rec models.Record) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok || p == "" {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, ref := range rec.AllAttachmentRefs() {
		add(ref.StoragePath)
	}
	if res != nil {
		for _, name := range res.RichTextFields() {
			body, _ := rec.Fields[name].(string)
			for _, ref := range ExtractManagedImageRefs(body, l.prefix, l.origins) {
				add(ref)
			}
		}
	}
	return out
}

// ownedPaths lists the public paths rec owns: its attachment refs plus
// editor images embedded in its rich-text fields. Embedded paths outside the
// editor subdirectory belong to other records and are left alone.
func (l *AttachmentLifecycle) ownedPaths(res *catalog.Resource, rec models.Record) []string {
	editorPrefix := l.prefix + editorUploadSubdir + "/"
	attached := map[string]struct{}{}
	for _, ref := range rec.AllAttachmentRefs() {
		attached[ref.StoragePath] = struct{}{}
	}
	var out []string
	for _, p := range l.ReferencedPaths(res, rec) {
		if _, ok := attached[p]; ok || strings.HasPrefix(p, editorPrefix) {
			out = append(out, p)
		}
	}
	return out
}

// OwnedKey maps a public path to its blob key. It reports false for paths
// outside the managed prefix, paths escaping the store root and default
// assets.
func (l *AttachmentLifecycle) OwnedKey(publicPath string) (string, bool) {
	if _, isDefault := l.defaults[publicPath]; isDefault {
		return "", false
	}
	if !strings.HasPrefix(publicPath, l.prefix) {
		return "", false
	}
	key, err := blobstore.CleanKey(strings.TrimPrefix(publicPath, l.prefix))
	if err != nil {
		return "", false
	}
	if _, isDefault := l.defaults[l.prefix+key]; isDefault {
		return "", false
	}
	return key, true
}

// IsDefaultAsset reports whether key is one of the protected placeholders.
func (l *AttachmentLifecycle) IsDefaultAsset(key string) bool {
	_, ok := l.defaults[l.prefix+key]
	return ok
}

func groupFiles(res *catalog.Resource, files []FileCandidate) (map[string][]FileCandidate, error) {
	grouped := map[string][]FileCandidate{}
	for _, f := range files {
		if _, ok := res.Attachment(f.Field); !ok {
			return nil, badRequestCode(fmt.Errorf("unexpected file field %q", f.Field), ErrCodeUnknownFile)
		}
		grouped[f.Field] = append(grouped[f.Field], f)
	}
	for field, list := range grouped {
		att, _ := res.Attachment(field)
		if len(list) > att.Limit() {
			return nil, badRequestCode(fmt.Errorf("%s accepts at most %d files", field, att.Limit()), ErrCodeTooManyFiles)
		}
	}
	return grouped, nil
}

// gateAll checks every candidate before any of them is written.
func (l *AttachmentLifecycle) gateAll(res *catalog.Resource, grouped map[string][]FileCandidate) ([]gatedFile, error) {
	var out []gatedFile
	for _, att := range res.Attachments {
		for _, c := range grouped[att.Name] {
			g, err := l.gateOne(att.Profile, att.Subdir, c)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
	}
	return out, nil
}

func (l *AttachmentLifecycle) gateOne(profile models.UploadProfile, subdir string, c FileCandidate) (gatedFile, error) {
	header, err := readHeader(c)
	if err != nil {
		l.metrics.uploadRejected("unreadable")
		return gatedFile{}, badRequestCode(fmt.Errorf("read %s: %w", c.Field, err), ErrCodeInvalidFile)
	}
	decision, err := l.gate.Check(profile, UploadCandidate{
		Field:        c.Field,
		OriginalName: c.OriginalName,
		DeclaredType: c.DeclaredType,
		Size:         c.Size,
		Header:       header,
	})
	if err != nil {
		reason := "type"
		if errorNumericCode(http.StatusBadRequest, err) == ErrCodeFileTooLarge {
			reason = "too_large"
		}
		l.metrics.uploadRejected(reason)
		return gatedFile{}, err
	}
	return gatedFile{candidate: c, profile: profile, subdir: subdir, mimeType: decision.MimeType, ext: decision.Extension}, nil
}

// stage writes gated files to the blob store. If one write fails the ones
// already written are removed before returning.
func (l *AttachmentLifecycle) stage(ctx context.Context, files []gatedFile) (map[string][]models.AttachmentRef, []string, error) {
	refs := map[string][]models.AttachmentRef{}
	var staged []string
	for _, f := range files {
		key, size, err := l.put(ctx, f)
		if err != nil {
			l.compensate(ctx, "stage", staged)
			return nil, nil, storageFailure(fmt.Errorf("store %s: %w", f.candidate.Field, err))
		}
		l.metrics.uploadAccepted()
		publicPath := l.prefix + key
		staged = append(staged, publicPath)
		refs[f.candidate.Field] = append(refs[f.candidate.Field], models.AttachmentRef{
			StoragePath:  publicPath,
			OriginalName: f.candidate.OriginalName,
			SizeBytes:    size,
			MimeType:     f.mimeType,
		})
	}
	return refs, staged, nil
}

func (l *AttachmentLifecycle) put(ctx context.Context, f gatedFile) (string, int64, error) {
	var lastErr error
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		rc, err := f.candidate.Open()
		if err != nil {
			return "", 0, err
		}
		key := l.namer.Name(f.subdir, f.candidate.Field, f.candidate.OriginalName, f.ext)
		result, err := l.blobs.Put(ctx, key, rc)
		_ = rc.Close()
		if err == nil {
			return result.Key, result.SizeBytes, nil
		}
		if !errors.Is(err, blobstore.ErrExists) {
			return "", 0, err
		}
		lastErr = err
	}
	return "", 0, lastErr
}

// compensate removes staged blobs after a failed record write. It runs to
// completion even if the request context is cancelled.
func (l *AttachmentLifecycle) compensate(ctx context.Context, op string, staged []string) {
	if len(staged) == 0 {
		return
	}
	report := l.releaseAll(ctx, releaseCompensation, staged)
	l.metrics.compensated(op, report.Deleted)
	l.logger.Info("removed staged uploads", "operation", op, "count", report.Deleted, "failed", report.Failed)
}

// releaseAll deletes the blobs behind publicPaths concurrently. Paths that
// fail the ownership check are skipped.
func (l *AttachmentLifecycle) releaseAll(ctx context.Context, reason string, publicPaths []string) DeleteReport {
	ctx = context.WithoutCancel(ctx)
	var (
		mu     sync.Mutex
		report DeleteReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, p := range publicPaths {
		key, ok := l.OwnedKey(p)
		if !ok {
			report.Skipped++
			continue
		}
		g.Go(func() error {
			removed, err := l.blobs.Delete(gctx, key)
			l.metrics.blobDeleted(reason, err)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				l.logger.Warn("blob delete failed", "reason", reason, "key", key, "error", err)
			case removed:
				report.Deleted++
			default:
				report.Missing++
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func readHeader(c FileCandidate) ([]byte, error) {
	if c.Open == nil {
		return nil, fmt.Errorf("no content")
	}
	rc, err := c.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := make([]byte, sniffHeaderBytes)
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

func defaultRef(publicPath string) models.AttachmentRef {
	return models.AttachmentRef{
		StoragePath:  publicPath,
		OriginalName: path.Base(publicPath),
		MimeType:     mime.TypeByExtension(path.Ext(publicPath)),
	}
}
