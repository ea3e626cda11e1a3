package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"edupanel/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestRecord(resource, title string) *models.Record {
	return &models.Record{
		Resource: resource,
		Fields:   map[string]any{"title": title, "year": int64(2026)},
		Attachments: map[string][]models.AttachmentRef{
			"image": {{StoragePath: "/api/uploads/banners/image-1-1.png", OriginalName: "a.png", SizeBytes: 10, MimeType: "image/png"}},
		},
	}
}

func TestCreateAndGetRecord(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := newTestRecord("banners", "Spring Sale")
	if err := st.CreateRecord(ctx, rec, "spring sale"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ValidRecordID(rec.ID) {
		t.Fatalf("expected generated uuid id, got %q", rec.ID)
	}
	if rec.Version != 1 {
		t.Fatalf("expected version 1, got %d", rec.Version)
	}

	got, err := st.GetRecord(ctx, "banners", rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.Fields["title"] != "Spring Sale" || got.Fields["year"] != int64(2026) {
		t.Fatalf("unexpected fields: %#v", got.Fields)
	}
	refs := got.Attachments["image"]
	if len(refs) != 1 || refs[0].StoragePath != "/api/uploads/banners/image-1-1.png" || refs[0].MimeType != "image/png" {
		t.Fatalf("unexpected attachments: %#v", got.Attachments)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("unexpected timestamps: created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}

	other, err := st.GetRecord(ctx, "blogs", rec.ID)
	if err != nil {
		t.Fatalf("get other resource: %v", err)
	}
	if other != nil {
		t.Fatal("records must be scoped by resource")
	}
}

func TestCreateRecordDuplicateUniqueKey(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.CreateRecord(ctx, newTestRecord("documents", "Report"), "report"); err != nil {
		t.Fatalf("create first: %v", err)
	}
	err := st.CreateRecord(ctx, newTestRecord("documents", "REPORT"), "report")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same key under another resource is fine.
	if err := st.CreateRecord(ctx, newTestRecord("results", "Report"), "report"); err != nil {
		t.Fatalf("create other resource: %v", err)
	}
	// No unique key means no constraint.
	for i := 0; i < 2; i++ {
		if err := st.CreateRecord(ctx, newTestRecord("photos", "x"), ""); err != nil {
			t.Fatalf("create keyless %d: %v", i, err)
		}
	}
}

func TestUpdateRecordConditional(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := newTestRecord("banners", "Old")
	if err := st.CreateRecord(ctx, rec, "old"); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec.Fields["title"] = "New"
	if err := st.UpdateRecord(ctx, rec, "new", 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Version != 2 {
		t.Fatalf("expected version 2, got %d", rec.Version)
	}

	stale := rec.Clone()
	stale.Fields["title"] = "Stale"
	if err := st.UpdateRecord(ctx, &stale, "stale", 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	missing := newTestRecord("banners", "Ghost")
	missing.ID = NewRecordID()
	if err := st.UpdateRecord(ctx, missing, "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := st.GetRecord(ctx, "banners", rec.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields["title"] != "New" || got.Version != 2 {
		t.Fatalf("unexpected stored record: %#v", got)
	}
}

func TestUpdateRecordDuplicateUniqueKey(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	a := newTestRecord("documents", "A")
	b := newTestRecord("documents", "B")
	if err := st.CreateRecord(ctx, a, "a"); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if err := st.CreateRecord(ctx, b, "b"); err != nil {
		t.Fatalf("create b: %v", err)
	}
	b.Fields["title"] = "a"
	if err := st.UpdateRecord(ctx, b, "a", b.Version); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestDeleteRecordConditional(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := newTestRecord("photos", "Sports Day")
	if err := st.CreateRecord(ctx, rec, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.DeleteRecord(ctx, "photos", rec.ID, 7); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := st.DeleteRecord(ctx, "photos", rec.ID, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.DeleteRecord(ctx, "photos", rec.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListRecordsSearchAndPaging(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for _, title := range []string{"Annual Sports", "Science Fair", "Sports Week"} {
		if err := st.CreateRecord(ctx, newTestRecord("notices", title), ""); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	if err := st.CreateRecord(ctx, newTestRecord("blogs", "Sports blog"), ""); err != nil {
		t.Fatalf("create blog: %v", err)
	}

	all, err := st.ListRecords(ctx, "notices", ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 notices, got %d", len(all))
	}

	sports, err := st.ListRecords(ctx, "notices", ListFilter{Search: "SPORTS"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(sports) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(sports))
	}

	page, err := st.ListRecords(ctx, "notices", ListFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 record on second page, got %d", len(page))
	}

	count, err := st.CountRecords(ctx, "notices", ListFilter{Search: "sports", Limit: 1})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	literal, err := st.ListRecords(ctx, "notices", ListFilter{Search: "%"})
	if err != nil {
		t.Fatalf("search literal: %v", err)
	}
	if len(literal) != 0 {
		t.Fatalf("expected LIKE wildcards to be escaped, got %d matches", len(literal))
	}
}

func TestScanRecordsVisitsAllResources(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for _, resource := range []string{"banners", "blogs", "teachers"} {
		if err := st.CreateRecord(ctx, newTestRecord(resource, resource), ""); err != nil {
			t.Fatalf("create %s: %v", resource, err)
		}
	}

	seen := map[string]int{}
	err := st.ScanRecords(ctx, func(rec models.Record) error {
		seen[rec.Resource]++
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 resources, got %#v", seen)
	}

	stop := errors.New("stop")
	calls := 0
	err = st.ScanRecords(ctx, func(models.Record) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected scan to stop on callback error, calls=%d err=%v", calls, err)
	}
}
