package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordViewFlattensAttachments(t *testing.T) {
	rec := Record{
		ID:       "r1",
		Resource: "sliders",
		Version:  2,
		Fields:   map[string]any{"title": "Welcome"},
		Attachments: map[string][]AttachmentRef{
			"images": {
				{StoragePath: "/api/uploads/sliders/images-1-1.png", SizeBytes: 3},
				{StoragePath: "/api/uploads/sliders/images-1-2.png", SizeBytes: 4},
			},
			"cover": {{StoragePath: "/api/uploads/sliders/cover-1-3.jpg"}},
			"logo":  {},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(View{Record: rec, Multiple: map[string]bool{"images": true}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got["title"] != "Welcome" || got["id"] != "r1" || got["version"] != float64(2) {
		t.Fatalf("unexpected scalar fields: %#v", got)
	}
	if got["cover"] != "/api/uploads/sliders/cover-1-3.jpg" {
		t.Fatalf("expected single path for cover, got %#v", got["cover"])
	}
	if got["logo"] != nil {
		t.Fatalf("expected null logo, got %#v", got["logo"])
	}
	images, ok := got["images"].([]any)
	if !ok || len(images) != 2 || images[1] != "/api/uploads/sliders/images-1-2.png" {
		t.Fatalf("expected image path list, got %#v", got["images"])
	}
	files, ok := got["files"].(map[string]any)
	if !ok || len(files) != 3 {
		t.Fatalf("expected files metadata, got %#v", got["files"])
	}
}

func TestRecordCloneIsIndependent(t *testing.T) {
	rec := Record{
		Fields:      map[string]any{"name": "a"},
		Attachments: map[string][]AttachmentRef{"photo": {{StoragePath: "/api/uploads/p.png"}}},
	}
	clone := rec.Clone()
	clone.Fields["name"] = "b"
	clone.Attachments["photo"][0].StoragePath = "/api/uploads/q.png"

	if rec.Fields["name"] != "a" {
		t.Fatalf("clone mutated fields: %#v", rec.Fields)
	}
	if rec.Attachments["photo"][0].StoragePath != "/api/uploads/p.png" {
		t.Fatalf("clone mutated attachments: %#v", rec.Attachments)
	}
}

func TestParseUploadProfile(t *testing.T) {
	got, err := ParseUploadProfile(" PHOTO ")
	if err != nil {
		t.Fatalf("parse profile: %v", err)
	}
	if got != UploadProfilePhoto {
		t.Fatalf("expected %q, got %q", UploadProfilePhoto, got)
	}
	if got, _ := ParseUploadProfile(""); got != UploadProfileGeneral {
		t.Fatalf("expected empty profile to default to general, got %q", got)
	}
	if _, err := ParseUploadProfile("video"); err == nil {
		t.Fatal("expected invalid profile error")
	}
}

func TestParseNamingMode(t *testing.T) {
	got, err := ParseNamingMode("keep_original")
	if err != nil {
		t.Fatalf("parse naming: %v", err)
	}
	if got != NamingModeKeepOriginal {
		t.Fatalf("expected %q, got %q", NamingModeKeepOriginal, got)
	}
	if _, err := ParseNamingMode("sequential"); err == nil {
		t.Fatal("expected invalid naming mode error")
	}
}
