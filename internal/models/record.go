package models

import (
	"encoding/json"
	"time"
)

// Record is one document of a catalog resource.
type Record struct {
	ID          string                     `json:"id"`
	Resource    string                     `json:"resource"`
	Version     int                        `json:"version"`
	Fields      map[string]any             `json:"fields"`
	Attachments map[string][]AttachmentRef `json:"attachments"`
	CreatedAt   time.Time                  `json:"createdAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

// Clone returns a copy whose maps can be mutated independently.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	out.Attachments = make(map[string][]AttachmentRef, len(r.Attachments))
	for k, refs := range r.Attachments {
		out.Attachments[k] = append([]AttachmentRef(nil), refs...)
	}
	return out
}

// AllAttachmentRefs returns every ref held by the record.
func (r Record) AllAttachmentRefs() []AttachmentRef {
	var out []AttachmentRef
	for _, refs := range r.Attachments {
		out = append(out, refs...)
	}
	return out
}

// View renders a record the way API clients see it: a flat object whose
// attachment fields hold public paths, with full metadata under "files".
type View struct {
	Record   Record
	Multiple map[string]bool
}

func (v View) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Record.Fields)+len(v.Record.Attachments)+6)
	for k, val := range v.Record.Fields {
		out[k] = val
	}
	files := make(map[string][]AttachmentRef, len(v.Record.Attachments))
	for field, refs := range v.Record.Attachments {
		files[field] = refs
		if v.Multiple[field] {
			paths := make([]string, 0, len(refs))
			for _, ref := range refs {
				paths = append(paths, ref.StoragePath)
			}
			out[field] = paths
			continue
		}
		if len(refs) > 0 {
			out[field] = refs[0].StoragePath
		} else {
			out[field] = nil
		}
	}
	out["id"] = v.Record.ID
	out["resource"] = v.Record.Resource
	out["version"] = v.Record.Version
	out["files"] = files
	out["createdAt"] = v.Record.CreatedAt
	out["updatedAt"] = v.Record.UpdatedAt
	return json.Marshal(out)
}
