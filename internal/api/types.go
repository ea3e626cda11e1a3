package api

import "encoding/json"

// Response is the success envelope written by every JSON endpoint.
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Meta    *ListMeta `json:"meta,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

// Envelope is the client-side view of either response shape.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Meta      *ListMeta       `json:"meta,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode int             `json:"errorCode,omitempty"`
}

// ListMeta describes one page of a record listing.
type ListMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// UploadResponse is returned by the editor image upload endpoint.
type UploadResponse struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName,omitempty"`
	SizeBytes    int64  `json:"sizeBytes"`
	MimeType     string `json:"mimeType,omitempty"`
}

// SweepRequest asks the server to reconcile orphaned blobs. An omitted
// dryRun, or an empty body, is a dry run.
type SweepRequest struct {
	DryRun *bool  `json:"dryRun,omitempty"`
	MinAge string `json:"minAge,omitempty"`
}

// NewSweepRequest builds a request that deletes only when apply is set.
func NewSweepRequest(apply bool, minAge string) SweepRequest {
	dryRun := !apply
	return SweepRequest{DryRun: &dryRun, MinAge: minAge}
}

// IsDryRun reports whether the sweep only lists candidates.
func (r SweepRequest) IsDryRun() bool {
	return r.DryRun == nil || *r.DryRun
}

// SweepResponse summarizes one orphan sweep.
type SweepResponse struct {
	DryRun         bool     `json:"dryRun"`
	ScannedBlobs   int      `json:"scannedBlobs"`
	ReferencedKeys int      `json:"referencedKeys"`
	SkippedRecent  int      `json:"skippedRecent"`
	CandidateCount int      `json:"candidateCount"`
	DeletedCount   int      `json:"deletedCount"`
	FailedCount    int      `json:"failedCount"`
	ReclaimedBytes int64    `json:"reclaimedBytes"`
	Candidates     []string `json:"candidates"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ResourceInfo describes one catalog resource as served by GET /api/resources.
type ResourceInfo struct {
	Name        string               `json:"name"`
	UniqueField string               `json:"uniqueField,omitempty"`
	Fields      []ResourceField      `json:"fields"`
	Attachments []ResourceAttachment `json:"attachments"`
}

type ResourceField struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Required  bool   `json:"required"`
	MaxLength int    `json:"maxLength,omitempty"`
}

type ResourceAttachment struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Multiple bool   `json:"multiple"`
	MaxFiles int    `json:"maxFiles,omitempty"`
	Profile  string `json:"profile"`
	Subdir   string `json:"subdir"`
	Default  string `json:"default,omitempty"`
}

// RecordPage is one page of a record listing.
type RecordPage struct {
	Records []map[string]any
	Meta    ListMeta
}

// DeleteResponse reports a record deletion and its file cleanup.
type DeleteResponse struct {
	ID           string `json:"id"`
	DeletedFiles int    `json:"deletedFiles"`
	FailedFiles  int    `json:"failedFiles"`
}

// UploadFile names a local file sent as one multipart part.
type UploadFile struct {
	Field string
	Path  string
}
