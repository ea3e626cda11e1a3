package server

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"edupanel/internal/api"
	"edupanel/internal/catalog"
	"edupanel/internal/models"
	"edupanel/internal/store"
)

const versionField = "version"

type resourceHandler func(w http.ResponseWriter, r *http.Request, res *catalog.Resource)

func (s *Server) forResource(res *catalog.Resource, fn resourceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, res)
	}
}

// recordInput is a decoded write request before schema validation.
type recordInput struct {
	raw     map[string]any
	files   []FileCandidate
	version int
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request, res *catalog.Resource) {
	limit, err := queryIntDefault(r, "limit", defaultListLimit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("limit must be <= %d", maxListLimit), ErrCodeInvalidQuery))
		return
	}
	offset, err := queryIntDefault(r, "offset", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	filter := store.ListFilter{
		Limit:  limit,
		Offset: offset,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	records, err := s.store.ListRecords(r.Context(), res.Name, filter)
	if err != nil {
		s.writeServiceError(w, r, classifyStoreError(err))
		return
	}
	total, err := s.store.CountRecords(r.Context(), res.Name, filter)
	if err != nil {
		s.writeServiceError(w, r, classifyStoreError(err))
		return
	}

	multiple := res.MultipleFields()
	views := make([]models.View, 0, len(records))
	for _, rec := range records {
		views = append(views, models.View{Record: rec, Multiple: multiple})
	}
	s.writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: fmt.Sprintf("%s fetched", res.Name),
		Data:    views,
		Meta:    &api.ListMeta{Total: total, Limit: limit, Offset: offset},
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request, res *catalog.Resource) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	rec, err := s.store.GetRecord(r.Context(), res.Name, id)
	if err != nil {
		s.writeServiceError(w, r, classifyStoreError(err))
		return
	}
	if rec == nil {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("%s record not found", res.Name), ErrCodeRecordNotFound))
		return
	}
	s.writeData(w, http.StatusOK, fmt.Sprintf("%s record fetched", res.Name), s.view(res, rec))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request, res *catalog.Resource) {
	s.withUploadSlot(w, r, func() {
		in, cleanup, err := s.readRecordInput(w, r)
		defer cleanup()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		fields, err := res.ParseInput(in.raw, false)
		if err != nil {
			s.writeServiceError(w, r, classifyStoreError(err))
			return
		}
		s.sanitizeRichText(res, fields)

		rec, err := s.lifecycle.Create(r.Context(), res, NewStoreAccessor(s.store, res), fields, in.files)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeData(w, http.StatusCreated, fmt.Sprintf("%s record created", res.Name), s.view(res, rec))
	})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request, res *catalog.Resource) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	s.withUploadSlot(w, r, func() {
		in, cleanup, err := s.readRecordInput(w, r)
		defer cleanup()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		patch, err := res.ParseInput(in.raw, true)
		if err != nil {
			s.writeServiceError(w, r, classifyStoreError(err))
			return
		}
		s.sanitizeRichText(res, patch)

		rec, err := s.lifecycle.Update(r.Context(), res, NewStoreAccessor(s.store, res), UpdateInput{
			ID:              id,
			Patch:           patch,
			Files:           in.files,
			ExpectedVersion: in.version,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeData(w, http.StatusOK, fmt.Sprintf("%s record updated", res.Name), s.view(res, rec))
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request, res *catalog.Resource) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	report, err := s.lifecycle.Delete(r.Context(), res, NewStoreAccessor(s.store, res), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeData(w, http.StatusOK, fmt.Sprintf("%s record deleted", res.Name), map[string]any{
		"id":           id,
		"deletedFiles": report.Deleted,
		"failedFiles":  report.Failed,
	})
}

func (s *Server) view(res *catalog.Resource, rec *models.Record) models.View {
	return models.View{Record: *rec, Multiple: res.MultipleFields()}
}

// withUploadSlot bounds concurrent multipart writes; JSON writes carry no
// files and pass straight through.
func (s *Server) withUploadSlot(w http.ResponseWriter, r *http.Request, fn func()) {
	if !isMultipart(r) {
		fn()
		return
	}
	s.withLimiter(w, r, s.uploadLimiter, "upload", fn)
}

func (s *Server) sanitizeRichText(res *catalog.Resource, fields map[string]any) {
	for _, name := range res.RichTextFields() {
		if body, ok := fields[name].(string); ok {
			fields[name] = s.sanitizer.Sanitize(body)
		}
	}
}

// readRecordInput decodes a multipart form or JSON object. The returned
// cleanup removes multipart temp files and is always safe to call.
func (s *Server) readRecordInput(w http.ResponseWriter, r *http.Request) (recordInput, func(), error) {
	noop := func() {}
	if isMultipart(r) {
		return s.readMultipartInput(w, r)
	}

	raw := map[string]any{}
	if err := decodeJSON(w, r, &raw); err != nil {
		return recordInput{}, noop, classifyDecodeJSONError(err)
	}
	version, err := parseVersion(raw[versionField])
	if err != nil {
		return recordInput{}, noop, err
	}
	delete(raw, versionField)
	return recordInput{raw: raw, version: version}, noop, nil
}

func (s *Server) readMultipartInput(w http.ResponseWriter, r *http.Request) (recordInput, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxRequestBytes)
	if err := r.ParseMultipartForm(s.uploads.MultipartMaxMemory); err != nil {
		return recordInput{}, noop, classifyMultipartError(err)
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	in := recordInput{raw: map[string]any{}}
	for key, values := range form.Value {
		if len(values) == 0 {
			continue
		}
		if key == versionField {
			version, err := parseVersion(values[0])
			if err != nil {
				return recordInput{}, cleanup, err
			}
			in.version = version
			continue
		}
		in.raw[key] = values[0]
	}
	for key, headers := range form.File {
		field := strings.TrimSuffix(key, "[]")
		for _, fh := range headers {
			// Browsers send an empty part for a file input left blank.
			if fh.Filename == "" && fh.Size == 0 {
				continue
			}
			in.files = append(in.files, candidateFromHeader(field, fh))
		}
	}
	return in, cleanup, nil
}

func candidateFromHeader(field string, fh *multipart.FileHeader) FileCandidate {
	return FileCandidate{
		Field:        field,
		OriginalName: fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
		Size:         fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseVersion(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		if v < 0 || v != float64(int(v)) {
			return 0, badRequestCode(fmt.Errorf("invalid version"), ErrCodeInvalidField)
		}
		return int(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return 0, badRequestCode(fmt.Errorf("invalid version"), ErrCodeInvalidField)
		}
		return parsed, nil
	default:
		return 0, badRequestCode(fmt.Errorf("invalid version"), ErrCodeInvalidField)
	}
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidForm)
}
