package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "EDUPANEL_HTTP_TIMEOUT"
	uploadPrefix       = "/api/uploads"
)

// Client is a simple HTTP client for the edupanel API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	var resp []ResourceInfo
	err := c.do(ctx, http.MethodGet, "/api/resources", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListRecords(ctx context.Context, resource string, query url.Values) (RecordPage, error) {
	var page RecordPage
	env, err := c.send(ctx, http.MethodGet, resourcePath(resource), query, nil, "", nil)
	if err != nil {
		return page, err
	}
	if err := decodeData(env, &page.Records); err != nil {
		return page, err
	}
	if env.Meta != nil {
		page.Meta = *env.Meta
	}
	return page, nil
}

func (c *Client) GetRecord(ctx context.Context, resource, id string) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, resourcePath(resource)+"/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// CreateRecord sends fields and files as one multipart form.
func (c *Client) CreateRecord(ctx context.Context, resource string, fields map[string]string, files []UploadFile) (map[string]any, error) {
	var resp map[string]any
	err := c.doMultipart(ctx, http.MethodPost, resourcePath(resource), fields, files, &resp)
	return resp, err
}

// UpdateRecord patches a record. A zero version skips the concurrency check.
func (c *Client) UpdateRecord(ctx context.Context, resource, id string, version int, fields map[string]string, files []UploadFile) (map[string]any, error) {
	if version > 0 {
		merged := make(map[string]string, len(fields)+1)
		for k, v := range fields {
			merged[k] = v
		}
		merged["version"] = strconv.Itoa(version)
		fields = merged
	}
	var resp map[string]any
	err := c.doMultipart(ctx, http.MethodPut, resourcePath(resource)+"/"+url.PathEscape(id), fields, files, &resp)
	return resp, err
}

func (c *Client) DeleteRecord(ctx context.Context, resource, id string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, resourcePath(resource)+"/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// UploadEditorImage stores one file for embedding in rich text.
func (c *Client) UploadEditorImage(ctx context.Context, path string) (UploadResponse, error) {
	var resp UploadResponse
	err := c.doMultipart(ctx, http.MethodPost, uploadPrefix, nil, []UploadFile{{Field: "file", Path: path}}, &resp)
	return resp, err
}

// SweepOrphans runs an orphan sweep. Deleting sweeps require confirm.
func (c *Client) SweepOrphans(ctx context.Context, req SweepRequest, confirm bool) (SweepResponse, error) {
	var resp SweepResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	headers := map[string]string{}
	if confirm {
		headers["X-Confirm"] = "true"
	}
	env, err := c.send(ctx, http.MethodPost, "/api/admin/sweep-orphans", nil, bytes.NewReader(payload), "application/json", headers)
	if err != nil {
		return resp, err
	}
	err = decodeData(env, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	env, err := c.send(ctx, method, path, query, reader, contentType, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(env, out)
}

func (c *Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, files []UploadFile, out any) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := writeFilePart(mw, f); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	env, err := c.send(ctx, method, path, nil, body, mw.FormDataContentType(), nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(env, out)
}

func writeFilePart(mw *multipart.Writer, f UploadFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	name := filepath.Base(f.Path)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, headers map[string]string) (*Envelope, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func decodeData(env *Envelope, out any) error {
	if env == nil || len(env.Data) == 0 || out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func decodeError(resp *http.Response) error {
	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && (env.Message != "" || env.Error != "") {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      env.Error,
			ErrorCode: env.ErrorCode,
			Message:   env.Message,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func resourcePath(resource string) string {
	return "/api/" + url.PathEscape(strings.TrimSpace(resource))
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
