package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the error envelope of a failed edupanel request. Code is the
// short category ("not_found", "conflict") and ErrorCode the numeric detail
// the server assigns, such as 1021 for a rejected file.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Code != "" && e.ErrorCode > 0:
		return fmt.Sprintf("%s (%d): %s", e.Code, e.ErrorCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("api error: %d", e.Status)
	}
	return "api error"
}

// IsVersionConflict reports whether a conditional write lost to a
// concurrent change. Duplicate unique values share the "conflict" code but
// come back as 400.
func (e *APIError) IsVersionConflict() bool {
	return e != nil && e.Status == http.StatusConflict
}

// Busy reports whether the server turned the request away at a limiter.
func (e *APIError) Busy() bool {
	return e != nil && (e.Status == http.StatusTooManyRequests || e.Code == "resource_exhausted")
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
