package main

import (
	"context"
	"fmt"
	"net"
	"testing"

	"edupanel/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: ensure an edupanel server is running at EDUPANEL_API_URL.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: start local server manually with: edupanel srv") {
		t.Fatalf("expected manual-start guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIGuidance(t *testing.T) {
	tests := []struct {
		name string
		err  *api.APIError
		want string
	}{
		{
			name: "unknown service",
			err:  &api.APIError{Status: 404, Message: "api error: 404 Not Found"},
			want: "hint: verify EDUPANEL_API_URL points to an edupanel server.",
		},
		{
			name: "busy",
			err:  &api.APIError{Status: 429, Code: "resource_exhausted", Message: "too many uploads"},
			want: "hint: retry shortly; uploads and sweeps are limited to a few at a time.",
		},
		{
			name: "unknown resource",
			err:  &api.APIError{Status: 404, Code: "not_found", Message: "unknown resource"},
			want: "hint: run `edupanel resources` to list valid resource names.",
		},
		{
			name: "version conflict",
			err:  &api.APIError{Status: 409, Code: "conflict", Message: "version conflict"},
			want: "hint: the record changed since it was read; fetch it again and retry with the new --version.",
		},
		{
			name: "internal",
			err:  &api.APIError{Status: 500, Code: "internal", Message: "internal error"},
			want: "hint: server returned an internal error; check server logs for details.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines := formatCLIError(tc.err)
			if !containsLine(lines, tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, lines)
			}
		})
	}
}

func TestFormatCLIError_DuplicateHasNoVersionHint(t *testing.T) {
	err := &api.APIError{Status: 400, Code: "conflict", Message: "title already exists"}
	lines := formatCLIError(err)
	if len(lines) != 1 {
		t.Fatalf("expected only the error line, got %v", lines)
	}
}

func TestFormatCLIError_Timeout(t *testing.T) {
	err := fmt.Errorf("list: %w", context.DeadlineExceeded)
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: request timed out; check server health or increase EDUPANEL_HTTP_TIMEOUT.") {
		t.Fatalf("expected timeout guidance, got %v", lines)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
