package main

import (
	"context"
	"errors"
	"net"

	"edupanel/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	if apiErr, ok := api.AsAPIError(err); ok {
		switch {
		case apiErr.Busy():
			lines = append(lines, "hint: retry shortly; uploads and sweeps are limited to a few at a time.")
		case apiErr.Code == "not_found":
			lines = append(lines, "hint: run `edupanel resources` to list valid resource names.")
		case apiErr.IsVersionConflict():
			lines = append(lines, "hint: the record changed since it was read; fetch it again and retry with the new --version.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify EDUPANEL_API_URL points to an edupanel server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase EDUPANEL_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an edupanel server is running at EDUPANEL_API_URL.",
			"hint: start local server manually with: edupanel srv",
			"hint: you can increase EDUPANEL_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
