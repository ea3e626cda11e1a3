package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"edupanel/internal/api"
)

func intToString(value int) string {
	return strconv.Itoa(value)
}

func setIfNotEmpty(values url.Values, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	values.Set(key, value)
}

// parseFieldFlags turns repeated --field key=value flags into form values.
// Later pairs win.
func parseFieldFlags(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, err := splitPair(pair, "--field")
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// parseFileFlags turns repeated --file field=path flags into upload parts.
// A field may repeat for multi-file attachments.
func parseFileFlags(pairs []string) ([]api.UploadFile, error) {
	out := make([]api.UploadFile, 0, len(pairs))
	for _, pair := range pairs {
		field, path, err := splitPair(pair, "--file")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("invalid --file %q, path is empty", pair)
		}
		out = append(out, api.UploadFile{Field: field, Path: path})
	}
	return out, nil
}

func splitPair(pair, flag string) (string, string, error) {
	idx := strings.IndexByte(pair, '=')
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid %s format %q, expected key=value", flag, pair)
	}
	return strings.TrimSpace(pair[:idx]), pair[idx+1:], nil
}
