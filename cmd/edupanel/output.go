package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"edupanel/internal/api"
	"edupanel/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

// Keys printed in a fixed order ahead of resource-specific fields.
var recordHeaderKeys = []string{"id", "resource", "version", "createdAt", "updatedAt"}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeRecordList(page api.RecordPage) error {
	for _, rec := range page.Records {
		if err := writePlain("%s\n", formatRecordLine(rec)); err != nil {
			return err
		}
	}
	if page.Meta.Total > len(page.Records) {
		return writePlain("(%d of %d, offset %d)\n", len(page.Records), page.Meta.Total, page.Meta.Offset)
	}
	return nil
}

func writeRecordDetail(rec map[string]any) error {
	lines := make([]string, 0, len(rec))
	for _, key := range recordHeaderKeys {
		if value, ok := rec[key]; ok {
			lines = append(lines, fmt.Sprintf("%s: %s", key, formatValue(key, value)))
		}
	}
	for _, key := range recordFieldKeys(rec) {
		lines = append(lines, fmt.Sprintf("%s: %s", key, formatValue(key, rec[key])))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatRecordLine(rec map[string]any) string {
	label := ""
	for _, key := range []string{"title", "name", "year"} {
		if value, ok := rec[key]; ok && value != nil {
			label = fmt.Sprint(value)
			break
		}
	}
	return fmt.Sprintf("%v [v%v] %s", rec["id"], rec["version"], label)
}

func recordFieldKeys(rec map[string]any) []string {
	skip := make(map[string]struct{}, len(recordHeaderKeys)+1)
	for _, key := range recordHeaderKeys {
		skip[key] = struct{}{}
	}
	skip["files"] = struct{}{}

	keys := make([]string, 0, len(rec))
	for key := range rec {
		if _, ok := skip[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func formatValue(key string, value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		if key == "createdAt" || key == "updatedAt" {
			if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return formatTime(parsed)
			}
		}
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
