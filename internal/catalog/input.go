package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const dateLayout = "2006-01-02"

// FieldError reports one rejected input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ParseInput validates raw client values against the resource schema and
// returns typed values. With partial set, absent fields are left out and
// required checks only apply to fields that are present.
//
// Attachment field names and envelope keys are ignored; files only change
// through uploads.
func (r *Resource) ParseInput(raw map[string]any, partial bool) (map[string]any, error) {
	out := make(map[string]any, len(r.Fields))

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := r.Field(key); ok {
			continue
		}
		if _, ok := r.Attachment(key); ok {
			continue
		}
		if _, ok := reservedFieldNames[key]; ok {
			continue
		}
		return nil, &FieldError{Field: key, Reason: "is not a known field"}
	}

	for _, spec := range r.Fields {
		value, present := raw[spec.Name]
		if !present {
			if spec.Required && !partial {
				return nil, &FieldError{Field: spec.Name, Reason: "is required"}
			}
			continue
		}
		parsed, err := parseValue(spec, value)
		if err != nil {
			return nil, err
		}
		if parsed == nil && spec.Required {
			return nil, &FieldError{Field: spec.Name, Reason: "is required"}
		}
		out[spec.Name] = parsed
	}
	return out, nil
}

// parseValue returns nil for empty values.
func parseValue(spec FieldSpec, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
		if value == "" {
			return nil, nil
		}
	}

	switch spec.Kind {
	case KindText, KindRichText:
		s, ok := value.(string)
		if !ok {
			return nil, &FieldError{Field: spec.Name, Reason: "must be a string"}
		}
		if spec.MaxLength > 0 && utf8.RuneCountInString(s) > spec.MaxLength {
			return nil, &FieldError{Field: spec.Name, Reason: fmt.Sprintf("must be at most %d characters", spec.MaxLength)}
		}
		return s, nil
	case KindInt:
		switch v := value.(type) {
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, &FieldError{Field: spec.Name, Reason: "must be an integer"}
			}
			return n, nil
		case float64:
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return nil, &FieldError{Field: spec.Name, Reason: "must be an integer"}
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
		return nil, &FieldError{Field: spec.Name, Reason: "must be an integer"}
	case KindDate:
		s, ok := value.(string)
		if !ok {
			return nil, &FieldError{Field: spec.Name, Reason: "must be a date (YYYY-MM-DD)"}
		}
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t.Format(dateLayout), nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC().Format(dateLayout), nil
		}
		return nil, &FieldError{Field: spec.Name, Reason: "must be a date (YYYY-MM-DD)"}
	case KindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, &FieldError{Field: spec.Name, Reason: "must be a boolean"}
			}
			return b, nil
		}
		return nil, &FieldError{Field: spec.Name, Reason: "must be a boolean"}
	}
	return nil, &FieldError{Field: spec.Name, Reason: "has an unsupported kind"}
}
