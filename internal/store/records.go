package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"edupanel/internal/models"
)

var (
	// ErrNotFound is returned when a conditional write finds no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique field value is already taken.
	ErrDuplicate = errors.New("duplicate unique value")
	// ErrVersionConflict is returned when a record changed since it was read.
	ErrVersionConflict = errors.New("record was modified concurrently")
)

const recordColumns = "id, resource, version, doc, created_at, updated_at"

// ListFilter narrows record listings.
type ListFilter struct {
	Limit  int
	Offset int
	Search string
}

type recordDoc struct {
	Fields      map[string]any                    `json:"fields"`
	Attachments map[string][]models.AttachmentRef `json:"attachments"`
}

// CreateRecord inserts rec as version 1. uniqueKey is the case-folded unique
// field value, or "" when the resource has none.
func (s *Store) CreateRecord(ctx context.Context, rec *models.Record, uniqueKey string) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	if strings.TrimSpace(rec.Resource) == "" {
		return fmt.Errorf("record resource is required")
	}
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	rec.Version = 1

	doc, err := encodeDoc(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, resource, version, unique_key, doc, search_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Resource,
		rec.Version,
		nullIfEmpty(uniqueKey),
		doc,
		searchText(rec.Fields),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	return classifyWriteErr(err)
}

// GetRecord returns one record, or nil when it does not exist.
func (s *Store) GetRecord(ctx context.Context, resource, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE resource = ? AND id = ?`, resource, id)
	return scanRecord(row)
}

// ListRecords lists records of one resource, newest first.
func (s *Store) ListRecords(ctx context.Context, resource string, filter ListFilter) ([]models.Record, error) {
	where, args := listWhere(resource, filter)
	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, rows.Err()
}

// CountRecords counts records matching the filter, ignoring limit and offset.
func (s *Store) CountRecords(ctx context.Context, resource string, filter ListFilter) (int, error) {
	where, args := listWhere(resource, filter)
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&count)
	return count, err
}

// UpdateRecord replaces rec's document if its stored version still equals
// expectedVersion. On success rec.Version and rec.UpdatedAt are advanced.
func (s *Store) UpdateRecord(ctx context.Context, rec *models.Record, uniqueKey string, expectedVersion int) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	doc, err := encodeDoc(rec)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE records
		 SET version = version + 1, unique_key = ?, doc = ?, search_text = ?, updated_at = ?
		 WHERE resource = ? AND id = ? AND version = ?`,
		nullIfEmpty(uniqueKey),
		doc,
		searchText(rec.Fields),
		formatTime(updatedAt),
		rec.Resource,
		rec.ID,
		expectedVersion,
	)
	if err != nil {
		return classifyWriteErr(err)
	}
	if err := s.checkAffected(ctx, res, rec.Resource, rec.ID); err != nil {
		return err
	}
	rec.Version = expectedVersion + 1
	rec.UpdatedAt = updatedAt
	return nil
}

// DeleteRecord removes a record if its stored version still equals expectedVersion.
func (s *Store) DeleteRecord(ctx context.Context, resource, id string, expectedVersion int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE resource = ? AND id = ? AND version = ?`,
		resource, id, expectedVersion)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, resource, id)
}

// ScanRecords calls fn for every stored record across all resources. fn must
// not call back into the store.
func (s *Store) ScanRecords(ctx context.Context, fn func(models.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY resource, id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if err := fn(*rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) checkAffected(ctx context.Context, res sql.Result, resource, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE resource = ? AND id = ?`, resource, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

func listWhere(resource string, filter ListFilter) (string, []any) {
	clauses := []string{"resource = ?"}
	args := []any{resource}
	if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
		clauses = append(clauses, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q)+"%")
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}

// searchText folds the string field values of a record into one lowercase
// column for substring search.
func searchText(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			parts = append(parts, strings.ToLower(s))
		}
	}
	return strings.Join(parts, "\n")
}

func encodeDoc(rec *models.Record) (string, error) {
	doc := recordDoc{Fields: rec.Fields, Attachments: rec.Attachments}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	if doc.Attachments == nil {
		doc.Attachments = map[string][]models.AttachmentRef{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode record doc: %w", err)
	}
	return string(data), nil
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.Record, error) {
	var rec models.Record
	var doc, createdAt, updatedAt string

	if err := scanner.Scan(&rec.ID, &rec.Resource, &rec.Version, &doc, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var decoded recordDoc
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parse record doc: %w", err)
	}
	rec.Fields = normalizeNumbers(decoded.Fields)
	rec.Attachments = decoded.Attachments
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if rec.Attachments == nil {
		rec.Attachments = map[string][]models.AttachmentRef{}
	}

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parsedCreated
	rec.UpdatedAt = parsedUpdated
	return &rec, nil
}

// normalizeNumbers turns integral JSON numbers back into int64 so values read
// from the store compare equal to freshly parsed input.
func normalizeNumbers(fields map[string]any) map[string]any {
	for k, v := range fields {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if n, err := num.Int64(); err == nil {
			fields[k] = n
			continue
		}
		if f, err := num.Float64(); err == nil {
			fields[k] = f
		}
	}
	return fields
}

func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "records.unique_key") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
