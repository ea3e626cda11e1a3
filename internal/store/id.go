package store

import (
	"strings"

	"github.com/google/uuid"
)

// NewRecordID returns a new random record id.
func NewRecordID() string {
	return uuid.NewString()
}

// ValidRecordID reports whether id has the canonical record id shape.
func ValidRecordID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
