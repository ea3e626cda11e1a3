package models

import (
	"fmt"
	"strings"
)

// AttachmentRef binds one stored blob to one record field.
type AttachmentRef struct {
	StoragePath  string `json:"storagePath"`
	OriginalName string `json:"originalName,omitempty"`
	SizeBytes    int64  `json:"sizeBytes"`
	MimeType     string `json:"mimeType,omitempty"`
}

// UploadProfile selects the gatekeeper policy for an attachment field.
type UploadProfile string

const (
	UploadProfileGeneral UploadProfile = "general"
	UploadProfilePhoto   UploadProfile = "photo"
)

// NamingMode selects how stored file names are derived.
type NamingMode string

const (
	NamingModeOpaque       NamingMode = "opaque"
	NamingModeKeepOriginal NamingMode = "keep_original"
)

var validUploadProfiles = map[UploadProfile]struct{}{
	UploadProfileGeneral: {},
	UploadProfilePhoto:   {},
}

var validNamingModes = map[NamingMode]struct{}{
	NamingModeOpaque:       {},
	NamingModeKeepOriginal: {},
}

func ParseUploadProfile(raw string) (UploadProfile, error) {
	value := UploadProfile(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return UploadProfileGeneral, nil
	}
	if _, ok := validUploadProfiles[value]; !ok {
		return "", fmt.Errorf("invalid upload profile: %s", value)
	}
	return value, nil
}

func ParseNamingMode(raw string) (NamingMode, error) {
	value := NamingMode(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return NamingModeOpaque, nil
	}
	if _, ok := validNamingModes[value]; !ok {
		return "", fmt.Errorf("invalid naming mode: %s", value)
	}
	return value, nil
}
