package domain

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SupportedExtensions is the media-format allowlist of §6. Extensions not in
// this set are silently ignored at ingest.
var SupportedExtensions = map[string]bool{
	"wav": true, "mp3": true, "aac": true, "flac": true,
	"mp4": true, "mov": true, "mxf": true,
}

// IsSupportedMediaKey reports whether an object key's extension is one of
// the supported media formats, matched case-insensitively.
func IsSupportedMediaKey(objectKey string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(objectKey)), ".")
	return SupportedExtensions[ext]
}

var policyValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateEnginePolicy validates an EnginePolicy using struct tags, enforcing
// enumerated execution modes and chunking strategies rather than a
// loosely-typed configuration map.
func ValidateEnginePolicy(p EnginePolicy) error {
	if err := policyValidator.Struct(p); err != nil {
		return NewFieldError("ValidateEnginePolicy", KindInvalidInput, "engine_policy", p.Engine, err)
	}
	return nil
}

// ValidateSearchLimit enforces the hard pagination bounds of §4.5/§6.
func ValidateSearchLimit(limit, offset int) error {
	if limit < 1 || limit > 100 {
		return NewFieldError("ValidateSearchLimit", KindInvalidInput, "limit", strconv.Itoa(limit), ErrLimitOutOfRange)
	}
	if offset < 0 {
		return NewFieldError("ValidateSearchLimit", KindInvalidInput, "offset", strconv.Itoa(offset), ErrOffsetNegative)
	}
	return nil
}
