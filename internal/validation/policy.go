package validation

import (
	"errors"
	"time"
)

var (
	ErrInvalidDuration = errors.New("invalid session duration")
	ErrFileTooLarge    = errors.New("file exceeds maximum file size")
	ErrQuotaExceeded   = errors.New("session storage quota exceeded")
	ErrMimeRejected    = errors.New("mime type not allowed")
)

// Limits holds the configured upload ceilings. All checks are pure
// functions so they can be applied both at upload init (declared size)
// and again at finalize time, where the actual received byte count is
// authoritative.
type Limits struct {
	MaxFileSizeBytes int64
	MaxSessionBytes  int64
	MaxDuration      time.Duration

	// AllowedMimeTypes is an optional allow-list. Empty means every
	// mime type is admitted.
	AllowedMimeTypes map[string]bool
}

// FileSize validates a single file size against the per-file maximum.
func (l Limits) FileSize(sizeBytes int64) error {
	if sizeBytes <= 0 || sizeBytes > l.MaxFileSizeBytes {
		return ErrFileTooLarge
	}
	return nil
}

// SessionCapacity validates that adding sizeBytes to the session's current
// total stays within the per-session maximum.
func (l Limits) SessionCapacity(currentTotal, sizeBytes int64) error {
	if currentTotal+sizeBytes > l.MaxSessionBytes {
		return ErrQuotaExceeded
	}
	return nil
}

// MimeType validates a mime type against the allow-list, if one is set.
func (l Limits) MimeType(mime string) error {
	if len(l.AllowedMimeTypes) == 0 {
		return nil
	}
	if !l.AllowedMimeTypes[mime] {
		return ErrMimeRejected
	}
	return nil
}

// Duration validates a requested session lifetime. Zero and negative
// durations are rejected; anything above the maximum is allowed here and
// clamped by ClampDuration.
func (l Limits) Duration(requested time.Duration) error {
	if requested <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// ClampDuration caps a requested session lifetime at the configured
// maximum.
func (l Limits) ClampDuration(requested time.Duration) time.Duration {
	if requested > l.MaxDuration {
		return l.MaxDuration
	}
	return requested
}
