package model

import (
	"time"
)

const (
	SessionStatusWaiting   = "waiting"
	SessionStatusUploading = "uploading"
	SessionStatusCompleted = "completed"
)

// Session is a receiver-initiated, time-bounded drop box identified by an
// opaque token. Files accumulate in insertion order; TotalBytes always
// equals the sum of the file sizes (enforced by the repository, which only
// bumps it together with a file insert).
type Session struct {
	Token      string    `db:"token"`
	Status     string    `db:"status"`
	TotalBytes int64     `db:"total_bytes"`
	Version    int64     `db:"version"` // optimistic concurrency
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`

	Files []*File `db:"-"`
}

// Expired reports whether the session is past its wall-clock deadline.
// Expiry is a property of the clock, not a stored status: the sweep
// deletes expired rows outright, and callers must treat an
// expired-but-unswept session the same as a swept one.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
