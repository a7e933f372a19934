package model

import (
	"time"
)

// File is a completed upload attached to a session. Immutable once
// appended. StorageRef/SecureURL/Checksum come from the object storage
// collaborator and are passed through without interpretation.
type File struct {
	ID           int64     `db:"id"`
	SessionToken string    `db:"session_token"`
	OriginalName string    `db:"original_name"`
	MimeType     string    `db:"mime_type"`
	SizeBytes    int64     `db:"size_bytes"`
	StorageRef   string    `db:"storage_ref"`
	SecureURL    string    `db:"secure_url"`
	Checksum     string    `db:"checksum"`
	UploadedAt   time.Time `db:"uploaded_at"`
}
