package storage

import (
	"context"
	"io"
	"time"
)

// StoreResult describes a stored object. The core passes Ref/SecureURL/
// Checksum through to file records without interpreting them.
type StoreResult struct {
	Ref       string
	SecureURL string
	Size      int64
	Checksum  string
}

// Storage is the object storage collaborator. Finalized uploads are stored
// exactly once; expired sessions have their objects deleted by the sweeper.
type Storage interface {
	Store(ctx context.Context, path string, r io.Reader) (*StoreResult, error)
	Delete(ctx context.Context, path string) error
	PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}
