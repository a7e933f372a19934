package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/model"
	"github.com/dropbeam/dropbeam/internal/storage"
	"github.com/dropbeam/dropbeam/internal/validation"
)

// UploadService runs chunked transfers: admission against the quota
// policy, chunk ingestion, assembly and hand-off to object storage, and
// the resulting session mutation and event fan-out.
type UploadService struct {
	sessions *SessionService
	store    storage.Storage
	events   *hub.Hub
	limits   validation.Limits

	recommendedChunkSize int64
	maxChunkSize         int64
	targetChunkCount     int64
	inactivityTimeout    time.Duration
}

func NewUploadService(
	sessions *SessionService,
	store storage.Storage,
	events *hub.Hub,
	limits validation.Limits,
	recommendedChunkSize, maxChunkSize, targetChunkCount int64,
	inactivityTimeout time.Duration,
) *UploadService {
	return &UploadService{
		sessions:             sessions,
		store:                store,
		events:               events,
		limits:               limits,
		recommendedChunkSize: recommendedChunkSize,
		maxChunkSize:         maxChunkSize,
		targetChunkCount:     targetChunkCount,
		inactivityTimeout:    inactivityTimeout,
	}
}

// UploadInit is the admission result returned to the sender.
type UploadInit struct {
	UploadID             string
	RecommendedChunkSize int64
	MaxChunkSize         int64
}

// ChunkReceipt acknowledges one received chunk.
type ChunkReceipt struct {
	ChunkIndex    int
	BytesReceived int64
	Percent       int
}

// Init admits a new file transfer into a session. The declared size is
// checked against both the per-file limit and the session's remaining
// capacity; the authoritative check happens again at finalize with the
// actual byte count. Admission flips the session to uploading.
func (s *UploadService) Init(ctx context.Context, token, fileName string, declaredSize int64, mimeType string) (*UploadInit, error) {
	err := s.limits.FileSize(declaredSize)
	if err != nil {
		return nil, err
	}
	err = s.limits.MimeType(mimeType)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Active(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, ErrSessionCompleted
	}
	err = s.limits.SessionCapacity(session.TotalBytes, declaredSize)
	if err != nil {
		return nil, err
	}

	err = s.sessions.MarkUploading(ctx, token)
	if err != nil {
		return nil, err
	}

	up := &inflightUpload{
		id:           uuid.New().String(),
		sessionToken: token,
		fileName:     fileName,
		declaredSize: declaredSize,
		mimeType:     mimeType,
		chunks:       make(map[int][]byte),
		lastActivity: time.Now(),
	}
	s.sessions.tracker.add(up)

	s.events.Publish(token, hub.UploadStarted{
		FileName: fileName,
		Size:     declaredSize,
	})

	slog.Info("upload initialized",
		"upload", up.id,
		"session", token,
		"file_name", fileName,
		"size", declaredSize,
	)

	return &UploadInit{
		UploadID:             up.id,
		RecommendedChunkSize: s.recommendChunkSize(declaredSize),
		MaxChunkSize:         s.maxChunkSize,
	}, nil
}

// recommendChunkSize suggests a chunk size for the client's benefit. The
// suggestion is advisory; any chunk up to MaxChunkSize is accepted.
func (s *UploadService) recommendChunkSize(declaredSize int64) int64 {
	perChunk := (declaredSize + s.targetChunkCount - 1) / s.targetChunkCount
	if perChunk > s.recommendedChunkSize {
		return s.recommendedChunkSize
	}
	if perChunk < 1 {
		return 1
	}
	return perChunk
}

// PutChunk ingests one chunk. Indexes may arrive out of order and a
// retransmitted index overwrites its previous bytes without
// double-counting. Fails once the owning session expires.
func (s *UploadService) PutChunk(ctx context.Context, uploadID string, index int, data []byte) (*ChunkReceipt, error) {
	if int64(len(data)) > s.maxChunkSize {
		return nil, ErrChunkTooLarge
	}

	up, ok := s.sessions.tracker.get(uploadID)
	if !ok {
		return nil, ErrUnknownUpload
	}

	_, err := s.sessions.Active(ctx, up.sessionToken)
	if err != nil {
		return nil, err
	}

	received, percent := up.putChunk(index, data)

	s.events.Publish(up.sessionToken, hub.UploadProgress{
		Percent:       percent,
		BytesReceived: received,
		TotalBytes:    up.declaredSize,
	})

	slog.Debug("chunk received",
		"upload", uploadID,
		"chunk_index", index,
		"chunk_size", len(data),
		"progress", percent,
	)

	return &ChunkReceipt{
		ChunkIndex:    index,
		BytesReceived: received,
		Percent:       percent,
	}, nil
}

// Finalize assembles the chunks in index order, re-validates the session's
// capacity with the actual byte count, stores the file and appends the
// record to the session. On storage failure the upload is discarded and
// the session left untouched.
func (s *UploadService) Finalize(ctx context.Context, uploadID string) (*model.File, error) {
	up, ok := s.sessions.tracker.get(uploadID)
	if !ok {
		return nil, ErrUnknownUpload
	}
	token := up.sessionToken

	session, err := s.sessions.Active(ctx, token)
	if err != nil {
		return nil, err
	}

	data, err := up.assemble()
	if err != nil {
		return nil, err
	}

	// Fast pre-check with the actual size; the authoritative check runs
	// inside AttachFile under the session lock. A session's total only
	// grows, so an upload that fails this check can never fit: discard it.
	err = s.limits.SessionCapacity(session.TotalBytes, int64(len(data)))
	if err != nil {
		s.sessions.tracker.remove(uploadID)
		s.events.Publish(token, hub.UploadError{Reason: "session storage quota exceeded"})
		return nil, err
	}

	objectPath := fmt.Sprintf("sessions/%s/%s%s", token, uuid.New().String(), filepath.Ext(up.fileName))
	result, err := s.store.Store(ctx, objectPath, bytes.NewReader(data))
	if err != nil {
		s.sessions.tracker.remove(uploadID)
		s.events.Publish(token, hub.UploadError{Reason: "file upload to storage failed"})
		slog.Error("storage upload failed", "error", err, "upload", uploadID, "session", token)
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	file := &model.File{
		SessionToken: token,
		OriginalName: up.fileName,
		MimeType:     up.mimeType,
		SizeBytes:    result.Size,
		StorageRef:   result.Ref,
		SecureURL:    result.SecureURL,
		Checksum:     result.Checksum,
		UploadedAt:   time.Now(),
	}

	err = s.sessions.AttachFile(ctx, token, file)
	if err != nil {
		// The object is orphaned if we keep it; release it best effort.
		delErr := s.store.Delete(ctx, result.Ref)
		if delErr != nil {
			slog.Warn("failed to delete orphaned object", "error", delErr, "storage_ref", result.Ref)
		}
		s.sessions.tracker.remove(uploadID)
		s.events.Publish(token, hub.UploadError{Reason: "failed to record uploaded file"})
		return nil, err
	}

	s.sessions.tracker.remove(uploadID)
	s.events.Publish(token, hub.UploadComplete{File: file})

	slog.Info("upload completed",
		"upload", uploadID,
		"session", token,
		"file_name", file.OriginalName,
		"size", file.SizeBytes,
		"storage_ref", file.StorageRef,
	)

	return file, nil
}

// Abandon discards an in-flight upload without finalizing. Idempotent;
// used for client cancellation and by the inactivity sweep.
func (s *UploadService) Abandon(uploadID string) {
	s.sessions.tracker.remove(uploadID)
}

// SweepInactive discards uploads that have not seen a chunk within the
// inactivity window. Returns how many were dropped.
func (s *UploadService) SweepInactive(now time.Time) int {
	ids := s.sessions.tracker.stale(now.Add(-s.inactivityTimeout))
	for _, id := range ids {
		s.sessions.tracker.remove(id)
		slog.Info("inactive upload discarded", "upload", id)
	}
	return len(ids)
}
