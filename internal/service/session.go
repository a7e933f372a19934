package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/model"
	"github.com/dropbeam/dropbeam/internal/repository"
	"github.com/dropbeam/dropbeam/internal/storage"
	"github.com/dropbeam/dropbeam/internal/validation"
)

// SessionService owns the session lifecycle: creation with a clamped TTL
// and a QR code, status transitions, file attachment, deletion and the
// expiry sweep. Mutation of one session is serialized by a per-token lock;
// sessions never share locks.
type SessionService struct {
	repo    repository.SessionRepository
	store   storage.Storage
	qr      *QRService
	events  *hub.Hub
	limits  validation.Limits
	locks   *sessionLocks
	tracker *tracker

	appURL        string
	defaultExpiry time.Duration
	presignExpiry time.Duration
}

func NewSessionService(
	repo repository.SessionRepository,
	store storage.Storage,
	qr *QRService,
	events *hub.Hub,
	limits validation.Limits,
	appURL string,
	defaultExpiry time.Duration,
	presignExpiry time.Duration,
) *SessionService {
	return &SessionService{
		repo:          repo,
		store:         store,
		qr:            qr,
		events:        events,
		limits:        limits,
		locks:         newSessionLocks(),
		tracker:       newTracker(),
		appURL:        appURL,
		defaultExpiry: defaultExpiry,
		presignExpiry: presignExpiry,
	}
}

// CreatedSession is the session-creation result handed to the receiver.
type CreatedSession struct {
	Session   *model.Session
	QRDataURL string
	UploadURL string
}

// Create builds a new waiting session. The requested lifetime is clamped
// to the configured maximum; zero means "use the default". QR rendering is
// a required step: if it fails, no session is created.
func (s *SessionService) Create(ctx context.Context, requestedTTL time.Duration) (*CreatedSession, error) {
	if requestedTTL == 0 {
		requestedTTL = s.defaultExpiry
	}
	err := s.limits.Duration(requestedTTL)
	if err != nil {
		return nil, err
	}
	ttl := s.limits.ClampDuration(requestedTTL)

	now := time.Now()
	session := &model.Session{
		Token:     uuid.New().String(),
		Status:    model.SessionStatusWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	uploadURL := fmt.Sprintf("%s/send/%s", s.appURL, session.Token)
	qrDataURL, err := s.qr.DataURL(uploadURL)
	if err != nil {
		return nil, err
	}

	err = s.repo.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("session created",
		"session", session.Token,
		"expires_at", session.ExpiresAt,
		"upload_url", uploadURL,
	)

	return &CreatedSession{
		Session:   session,
		QRDataURL: qrDataURL,
		UploadURL: uploadURL,
	}, nil
}

// Get returns a non-expired session. A session past its deadline behaves
// as not found even before the sweeper has run.
func (s *SessionService) Get(ctx context.Context, token string) (*model.Session, error) {
	session, err := s.repo.ByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, repository.ErrSessionNotFound
	}
	return session, nil
}

// Active returns a live session, distinguishing expired from unknown:
// in-flight transfer operations need SessionExpired, not NotFound, when
// the clock runs out mid-transfer.
func (s *SessionService) Active(ctx context.Context, token string) (*model.Session, error) {
	session, err := s.repo.ByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// MarkUploading flips a session to uploading when a transfer starts.
// Re-entering uploading is idempotent; a completed session no longer
// accepts uploads.
func (s *SessionService) MarkUploading(ctx context.Context, token string) error {
	unlock := s.locks.lock(token)
	defer unlock()

	session, err := s.Active(ctx, token)
	if err != nil {
		return err
	}

	switch session.Status {
	case model.SessionStatusCompleted:
		return ErrSessionCompleted
	case model.SessionStatusUploading:
		return nil
	}

	return s.repo.UpdateStatus(ctx, token, session.Version, model.SessionStatusUploading)
}

// AttachFile appends a finalized file to a session. The capacity check
// runs here, under the session lock and against the actual stored size,
// so concurrent finalizes cannot push the session over its quota.
func (s *SessionService) AttachFile(ctx context.Context, token string, file *model.File) error {
	unlock := s.locks.lock(token)
	defer unlock()

	session, err := s.Active(ctx, token)
	if err != nil {
		return err
	}
	if session.Status == model.SessionStatusCompleted {
		return ErrSessionCompleted
	}

	err = s.limits.SessionCapacity(session.TotalBytes, file.SizeBytes)
	if err != nil {
		return err
	}

	return s.repo.AppendFile(ctx, token, session.Version, file)
}

// Complete marks a session as done with uploads. Completion is an explicit
// signal from the client, never inferred from file count. Calling it twice
// is a no-op.
func (s *SessionService) Complete(ctx context.Context, token string) (*model.Session, error) {
	unlock := s.locks.lock(token)
	defer unlock()

	session, err := s.Active(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionStatusCompleted {
		return session, nil
	}

	err = s.repo.UpdateStatus(ctx, token, session.Version, model.SessionStatusCompleted)
	if err != nil {
		return nil, err
	}
	session.Status = model.SessionStatusCompleted

	s.events.Publish(token, hub.SessionCompleted{
		TotalFiles: len(session.Files),
		TotalBytes: session.TotalBytes,
	})

	slog.Info("session completed",
		"session", token,
		"total_files", len(session.Files),
		"total_bytes", session.TotalBytes,
	)

	return session, nil
}

// DownloadURL returns a presigned URL for one of the session's files.
func (s *SessionService) DownloadURL(ctx context.Context, token string, fileID int64) (*model.File, string, error) {
	session, err := s.Get(ctx, token)
	if err != nil {
		return nil, "", err
	}

	for _, file := range session.Files {
		if file.ID == fileID {
			url, err := s.store.PresignedURL(ctx, file.StorageRef, s.presignExpiry)
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
			}
			return file, url, nil
		}
	}

	return nil, "", repository.ErrSessionNotFound
}

// Delete removes a session along with its stored objects and any in-flight
// uploads.
func (s *SessionService) Delete(ctx context.Context, token string) error {
	unlock := s.locks.lock(token)

	session, err := s.repo.ByToken(ctx, token)
	if err != nil {
		unlock()
		return err
	}

	s.deleteObjects(ctx, session)
	err = s.repo.Delete(ctx, token)
	unlock()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.tracker.removeSession(token)
	s.locks.forget(token)

	slog.Info("session deleted", "session", token, "files", len(session.Files))
	return nil
}

// SweepExpired removes every session past its deadline, releasing storage
// objects once per session and discarding the session's in-flight uploads.
// Returns how many sessions were swept.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.Expired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	swept := 0
	for _, session := range expired {
		unlock := s.locks.lock(session.Token)
		s.deleteObjects(ctx, session)
		err = s.repo.Delete(ctx, session.Token)
		unlock()
		if err != nil {
			slog.Error("failed to delete expired session", "error", err, "session", session.Token)
			continue
		}

		dropped := s.tracker.removeSession(session.Token)
		s.locks.forget(session.Token)
		swept++

		slog.Info("expired session swept",
			"session", session.Token,
			"files", len(session.Files),
			"uploads_dropped", dropped,
		)
	}

	return swept, nil
}

// deleteObjects releases a session's storage refs, best effort: a ref that
// fails to delete is logged and skipped, the physical object may already
// be gone.
func (s *SessionService) deleteObjects(ctx context.Context, session *model.Session) {
	for _, file := range session.Files {
		err := s.store.Delete(ctx, file.StorageRef)
		if err != nil {
			slog.Warn("failed to delete file from storage", "error", err, "storage_ref", file.StorageRef)
		}
	}
}
