package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dropbeam/dropbeam/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrConflict        = errors.New("concurrent session mutation detected")
)

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	ByToken(ctx context.Context, token string) (*model.Session, error)
	UpdateStatus(ctx context.Context, token string, version int64, status string) error
	AppendFile(ctx context.Context, token string, version int64, file *model.File) error
	Expired(ctx context.Context, now time.Time) ([]*model.Session, error)
	Delete(ctx context.Context, token string) error
}

type sessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `INSERT INTO sessions (token, status, total_bytes, version, created_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		session.Token,
		session.Status,
		session.TotalBytes,
		session.Version,
		session.CreatedAt,
		session.ExpiresAt,
	)

	return err
}

func (r *sessionRepository) ByToken(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{}
	query := `SELECT token, status, total_bytes, version, created_at, expires_at FROM sessions WHERE token = $1`

	err := r.db.GetContext(ctx, session, query, token)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	files, err := r.files(ctx, token)
	if err != nil {
		return nil, err
	}
	session.Files = files

	return session, nil
}

// files returns a session's file records in insertion order, which is
// completion order.
func (r *sessionRepository) files(ctx context.Context, token string) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT * FROM files WHERE session_token = $1 ORDER BY id`

	err := r.db.SelectContext(ctx, &files, query, token)
	if err != nil {
		return nil, err
	}

	return files, nil
}

// UpdateStatus applies an optimistic status update. A version mismatch
// means another writer got there first and surfaces as ErrConflict.
func (r *sessionRepository) UpdateStatus(ctx context.Context, token string, version int64, status string) error {
	query := `UPDATE sessions SET status = $1, version = version + 1 WHERE token = $2 AND version = $3`

	res, err := r.db.ExecContext(ctx, query, status, token, version)
	if err != nil {
		return err
	}

	return r.checkAffected(ctx, res, token)
}

// AppendFile inserts a file record and bumps the session's running total
// in one transaction. total_bytes only ever changes together with a file
// insert, which keeps it equal to the sum of the file sizes.
func (r *sessionRepository) AppendFile(ctx context.Context, token string, version int64, file *model.File) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE sessions SET total_bytes = total_bytes + $1, version = version + 1
	          WHERE token = $2 AND version = $3`

	res, err := tx.ExecContext(ctx, query, file.SizeBytes, token, version)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = r.exists(ctx, token)
		if err != nil {
			return err
		}
		return ErrConflict
	}

	query = `INSERT INTO files (session_token, original_name, mime_type, size_bytes, storage_ref, secure_url, checksum, uploaded_at)
	         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.ExecContext(ctx, query,
		file.SessionToken,
		file.OriginalName,
		file.MimeType,
		file.SizeBytes,
		file.StorageRef,
		file.SecureURL,
		file.Checksum,
		file.UploadedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Expired returns all sessions past their deadline, files included so the
// sweeper can release their storage objects.
func (r *sessionRepository) Expired(ctx context.Context, now time.Time) ([]*model.Session, error) {
	var sessions []*model.Session
	query := `SELECT token, status, total_bytes, version, created_at, expires_at FROM sessions
	          WHERE expires_at < $1`

	err := r.db.SelectContext(ctx, &sessions, query, now)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		files, err := r.files(ctx, session.Token)
		if err != nil {
			return nil, err
		}
		session.Files = files
	}

	return sessions, nil
}

func (r *sessionRepository) Delete(ctx context.Context, token string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM files WHERE session_token = $1`, token)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *sessionRepository) checkAffected(ctx context.Context, res sql.Result, token string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	err = r.exists(ctx, token)
	if err != nil {
		return err
	}
	return ErrConflict
}

func (r *sessionRepository) exists(ctx context.Context, token string) error {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM sessions WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
