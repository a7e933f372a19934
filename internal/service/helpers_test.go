package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropbeam/dropbeam/internal/db"
	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/model"
	"github.com/dropbeam/dropbeam/internal/repository"
	"github.com/dropbeam/dropbeam/internal/storage"
	"github.com/dropbeam/dropbeam/internal/validation"
)

// fakeStorage is an in-memory object storage collaborator.
type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failStore bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Store(_ context.Context, path string, r io.Reader) (*storage.StoreResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStore {
		return nil, errors.New("backend unavailable")
	}
	f.objects[path] = data

	sum := sha256.Sum256(data)
	return &storage.StoreResult{
		Ref:       path,
		SecureURL: "https://files.test/" + path,
		Size:      int64(len(data)),
		Checksum:  hex.EncodeToString(sum[:]),
	}, nil
}

func (f *fakeStorage) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

func (f *fakeStorage) PresignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return "https://files.test/signed/" + path, nil
}

func (f *fakeStorage) object(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	return data, ok
}

func (f *fakeStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type testEnv struct {
	sessions *SessionService
	uploads  *UploadService
	store    *fakeStorage
	events   *hub.Hub
}

func defaultTestLimits() validation.Limits {
	return validation.Limits{
		MaxFileSizeBytes: 1 << 20,
		MaxSessionBytes:  10 << 20,
		MaxDuration:      time.Hour,
	}
}

func newTestEnv(t *testing.T, limits validation.Limits) *testEnv {
	t.Helper()

	database, err := db.Init("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	err = db.RunMigrations(database.DB, "sqlite")
	require.NoError(t, err)

	store := newFakeStorage()
	events := hub.New(64)
	sessions := NewSessionService(
		repository.NewSessionRepository(database),
		store,
		NewQRService(128),
		events,
		limits,
		"https://drop.test",
		30*time.Minute, // default expiry
		time.Hour,      // presign expiry
	)
	uploads := NewUploadService(
		sessions,
		store,
		events,
		limits,
		5<<20, // recommended chunk size cap
		10<<20,
		10,
		time.Minute,
	)

	return &testEnv{
		sessions: sessions,
		uploads:  uploads,
		store:    store,
		events:   events,
	}
}

// createSession is a shorthand for tests that just need a live session.
func (e *testEnv) createSession(t *testing.T, ttl time.Duration) string {
	t.Helper()
	created, err := e.sessions.Create(context.Background(), ttl)
	require.NoError(t, err)
	return created.Session.Token
}

// uploadFile runs a whole single-chunk transfer into a session.
func uploadFile(t *testing.T, env *testEnv, token, name string, data []byte) *model.File {
	t.Helper()
	ctx := context.Background()

	init, err := env.uploads.Init(ctx, token, name, int64(len(data)), "application/octet-stream")
	require.NoError(t, err)
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, data)
	require.NoError(t, err)
	file, err := env.uploads.Finalize(ctx, init.UploadID)
	require.NoError(t, err)
	return file
}
