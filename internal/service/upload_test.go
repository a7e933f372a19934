package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/model"
	"github.com/dropbeam/dropbeam/internal/repository"
	"github.com/dropbeam/dropbeam/internal/validation"
)

func TestInitValidatesAdmission(t *testing.T) {
	assert := assert.New(t)
	limits := defaultTestLimits()
	limits.AllowedMimeTypes = map[string]bool{"text/plain": true}
	env := newTestEnv(t, limits)
	ctx := context.Background()

	token := env.createSession(t, time.Hour)

	_, err := env.uploads.Init(ctx, token, "big.bin", limits.MaxFileSizeBytes+1, "text/plain")
	assert.ErrorIs(err, validation.ErrFileTooLarge)

	_, err = env.uploads.Init(ctx, token, "a.exe", 10, "application/x-msdownload")
	assert.ErrorIs(err, validation.ErrMimeRejected)

	_, err = env.uploads.Init(ctx, "no-such-session", "a.txt", 10, "text/plain")
	assert.ErrorIs(err, repository.ErrSessionNotFound)

	init, err := env.uploads.Init(ctx, token, "a.txt", 10, "text/plain")
	require.NoError(t, err)
	assert.NotEmpty(init.UploadID)

	// Admission flips the session to uploading
	session, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(model.SessionStatusUploading, session.Status)
}

func TestInitAfterCompleteFails(t *testing.T) {
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	_, err := env.sessions.Complete(ctx, token)
	require.NoError(t, err)

	_, err = env.uploads.Init(ctx, token, "late.txt", 10, "text/plain")
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestQuotaEnforcedAtInitAndFinalize(t *testing.T) {
	assert := assert.New(t)
	limits := validation.Limits{
		MaxFileSizeBytes: 1000,
		MaxSessionBytes:  1000,
		MaxDuration:      time.Hour,
	}
	env := newTestEnv(t, limits)
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	uploadFile(t, env, token, "big.bin", bytes.Repeat([]byte("x"), 900))

	// Declared size already over the remaining capacity
	_, err := env.uploads.Init(ctx, token, "over.bin", 200, "application/octet-stream")
	assert.ErrorIs(err, validation.ErrQuotaExceeded)

	// Declared size fits, actual bytes do not: caught at finalize
	init, err := env.uploads.Init(ctx, token, "liar.bin", 50, "application/octet-stream")
	require.NoError(t, err)
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, bytes.Repeat([]byte("y"), 200))
	require.NoError(t, err)
	_, err = env.uploads.Finalize(ctx, init.UploadID)
	assert.ErrorIs(err, validation.ErrQuotaExceeded)

	// The session can never shrink, so the over-quota upload is discarded
	_, err = env.uploads.Finalize(ctx, init.UploadID)
	assert.ErrorIs(err, ErrUnknownUpload)

	session, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Len(session.Files, 1)
	assert.Equal(int64(900), session.TotalBytes)
}

func TestChunksAssembleInIndexOrder(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "parts.txt", 6, "text/plain")
	require.NoError(t, err)

	// Arrival order 2, 0, 1
	for _, c := range []struct {
		index int
		data  string
	}{{2, "cc"}, {0, "aa"}, {1, "bb"}} {
		_, err = env.uploads.PutChunk(ctx, init.UploadID, c.index, []byte(c.data))
		require.NoError(t, err)
	}

	file, err := env.uploads.Finalize(ctx, init.UploadID)
	require.NoError(t, err)
	assert.Equal(int64(6), file.SizeBytes)

	data, ok := env.store.object(file.StorageRef)
	require.True(t, ok)
	assert.Equal("aabbcc", string(data))
}

func TestRetransmittedChunkNotDoubleCounted(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "a.bin", 10, "application/octet-stream")
	require.NoError(t, err)

	receipt, err := env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("12345"))
	require.NoError(t, err)
	assert.Equal(int64(5), receipt.BytesReceived)
	assert.Equal(50, receipt.Percent)

	// Same index again: overwrite, not accumulate
	receipt, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("12345"))
	require.NoError(t, err)
	assert.Equal(int64(5), receipt.BytesReceived)
	assert.Equal(50, receipt.Percent)

	receipt, err = env.uploads.PutChunk(ctx, init.UploadID, 1, []byte("67890"))
	require.NoError(t, err)
	assert.Equal(int64(10), receipt.BytesReceived)
	assert.Equal(100, receipt.Percent)
}

func TestProgressClampedWhenDeclaredSizeUndercounts(t *testing.T) {
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "a.bin", 4, "application/octet-stream")
	require.NoError(t, err)

	receipt, err := env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("12345678"))
	require.NoError(t, err)
	assert.Equal(t, 100, receipt.Percent)
}

func TestFinalizeRejectsGaps(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "a.txt", 6, "text/plain")
	require.NoError(t, err)

	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("aa"))
	require.NoError(t, err)
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 2, []byte("cc"))
	require.NoError(t, err)

	_, err = env.uploads.Finalize(ctx, init.UploadID)
	assert.ErrorIs(err, ErrIncompleteUpload)

	// The upload survives the failed finalize; fill the gap and retry
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 1, []byte("bb"))
	require.NoError(t, err)
	file, err := env.uploads.Finalize(ctx, init.UploadID)
	require.NoError(t, err)

	data, ok := env.store.object(file.StorageRef)
	require.True(t, ok)
	assert.Equal("aabbcc", string(data))
}

func TestChunkOverMaxSizeRejected(t *testing.T) {
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "a.bin", 100, "application/octet-stream")
	require.NoError(t, err)

	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, bytes.Repeat([]byte("x"), (10<<20)+1))
	assert.ErrorIs(t, err, ErrChunkTooLarge)
}

func TestExpiryMidTransfer(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, 50*time.Millisecond)
	init, err := env.uploads.Init(ctx, token, "a.txt", 10, "text/plain")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	// No sweep has run; the deadline alone fails the transfer
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("x"))
	assert.ErrorIs(err, ErrSessionExpired)
	_, err = env.uploads.Finalize(ctx, init.UploadID)
	assert.ErrorIs(err, ErrSessionExpired)
}

func TestStorageFailureLeavesSessionUntouched(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "a.txt", 5, "text/plain")
	require.NoError(t, err)
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("hello"))
	require.NoError(t, err)

	env.store.failStore = true
	_, err = env.uploads.Finalize(ctx, init.UploadID)
	assert.ErrorIs(err, ErrStorageFailure)

	session, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Empty(session.Files)
	assert.Zero(session.TotalBytes)

	// The failed upload is discarded, not retryable
	_, err = env.uploads.Finalize(ctx, init.UploadID)
	assert.ErrorIs(err, ErrUnknownUpload)
}

func TestAbandonDiscardsUpload(t *testing.T) {
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	init, err := env.uploads.Init(ctx, token, "a.txt", 10, "text/plain")
	require.NoError(t, err)

	env.uploads.Abandon(init.UploadID)
	env.uploads.Abandon(init.UploadID) // idempotent

	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownUpload)
}

func TestSweepInactive(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	idle, err := env.uploads.Init(ctx, token, "idle.txt", 10, "text/plain")
	require.NoError(t, err)
	fresh, err := env.uploads.Init(ctx, token, "fresh.txt", 10, "text/plain")
	require.NoError(t, err)

	// Age the idle upload past the inactivity window
	up, ok := env.sessions.tracker.get(idle.UploadID)
	require.True(t, ok)
	up.mu.Lock()
	up.lastActivity = time.Now().Add(-2 * time.Minute)
	up.mu.Unlock()

	dropped := env.uploads.SweepInactive(time.Now())
	assert.Equal(1, dropped)

	_, err = env.uploads.PutChunk(ctx, idle.UploadID, 0, []byte("x"))
	assert.ErrorIs(err, ErrUnknownUpload)
	_, err = env.uploads.PutChunk(ctx, fresh.UploadID, 0, []byte("x"))
	assert.NoError(err)
}

func TestRecommendChunkSize(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())

	// Aim for the target chunk count on small files
	assert.Equal(int64(10), env.uploads.recommendChunkSize(100))
	assert.Equal(int64(1), env.uploads.recommendChunkSize(5))
	// Capped for large files
	assert.Equal(int64(5<<20), env.uploads.recommendChunkSize(500<<20))
}

func TestEndToEndEventOrder(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	sub := env.events.Subscribe(token)
	defer env.events.Unsubscribe(sub)

	init, err := env.uploads.Init(ctx, token, "a.txt", 10, "text/plain")
	require.NoError(t, err)
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("0123456789"))
	require.NoError(t, err)
	_, err = env.uploads.Finalize(ctx, init.UploadID)
	require.NoError(t, err)
	_, err = env.sessions.Complete(ctx, token)
	require.NoError(t, err)

	var types []string
	for i := 0; i < 4; i++ {
		select {
		case event := <-sub.C:
			types = append(types, event.Type)
			switch data := event.Data.(type) {
			case hub.UploadProgress:
				assert.Equal(100, data.Percent)
				assert.Equal(int64(10), data.BytesReceived)
			case hub.UploadComplete:
				assert.Equal("a.txt", data.File.OriginalName)
			case hub.SessionCompleted:
				assert.Equal(1, data.TotalFiles)
				assert.Equal(int64(10), data.TotalBytes)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	assert.Equal([]string{
		hub.EventUploadStarted,
		hub.EventUploadProgress,
		hub.EventUploadComplete,
		hub.EventSessionCompleted,
	}, types)
}
