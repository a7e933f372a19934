package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropbeam/dropbeam/internal/hub"
	"github.com/dropbeam/dropbeam/internal/model"
	"github.com/dropbeam/dropbeam/internal/repository"
	"github.com/dropbeam/dropbeam/internal/validation"
)

func TestCreateClampsTTL(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	// Above the max: clamped, not rejected
	created, err := env.sessions.Create(ctx, 90*time.Minute)
	require.NoError(t, err)
	assert.Equal(time.Hour, created.Session.ExpiresAt.Sub(created.Session.CreatedAt))

	// Zero means "use the default"
	created, err = env.sessions.Create(ctx, 0)
	require.NoError(t, err)
	assert.Equal(30*time.Minute, created.Session.ExpiresAt.Sub(created.Session.CreatedAt))
}

func TestCreateRejectsNegativeTTL(t *testing.T) {
	env := newTestEnv(t, defaultTestLimits())

	_, err := env.sessions.Create(context.Background(), -time.Minute)
	assert.ErrorIs(t, err, validation.ErrInvalidDuration)
}

func TestCreateReturnsQRAndUploadURL(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())

	created, err := env.sessions.Create(context.Background(), time.Minute)
	require.NoError(t, err)

	assert.Equal(model.SessionStatusWaiting, created.Session.Status)
	assert.True(strings.HasPrefix(created.QRDataURL, "data:image/png;base64,"))
	assert.Contains(created.UploadURL, created.Session.Token)
}

func TestExpiredSessionBehavesAsNotFound(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, 30*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	// Lazy expiry: the sweeper has not run, the deadline alone decides
	_, err := env.sessions.Get(ctx, token)
	assert.ErrorIs(err, repository.ErrSessionNotFound)

	// Transfer operations see the more specific error
	_, err = env.sessions.Active(ctx, token)
	assert.ErrorIs(err, ErrSessionExpired)
}

func TestCompleteIsExplicitAndIdempotent(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	sub := env.events.Subscribe(token)
	defer env.events.Unsubscribe(sub)

	session, err := env.sessions.Complete(ctx, token)
	require.NoError(t, err)
	assert.Equal(model.SessionStatusCompleted, session.Status)

	event := <-sub.C
	assert.Equal(hub.EventSessionCompleted, event.Type)

	// Completing again is a no-op, and no second event is published
	session, err = env.sessions.Complete(ctx, token)
	require.NoError(t, err)
	assert.Equal(model.SessionStatusCompleted, session.Status)
	select {
	case event = <-sub.C:
		t.Fatalf("unexpected second event: %s", event.Type)
	default:
	}
}

func TestDeleteReleasesEverything(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	uploadFile(t, env, token, "a.txt", []byte("hello"))
	require.Equal(t, 1, env.store.count())

	require.NoError(t, env.sessions.Delete(ctx, token))

	_, err := env.sessions.Get(ctx, token)
	assert.ErrorIs(err, repository.ErrSessionNotFound)
	assert.Zero(env.store.count(), "stored objects released on delete")

	assert.ErrorIs(env.sessions.Delete(ctx, token), repository.ErrSessionNotFound)
}

func TestSweepExpired(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	live := env.createSession(t, time.Hour)
	dead := env.createSession(t, 200*time.Millisecond)
	uploadFile(t, env, dead, "a.txt", []byte("doomed"))

	// An in-flight upload on the dying session
	init, err := env.uploads.Init(ctx, dead, "b.txt", 10, "text/plain")
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	swept, err := env.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(1, swept)

	// Storage, rows and in-flight state are all gone
	assert.Zero(env.store.count())
	_, err = env.sessions.Get(ctx, dead)
	assert.ErrorIs(err, repository.ErrSessionNotFound)
	_, err = env.uploads.PutChunk(ctx, init.UploadID, 0, []byte("x"))
	assert.ErrorIs(err, ErrUnknownUpload)

	// The live session is untouched
	_, err = env.sessions.Get(ctx, live)
	assert.NoError(err)
}

func TestDownloadURL(t *testing.T) {
	assert := assert.New(t)
	env := newTestEnv(t, defaultTestLimits())
	ctx := context.Background()

	token := env.createSession(t, time.Hour)
	stored := uploadFile(t, env, token, "report.pdf", []byte("pdfdata"))

	file, url, err := env.sessions.DownloadURL(ctx, token, stored.ID)
	require.NoError(t, err)
	assert.Equal("report.pdf", file.OriginalName)
	assert.Contains(url, "signed")

	_, _, err = env.sessions.DownloadURL(ctx, token, stored.ID+99)
	assert.ErrorIs(err, repository.ErrSessionNotFound)
}
