package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLimits() Limits {
	return Limits{
		MaxFileSizeBytes: 100,
		MaxSessionBytes:  1000,
		MaxDuration:      time.Hour,
	}
}

func TestFileSize(t *testing.T) {
	assert := assert.New(t)
	l := testLimits()

	assert.NoError(l.FileSize(1))
	assert.NoError(l.FileSize(100))
	assert.ErrorIs(l.FileSize(101), ErrFileTooLarge)
	assert.ErrorIs(l.FileSize(0), ErrFileTooLarge)
	assert.ErrorIs(l.FileSize(-1), ErrFileTooLarge)
}

func TestSessionCapacity(t *testing.T) {
	assert := assert.New(t)
	l := testLimits()

	assert.NoError(l.SessionCapacity(0, 1000))
	assert.NoError(l.SessionCapacity(900, 100))
	assert.ErrorIs(l.SessionCapacity(900, 200), ErrQuotaExceeded)
	assert.ErrorIs(l.SessionCapacity(1000, 1), ErrQuotaExceeded)
}

func TestMimeType(t *testing.T) {
	assert := assert.New(t)
	l := testLimits()

	// Empty allow-list admits everything
	assert.NoError(l.MimeType("application/pdf"))
	assert.NoError(l.MimeType(""))

	l.AllowedMimeTypes = map[string]bool{"image/png": true}
	assert.NoError(l.MimeType("image/png"))
	assert.ErrorIs(l.MimeType("application/pdf"), ErrMimeRejected)
}

func TestDuration(t *testing.T) {
	assert := assert.New(t)
	l := testLimits()

	assert.NoError(l.Duration(time.Minute))
	assert.NoError(l.Duration(2*time.Hour)) // above max is clamped, not rejected
	assert.ErrorIs(l.Duration(0), ErrInvalidDuration)
	assert.ErrorIs(l.Duration(-time.Minute), ErrInvalidDuration)
}

func TestClampDuration(t *testing.T) {
	assert := assert.New(t)
	l := testLimits()

	assert.Equal(30*time.Minute, l.ClampDuration(30*time.Minute))
	assert.Equal(time.Hour, l.ClampDuration(time.Hour))
	assert.Equal(time.Hour, l.ClampDuration(90*time.Minute))
}
