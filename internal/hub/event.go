package hub

import (
	"time"

	"github.com/dropbeam/dropbeam/internal/model"
)

// Event kinds form a closed set; each kind has a fixed payload schema.
const (
	EventUploadStarted    = "uploadStarted"
	EventUploadProgress   = "uploadProgress"
	EventUploadComplete   = "uploadComplete"
	EventUploadError      = "uploadError"
	EventSessionCompleted = "sessionCompleted"
	EventConnected        = "connected"
)

// Event is a state-change notification delivered to session subscribers.
type Event interface {
	Kind() string
}

type UploadStarted struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

func (UploadStarted) Kind() string { return EventUploadStarted }

type UploadProgress struct {
	Percent       int   `json:"progress"`
	BytesReceived int64 `json:"bytesReceived"`
	TotalBytes    int64 `json:"totalBytes"`
}

func (UploadProgress) Kind() string { return EventUploadProgress }

type UploadComplete struct {
	File *model.File `json:"file"`
}

func (UploadComplete) Kind() string { return EventUploadComplete }

type UploadError struct {
	Reason string `json:"error"`
}

func (UploadError) Kind() string { return EventUploadError }

type SessionCompleted struct {
	TotalFiles int   `json:"totalFiles"`
	TotalBytes int64 `json:"totalBytes"`
}

func (SessionCompleted) Kind() string { return EventSessionCompleted }

type Connected struct {
	SessionToken string `json:"sessionId"`
}

func (Connected) Kind() string { return EventConnected }

// Envelope is the wire form handed to subscribers.
type Envelope struct {
	Type         string    `json:"type"`
	SessionToken string    `json:"sessionId"`
	Timestamp    time.Time `json:"timestamp"`
	Data         Event     `json:"data"`
}
