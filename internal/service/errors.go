package service

import "errors"

var (
	ErrSessionExpired   = errors.New("session has expired")
	ErrSessionCompleted = errors.New("session already completed")
	ErrUnknownUpload    = errors.New("upload not found")
	ErrIncompleteUpload = errors.New("upload has missing chunks")
	ErrChunkTooLarge    = errors.New("chunk exceeds maximum chunk size")
	ErrStorageFailure   = errors.New("object storage failure")
	ErrQRGeneration     = errors.New("failed to generate QR code")
)
