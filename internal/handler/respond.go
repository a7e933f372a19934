package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dropbeam/dropbeam/internal/repository"
	"github.com/dropbeam/dropbeam/internal/service"
	"github.com/dropbeam/dropbeam/internal/validation"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError translates core error kinds into HTTP statuses. The core
// never formats user-facing messages; this is the one place where its
// typed errors become wire responses.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, service.ErrUnknownUpload):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, service.ErrSessionCompleted),
		errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, validation.ErrInvalidDuration),
		errors.Is(err, validation.ErrFileTooLarge),
		errors.Is(err, validation.ErrMimeRejected),
		errors.Is(err, service.ErrIncompleteUpload):
		status = http.StatusBadRequest
	case errors.Is(err, validation.ErrQuotaExceeded),
		errors.Is(err, service.ErrChunkTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrStorageFailure),
		errors.Is(err, service.ErrQRGeneration):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error("unhandled error", "error", err)
		respondJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}

	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
