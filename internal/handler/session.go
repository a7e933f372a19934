package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dropbeam/dropbeam/internal/model"
	"github.com/dropbeam/dropbeam/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	ExpiryMinutes int `json:"expiryMinutes"`
}

type createSessionResponse struct {
	SessionID string    `json:"sessionId"`
	QRDataURL string    `json:"qrDataUrl"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			respondBadRequest(w, "invalid request body")
			return
		}
	}

	created, err := h.sessions.Create(r.Context(), time.Duration(req.ExpiryMinutes)*time.Minute)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: created.Session.Token,
		QRDataURL: created.QRDataURL,
		UploadURL: created.UploadURL,
		ExpiresAt: created.Session.ExpiresAt,
	})
}

type fileResponse struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type sessionResponse struct {
	SessionID  string         `json:"sessionId"`
	Status     string         `json:"status"`
	Files      []fileResponse `json:"files"`
	TotalBytes int64          `json:"totalSizeBytes"`
	CreatedAt  time.Time      `json:"createdAt"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

func sessionToResponse(s *model.Session) sessionResponse {
	files := make([]fileResponse, 0, len(s.Files))
	for _, f := range s.Files {
		files = append(files, fileResponse{
			ID:           f.ID,
			OriginalName: f.OriginalName,
			MimeType:     f.MimeType,
			SizeBytes:    f.SizeBytes,
			UploadedAt:   f.UploadedAt,
		})
	}
	return sessionResponse{
		SessionID:  s.Token,
		Status:     s.Status,
		Files:      files,
		TotalBytes: s.TotalBytes,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	session, err := h.sessions.Get(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionToResponse(session))
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	session, err := h.sessions.Complete(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionToResponse(session))
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	err := h.sessions.Delete(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "session deleted successfully"})
}

type downloadResponse struct {
	SignedURL string `json:"signedUrl"`
	FileName  string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

func (h *SessionHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	fileID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondBadRequest(w, "invalid file id")
		return
	}

	file, url, err := h.sessions.DownloadURL(r.Context(), token, fileID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, downloadResponse{
		SignedURL: url,
		FileName:  file.OriginalName,
		MimeType:  file.MimeType,
		SizeBytes: file.SizeBytes,
	})
}
