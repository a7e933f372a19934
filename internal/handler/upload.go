package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/dropbeam/dropbeam/internal/service"
)

type UploadHandler struct {
	uploads      *service.UploadService
	maxChunkSize int64
}

func NewUploadHandler(uploads *service.UploadService, maxChunkSize int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxChunkSize: maxChunkSize}
}

type uploadInitRequest struct {
	SessionID string `json:"sessionId"`
	FileName  string `json:"fileName"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
}

type uploadInitResponse struct {
	UploadID            string `json:"uploadId"`
	RecommendedPartSize int64  `json:"recommendedPartSize"`
	MaxChunkSize        int64  `json:"maxChunkSize"`
}

func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req uploadInitRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}
	if req.SessionID == "" || req.FileName == "" {
		respondBadRequest(w, "sessionId and fileName are required")
		return
	}

	init, err := h.uploads.Init(r.Context(), req.SessionID, req.FileName, req.Size, req.MimeType)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, uploadInitResponse{
		UploadID:            init.UploadID,
		RecommendedPartSize: init.RecommendedChunkSize,
		MaxChunkSize:        init.MaxChunkSize,
	})
}

type uploadPartResponse struct {
	ChunkIndex    int   `json:"chunkIndex"`
	BytesReceived int64 `json:"bytesReceived"`
	Progress      int   `json:"progress"`
}

// Part ingests one raw chunk. The upload id and chunk index travel in
// headers so the body stays the bare chunk bytes.
func (h *UploadHandler) Part(w http.ResponseWriter, r *http.Request) {
	uploadID := r.Header.Get("X-Upload-Id")
	if uploadID == "" {
		respondBadRequest(w, "upload id required in X-Upload-Id header")
		return
	}

	indexHeader := r.Header.Get("X-Chunk-Index")
	if indexHeader == "" {
		respondBadRequest(w, "chunk index required in X-Chunk-Index header")
		return
	}
	index, err := strconv.Atoi(indexHeader)
	if err != nil || index < 0 {
		respondBadRequest(w, "invalid X-Chunk-Index header")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxChunkSize)
	data, err := io.ReadAll(body)
	if err != nil {
		respondError(w, service.ErrChunkTooLarge)
		return
	}

	receipt, err := h.uploads.PutChunk(r.Context(), uploadID, index, data)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, uploadPartResponse{
		ChunkIndex:    receipt.ChunkIndex,
		BytesReceived: receipt.BytesReceived,
		Progress:      receipt.Percent,
	})
}

type uploadCompleteRequest struct {
	UploadID string `json:"uploadId"`
}

func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req uploadCompleteRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil || req.UploadID == "" {
		respondBadRequest(w, "uploadId is required")
		return
	}

	file, err := h.uploads.Finalize(r.Context(), req.UploadID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "upload completed successfully",
		"file": fileResponse{
			ID:           file.ID,
			OriginalName: file.OriginalName,
			MimeType:     file.MimeType,
			SizeBytes:    file.SizeBytes,
			UploadedAt:   file.UploadedAt,
		},
	})
}

// Abandon discards an in-flight upload on client-side cancellation.
func (h *UploadHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")

	h.uploads.Abandon(uploadID)
	respondJSON(w, http.StatusOK, map[string]string{"message": "upload abandoned"})
}
