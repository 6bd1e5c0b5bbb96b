package http

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/glimpse/internal/apperr"
	"github.com/vadim/glimpse/internal/httpx/response"
	"github.com/vadim/glimpse/internal/storage"
)

// MaxUploadSize is the maximum allowed image upload size (10MB)
const MaxUploadSize = 10 << 20

// ImageUploader defines the interface for storing uploaded images
type ImageUploader interface {
	UploadImage(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
}

// MediaHandler handles image upload HTTP requests
type MediaHandler struct {
	uploader ImageUploader
	verifier TokenVerifier
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(uploader ImageUploader, verifier TokenVerifier) *MediaHandler {
	return &MediaHandler{uploader: uploader, verifier: verifier}
}

// RegisterRoutes registers media routes
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.With(RequireAuth(h.verifier)).Post("/media/upload", h.Upload())
}

// UploadResponse represents the response from the upload endpoint
type UploadResponse struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Upload handles POST /media/upload
func (h *MediaHandler) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "file too large or invalid multipart form")
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			response.BadRequest(w, string(apperr.CodeValidation), "missing image in request")
			return
		}
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !storage.IsImageContentType(contentType) {
			response.BadRequest(w, string(apperr.CodeValidation),
				fmt.Sprintf("unsupported image type: %s", contentType))
			return
		}

		result, err := h.uploader.UploadImage(r.Context(), storage.UploadInput{
			Reader:      io.Reader(file),
			ContentType: contentType,
			Size:        header.Size,
			Filename:    header.Filename,
		})
		if err != nil {
			response.FromError(w, apperr.Internal("uploading image", err))
			return
		}

		response.Created(w, UploadResponse{
			URL:  result.URL,
			Key:  result.Key,
			Size: result.Size,
		})
	}
}
