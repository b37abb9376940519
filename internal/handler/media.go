package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stitchbook/api/internal/media"
)

// MediaHandler uploads reference images and audio notes for outfit items.
type MediaHandler struct {
	store media.Store
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(store media.Store) *MediaHandler {
	return &MediaHandler{store: store}
}

// RegisterRoutes registers media endpoints.
// Expected to be mounted inside /companies/{cid}/media.
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Upload)
	r.Get("/url", h.URL)
	r.Delete("/", h.Delete)
}

// Upload handles POST /companies/{cid}/media with a multipart "file" field.
// The returned key goes on the item unchanged.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return
	}

	upload, ok := saveUpload(w, r, h.store, companyID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusCreated, upload)
}

// URL handles GET /companies/{cid}/media/url?key=... and mints a fresh URL.
func (h *MediaHandler) URL(w http.ResponseWriter, r *http.Request) {
	key, ok := ownedKey(w, r)
	if !ok {
		return
	}

	url, err := h.store.URL(r.Context(), key)
	if err != nil {
		log.Printf("ERROR: media url: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

// Delete handles DELETE /companies/{cid}/media?key=... for uploads that were
// never attached to an item.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := ownedKey(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), key); err != nil {
		log.Printf("ERROR: delete media: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func ownedKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid company ID"})
		return "", false
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return "", false
	}
	if !media.OwnedBy(key, companyID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": errForeignMedia.Error()})
		return "", false
	}
	return key, true
}

// saveUpload reads the multipart "file" field and stores it for the company.
// It writes the error response itself and reports whether to continue.
func saveUpload(w http.ResponseWriter, r *http.Request, store media.Store, companyID uuid.UUID) (media.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(media.MaxFileSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return media.Upload{}, false
	}

	_, fh, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return media.Upload{}, false
	}

	upload, err := media.Save(r.Context(), store, companyID, fh)
	if err != nil {
		var ue *media.UploadError
		if errors.As(err, &ue) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": ue.Message, "code": ue.Code})
			return media.Upload{}, false
		}
		log.Printf("ERROR: save media: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return media.Upload{}, false
	}

	return upload, true
}
