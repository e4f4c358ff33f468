package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxUploadBytes bounds direct uploads; bigger media goes through the
// external link flow.
const maxUploadBytes = 32 << 20

// Upload stores the request body in the file store and records it as an
// uploaded version of the slot.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if slotID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id required")
		return
	}
	if a.Files == nil {
		a.error(w, http.StatusNotImplemented, "uploads_disabled", "no upload storage configured")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read payload")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "empty payload")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
		return
	}

	key := fmt.Sprintf("uploads/%s/%s%s", path.Clean(slotID), uuid.NewString(), extensionForContentType(r.Header.Get("Content-Type")))
	storedKey, err := a.Files.Write(r.Context(), key, data)
	if err != nil {
		a.Logger.Error().Err(err).Str("slot_id", slotID).Msg("handlers: upload write failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	version, err := a.Flows.AddFromUpload(r.Context(), slotID, storedKey)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusCreated, version)
}

func extensionForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
