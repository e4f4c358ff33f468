package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
)

type addVersionRequest struct {
	Source string `json:"source"`
	URI    string `json:"uri"`
}

// ListVersions returns the slot's live versions; with include_deleted=true
// the soft-deleted ones are returned alongside under their own key.
func (a *App) ListVersions(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if slotID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id required")
		return
	}
	live, err := a.Store.ListActive(r.Context(), slotID)
	if err != nil {
		a.fail(w, err)
		return
	}
	body := map[string]any{"items": emptyIfNil(live)}
	if r.URL.Query().Get("include_deleted") == "true" {
		deleted, err := a.Store.ListDeleted(r.Context(), slotID)
		if err != nil {
			a.fail(w, err)
			return
		}
		body["deleted"] = emptyIfNil(deleted)
	}
	a.json(w, http.StatusOK, body)
}

// ActiveVersion returns the version the slot currently displays. A slot
// with no active version is a valid state and answers 204.
func (a *App) ActiveVersion(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if slotID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id required")
		return
	}
	active, err := a.Store.GetActive(r.Context(), slotID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if active == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	a.json(w, http.StatusOK, active)
}

// AddVersion records an externally hosted artifact as a new version of the
// slot.
func (a *App) AddVersion(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if slotID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id required")
		return
	}
	var req addVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Source != "" && req.Source != string(domain.SourceExternalLink) {
		a.error(w, http.StatusBadRequest, "bad_request", "only external_link versions can be added here")
		return
	}
	if strings.TrimSpace(req.URI) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "uri required")
		return
	}
	version, err := a.Flows.AddFromLink(r.Context(), slotID, req.URI)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusCreated, version)
}

// ActivateVersion makes the version the slot's displayed one. Repeating the
// call is harmless.
func (a *App) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "version_id")
	if err := a.Store.SetActive(r.Context(), versionID); err != nil {
		a.fail(w, err)
		return
	}
	version, err := a.Store.GetByID(r.Context(), versionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, version)
}

// DeleteVersion soft-deletes the version. Deleting the active version
// leaves the slot without one; nothing is promoted implicitly.
func (a *App) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "version_id")
	if err := a.Store.SoftDelete(r.Context(), versionID); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreVersion brings a soft-deleted version back, inactive.
func (a *App) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "version_id")
	if err := a.Store.Restore(r.Context(), versionID); err != nil {
		a.fail(w, err)
		return
	}
	version, err := a.Store.GetByID(r.Context(), versionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, version)
}

func emptyIfNil(versions []domain.ArtifactVersion) []domain.ArtifactVersion {
	if versions == nil {
		return []domain.ArtifactVersion{}
	}
	return versions
}
