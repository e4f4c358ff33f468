package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/pkg/zip"
)

// Archive bundles the slot's live versions into a zip download. Versions
// stored in the local file store are embedded; linked and remote artifacts
// are included as .uri reference entries rather than fetched.
func (a *App) Archive(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if slotID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id required")
		return
	}
	versions, err := a.Store.ListActive(r.Context(), slotID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(versions) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "slot has no versions")
		return
	}

	entries := make([]zip.Entry, 0, len(versions))
	for _, version := range versions {
		name := fmt.Sprintf("v%03d-%s", version.VersionNumber, version.Source)
		if data := a.loadLocal(version.URI); data != nil {
			entries = append(entries, zip.Entry{Name: name + filepath.Ext(version.URI), Data: data})
			continue
		}
		entries = append(entries, zip.Entry{Name: name + ".uri", Data: []byte(version.URI)})
	}
	archive, err := zip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Str("slot_id", slotID).Msg("handlers: archive build failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=slot-%s.zip", sanitizeFilename(slotID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) loadLocal(uri string) []byte {
	if a.Files == nil {
		return nil
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	lower := strings.ToLower(uri)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return nil
	}
	full := filepath.Join(a.Files.BasePath(), filepath.FromSlash(strings.TrimLeft(uri, "/")))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil
	}
	return data
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
