package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/orchestrator"
)

type generateRequest struct {
	Type    string         `json:"type"`
	OwnerID string         `json:"owner_id"`
	Params  map[string]any `json:"params"`
}

// Generate runs one full generation flow for the slot and answers with the
// recorded version. The request stays open for the duration of the flow;
// progress is observable concurrently via Progress.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	if slotID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id required")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Type == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "type required")
		return
	}
	if req.OwnerID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "owner_id required")
		return
	}

	version, err := a.Flows.GenerateArtifact(r.Context(), slotID, domain.JobType(req.Type), req.OwnerID, req.Params)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusCreated, version)
}

// Progress reports the queue position of the slot's in-flight generation.
// 200 with a snapshot once the first poll landed, 202 while in flight
// without a snapshot yet, 404 when nothing is running.
func (a *App) Progress(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slot_id")
	jobType := r.URL.Query().Get("type")
	if slotID == "" || jobType == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "slot_id and type required")
		return
	}
	key := orchestrator.FlowKey(slotID, domain.JobType(jobType))
	if snap, ok := a.Tracker.Snapshot(key); ok {
		a.json(w, http.StatusOK, snap)
		return
	}
	if a.Tracker.InFlight(key) {
		a.json(w, http.StatusAccepted, map[string]any{"key": key, "status": "starting"})
		return
	}
	a.error(w, http.StatusNotFound, "not_found", "no generation in flight for this slot")
}
