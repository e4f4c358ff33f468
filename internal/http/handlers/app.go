package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/orchestrator"
	"studio/internal/queuetrack"
	"studio/internal/storage"
)

// App is the handler container wired once at startup.
type App struct {
	Config  *infra.Config
	Logger  zerolog.Logger
	Store   domain.VersionRepository
	Flows   *orchestrator.Orchestrator
	Tracker *queuetrack.Tracker
	Files   *storage.FileStore
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error":   errCode,
		"message": message,
	})
}

// fail maps a domain error to its HTTP shape. Every generation action ends
// in either a created version or one of these explicit errors; there is no
// silent failure.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrGenerationBusy):
		a.error(w, http.StatusConflict, "generation_busy", "a generation for this slot is already running")
	case errors.Is(err, domain.ErrTimeout):
		// Distinct from failure on purpose: the backend may still finish.
		a.error(w, http.StatusGatewayTimeout, "generation_timeout", "generation is taking longer than expected, check back later")
	case errors.Is(err, domain.ErrJobFailed):
		a.error(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, domain.ErrInvariantViolation):
		a.Logger.Error().Err(err).Msg("handlers: version store invariant violated")
		a.error(w, http.StatusInternalServerError, "internal", "version store in inconsistent state")
	default:
		a.error(w, http.StatusBadGateway, "submission_failed", err.Error())
	}
}
