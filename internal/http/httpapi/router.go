package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// NewRouter assembles the studio API surface.
func NewRouter(app *handlers.App, countryLookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	if len(app.Config.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(app.Config.AllowedOrigins))
	}
	r.Use(middleware.I18N(app.Config.DefaultLocale, countryLookup))
	r.Use(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/slots/{slot_id}", func(r chi.Router) {
		r.Post("/generate", app.Generate)
		r.Get("/progress", app.Progress)
		r.Get("/versions", app.ListVersions)
		r.Get("/versions/active", app.ActiveVersion)
		r.Post("/versions", app.AddVersion)
		r.Post("/uploads", app.Upload)
		r.Get("/archive", app.Archive)
	})

	r.Route("/v1/versions/{version_id}", func(r chi.Router) {
		r.Post("/activate", app.ActivateVersion)
		r.Delete("/", app.DeleteVersion)
		r.Post("/restore", app.RestoreVersion)
	})

	return r
}
