package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tracehq/trace-backend/api/controllers"
	"github.com/tracehq/trace-backend/api/middleware"
	"github.com/tracehq/trace-backend/internal/ingest"
	"github.com/tracehq/trace-backend/internal/tracks"
	"github.com/tracehq/trace-backend/pkg/config"
	"github.com/tracehq/trace-backend/pkg/logger"
)

// NewRouter assembles the HTTP surface: ingestion endpoints, health
// probes, and the metrics scrape handler.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	momentsSvc ingest.Service,
	tracksSvc tracks.Service,
	readyDeps map[string]controllers.Pinger,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/activities/{activityID}", func(r chi.Router) {
			r.Route("/moments", func(r chi.Router) {
				r.Post("/sign", controllers.MomentsSign(momentsSvc, logg))
				r.Post("/confirm", controllers.MomentsConfirm(momentsSvc, logg))
			})
			r.Route("/tracks", func(r chi.Router) {
				r.Post("/sign", controllers.TrackSign(tracksSvc, logg))
				r.Post("/{trackID}/confirm", controllers.TrackConfirm(tracksSvc, logg))
			})
		})

		r.Get("/moments/status", controllers.MomentsStatus(momentsSvc, logg))
		r.Get("/tracks/status", controllers.TrackStatus(tracksSvc, logg))
	})

	return r
}
